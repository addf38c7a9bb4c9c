package analysis

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-ego/gse"
)

// userWordFreq outweighs the embedded dictionary so custom words are never
// split.
const userWordFreq = 100000

// DefaultStopwords are frequent words that carry no opinion.
var DefaultStopwords = []string{
	"一个", "一部", "一样", "不是", "不过", "什么", "他们", "以后", "但是", "只是",
	"可以", "可能", "因为", "所以", "我们", "还是", "就是", "已经", "有点", "没有",
	"然后", "真的", "自己", "觉得", "这个", "这样", "那个", "那么", "这部", "电影",
	"the", "and", "is", "of", "to", "it", "this", "that", "was", "for",
}

// Tokenizer splits comment bodies into words with a gse segmenter loaded
// with the embedded Chinese dictionary plus user words. Latin and digit
// runs are lowercased.
type Tokenizer struct {
	seg    gse.Segmenter
	minLen int
}

// NewTokenizer builds a tokenizer. Tokens shorter than minLen runes are
// dropped.
func NewTokenizer(stopwords, dictionary []string, minLen int) (*Tokenizer, error) {
	if minLen < 1 {
		minLen = 1
	}

	t := &Tokenizer{minLen: minLen}
	t.seg.SkipLog = true
	if err := t.seg.LoadDictEmbed(); err != nil {
		return nil, fmt.Errorf("load segmenter dictionary: %w", err)
	}
	t.seg.LoadModel()

	for _, w := range dictionary {
		w = strings.TrimSpace(w)
		if w == "" {
			continue
		}
		if err := t.seg.AddToken(w, userWordFreq); err != nil {
			return nil, fmt.Errorf("add dictionary word %q: %w", w, err)
		}
	}
	for _, w := range stopwords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			t.seg.AddStop(w)
		}
	}
	return t, nil
}

// DefaultTokenizer uses DefaultStopwords, no user dictionary and a
// two-rune minimum.
func DefaultTokenizer() (*Tokenizer, error) {
	return NewTokenizer(DefaultStopwords, nil, 2)
}

// LoadWordList reads one word per line. Blank lines and lines starting with
// '#' are ignored.
func LoadWordList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open word list: %w", err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// jieba-style dictionaries carry a frequency and tag after the word
		if word, _, ok := strings.Cut(line, " "); ok {
			line = word
		}
		words = append(words, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read word list %q: %w", path, err)
	}
	return words, nil
}

// Tokens returns the words of text in order, stopwords and punctuation
// removed.
func (t *Tokenizer) Tokens(text string) []string {
	var out []string
	for _, token := range t.seg.Cut(text, true) {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" || !hasWordRune(token) {
			continue
		}
		if utf8.RuneCountInString(token) < t.minLen {
			continue
		}
		if t.seg.IsStop(token) {
			continue
		}
		out = append(out, token)
	}
	return out
}

func hasWordRune(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
