package analysis

import (
	"sort"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// WordCount is a token and how often it occurs.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// WeightedWord is a word-cloud entry; Weight is relative to the most frequent
// word, which has weight 1.
type WeightedWord struct {
	Word   string  `json:"word"`
	Count  int     `json:"count"`
	Weight float64 `json:"weight"`
}

// WordFrequency tokenizes every body and returns the top most frequent words,
// ordered by count and then alphabetically. top <= 0 returns all words.
func WordFrequency(comments []models.Comment, tok *Tokenizer, top int) []WordCount {
	counts := make(map[string]int)
	for _, c := range comments {
		for _, word := range tok.Tokens(c.Body) {
			counts[word]++
		}
	}

	out := make([]WordCount, 0, len(counts))
	for word, n := range counts {
		out = append(out, WordCount{Word: word, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	if top > 0 && top < len(out) {
		out = out[:top]
	}
	return out
}

// WordCloud turns sorted frequencies into at most maxWords weighted entries.
func WordCloud(freq []WordCount, maxWords int) []WeightedWord {
	if maxWords > 0 && maxWords < len(freq) {
		freq = freq[:maxWords]
	}
	out := make([]WeightedWord, 0, len(freq))
	if len(freq) == 0 {
		return out
	}

	highest := 0
	for _, wc := range freq {
		if wc.Count > highest {
			highest = wc.Count
		}
	}
	for _, wc := range freq {
		out = append(out, WeightedWord{
			Word:   wc.Word,
			Count:  wc.Count,
			Weight: float64(wc.Count) / float64(highest),
		})
	}
	return out
}
