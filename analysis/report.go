package analysis

import (
	"time"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Options controls BuildReport.
type Options struct {
	TopVoted  int
	TopWords  int
	Tokenizer *Tokenizer
}

// Report is the full analytics summary of a comment collection.
type Report struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Total       int            `json:"total"`
	Ratings     []TierCount    `json:"ratings"`
	Average     Average        `json:"average"`
	Votes       []VoteBucket   `json:"votes"`
	TopVoted    []VoterRank    `json:"top_voted"`
	Trend       Trend          `json:"trend"`
	Words       []WeightedWord `json:"words"`
}

// BuildReport runs every analysis over comments. A nil Tokenizer is
// replaced by DefaultTokenizer.
func BuildReport(comments []models.Comment, opts Options) (*Report, error) {
	if opts.TopVoted <= 0 {
		opts.TopVoted = 10
	}
	if opts.Tokenizer == nil {
		tok, err := DefaultTokenizer()
		if err != nil {
			return nil, err
		}
		opts.Tokenizer = tok
	}

	freq := WordFrequency(comments, opts.Tokenizer, opts.TopWords)
	return &Report{
		GeneratedAt: time.Now().UTC(),
		Total:       len(comments),
		Ratings:     RatingDistribution(comments),
		Average:     AverageScore(comments),
		Votes:       VoteDistribution(comments),
		TopVoted:    TopVoted(comments, opts.TopVoted),
		Trend:       MonthlyTrend(comments),
		Words:       WordCloud(freq, opts.TopWords),
	}, nil
}
