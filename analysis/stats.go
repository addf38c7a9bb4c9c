// Package analysis computes descriptive statistics and word frequencies over
// persisted comments.
package analysis

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Unrated labels comments that carry no recognised tier.
const Unrated = "unrated"

// TierCount is the number of comments with one rating label.
type TierCount struct {
	Label string `json:"label"`
	Score int    `json:"score"`
	Count int    `json:"count"`
}

// Average is the mean score over rated comments.
type Average struct {
	Mean  float64 `json:"mean"`
	Rated int     `json:"rated"`
}

// VoteBucket counts comments whose useful votes fall in [Min, Max]. Max is -1
// for the open-ended bucket.
type VoteBucket struct {
	Label string `json:"label"`
	Min   int    `json:"min"`
	Max   int    `json:"max"`
	Count int    `json:"count"`
}

// VoterRank is one entry of the most-voted list.
type VoterRank struct {
	ReviewerID   string `json:"reviewer_id"`
	ReviewerName string `json:"reviewer_name"`
	UsefulVotes  int    `json:"useful_votes"`
	Rating       string `json:"rating"`
}

// MonthStat aggregates the comments published in one calendar month.
type MonthStat struct {
	Month   string  `json:"month"`
	Count   int     `json:"count"`
	Rated   int     `json:"rated"`
	Average float64 `json:"average"`
}

// Trend is the per-month breakdown in chronological order.
type Trend struct {
	Months   []MonthStat `json:"months"`
	Unparsed int         `json:"unparsed"`
}

var publishedLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// RatingScore maps a tier label to 1-5, or 0 when empty or unknown.
func RatingScore(label string) int {
	return models.RatingTiers[strings.TrimSpace(label)]
}

// RatingDistribution counts comments per tier, best tier first, followed by
// the unrated count.
func RatingDistribution(comments []models.Comment) []TierCount {
	counts := make(map[string]int, len(models.TierOrder)+1)
	for _, c := range comments {
		label := strings.TrimSpace(c.Rating)
		if RatingScore(label) == 0 {
			label = Unrated
		}
		counts[label]++
	}

	out := make([]TierCount, 0, len(models.TierOrder)+1)
	for _, label := range models.TierOrder {
		out = append(out, TierCount{Label: label, Score: models.RatingTiers[label], Count: counts[label]})
	}
	return append(out, TierCount{Label: Unrated, Count: counts[Unrated]})
}

// AverageScore is the mean over rated comments only.
func AverageScore(comments []models.Comment) Average {
	var sum, rated int
	for _, c := range comments {
		if score := RatingScore(c.Rating); score > 0 {
			sum += score
			rated++
		}
	}
	if rated == 0 {
		return Average{}
	}
	return Average{Mean: float64(sum) / float64(rated), Rated: rated}
}

// VoteDistribution buckets useful votes by order of magnitude.
func VoteDistribution(comments []models.Comment) []VoteBucket {
	buckets := []VoteBucket{
		{Label: "0", Min: 0, Max: 0},
		{Label: "1-9", Min: 1, Max: 9},
		{Label: "10-99", Min: 10, Max: 99},
		{Label: "100-999", Min: 100, Max: 999},
		{Label: "1000+", Min: 1000, Max: -1},
	}
	for _, c := range comments {
		for i := range buckets {
			b := &buckets[i]
			if c.UsefulVotes >= b.Min && (b.Max < 0 || c.UsefulVotes <= b.Max) {
				b.Count++
				break
			}
		}
	}
	return buckets
}

// TopVoted returns the n comments with the most useful votes. Ties keep
// their crawl order.
func TopVoted(comments []models.Comment, n int) []VoterRank {
	ranked := make([]VoterRank, 0, len(comments))
	for _, c := range comments {
		ranked = append(ranked, VoterRank{
			ReviewerID:   c.ReviewerID,
			ReviewerName: c.ReviewerName,
			UsefulVotes:  c.UsefulVotes,
			Rating:       c.Rating,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].UsefulVotes > ranked[j].UsefulVotes
	})
	if n >= 0 && n < len(ranked) {
		ranked = ranked[:n]
	}
	return ranked
}

// ParsePublishedAt parses the raw timestamp text shown next to a comment.
func ParsePublishedAt(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", raw)
}

// MonthlyTrend groups comments by publication month.
func MonthlyTrend(comments []models.Comment) Trend {
	type acc struct {
		count, rated, sum int
	}
	months := make(map[string]*acc)
	var trend Trend

	for _, c := range comments {
		published, err := ParsePublishedAt(c.PublishedAt)
		if err != nil {
			trend.Unparsed++
			continue
		}
		key := published.Format("2006-01")
		a, ok := months[key]
		if !ok {
			a = &acc{}
			months[key] = a
		}
		a.count++
		if score := RatingScore(c.Rating); score > 0 {
			a.rated++
			a.sum += score
		}
	}

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	trend.Months = make([]MonthStat, 0, len(keys))
	for _, k := range keys {
		a := months[k]
		stat := MonthStat{Month: k, Count: a.count, Rated: a.rated}
		if a.rated > 0 {
			stat.Average = float64(a.sum) / float64(a.rated)
		}
		trend.Months = append(trend.Months, stat)
	}
	return trend
}
