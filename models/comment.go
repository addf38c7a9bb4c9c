// Package models defines data structures for the crawler and the analytics stage.
package models

import "time"

// Comment represents one short review crawled from a comment page.
type Comment struct {
	ReviewerID   string    `bson:"reviewer_id" json:"reviewer_id" csv:"reviewer_id"`
	UsefulVotes  int       `bson:"useful_votes" json:"useful_votes" csv:"useful_votes"`
	ReviewerName string    `bson:"reviewer_name" json:"reviewer_name" csv:"reviewer_name"`
	Status       string    `bson:"status" json:"status" csv:"status"`
	Rating       string    `bson:"rating" json:"rating" csv:"rating"`
	PublishedAt  string    `bson:"published_at" json:"published_at" csv:"published_at"`
	Body         string    `bson:"body" json:"body" csv:"body"`
	SourceURL    string    `bson:"source_url,omitempty" json:"source_url,omitempty" csv:"source_url"`
	CrawledAt    time.Time `bson:"crawled_at,omitempty" json:"crawled_at,omitempty" csv:"crawled_at"`
}

// Tier labels used by the site instead of numeric scores, best first.
const (
	TierHighlyRecommended = "力荐"
	TierRecommended       = "推荐"
	TierOkay              = "还行"
	TierPoor              = "较差"
	TierTerrible          = "很差"
)

// RatingTiers maps each tier label to its 1-5 score.
var RatingTiers = map[string]int{
	TierHighlyRecommended: 5,
	TierRecommended:       4,
	TierOkay:              3,
	TierPoor:              2,
	TierTerrible:          1,
}

// TierOrder lists the tier labels from the highest score to the lowest.
var TierOrder = []string{
	TierHighlyRecommended,
	TierRecommended,
	TierOkay,
	TierPoor,
	TierTerrible,
}

// StopReason describes why a crawl ended.
type StopReason string

const (
	StopBudgetExhausted StopReason = "budget_exhausted"
	StopLastPage        StopReason = "last_page"
	StopError           StopReason = "error"
	StopCanceled        StopReason = "canceled"
)

// CrawlResult holds the overall result of a crawl run.
type CrawlResult struct {
	StartTime       time.Time
	EndTime         time.Time
	PageCount       int
	ExtractedCount  int
	PersistedCount  int
	DroppedCount    int
	PersistFailures int
	FailedPages     []string
	RetryCount      int
	RequestCount    int
	ErrorsByType    map[string]int
	StopReason      StopReason
	LastURL         string
}
