// Package parser extracts comment records and pagination links from
// parsed comment pages.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// ValidateComment ensures the extractor captured the required fields.
func ValidateComment(c *models.Comment) error {
	if c == nil {
		return fmt.Errorf("comment is nil")
	}
	if strings.TrimSpace(c.ReviewerID) == "" {
		return fmt.Errorf("comment missing reviewer id")
	}
	if strings.TrimSpace(c.ReviewerName) == "" {
		return fmt.Errorf("comment missing reviewer name for %s", c.ReviewerID)
	}
	if strings.TrimSpace(c.Body) == "" {
		return fmt.Errorf("comment missing body for %s", c.ReviewerID)
	}
	if c.UsefulVotes < 0 {
		return fmt.Errorf("comment has negative votes for %s", c.ReviewerID)
	}
	if c.Rating != "" {
		if _, ok := models.RatingTiers[c.Rating]; !ok {
			return fmt.Errorf("comment has unknown rating %q for %s", c.Rating, c.ReviewerID)
		}
	}
	return nil
}

// ParseVotes converts the useful-votes text into a count. Empty text is zero.
func ParseVotes(text string) (int, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0, nil
	}
	votes, err := strconv.Atoi(text)
	if err != nil {
		return 0, fmt.Errorf("parse votes %q: %w", text, err)
	}
	if votes < 0 {
		return 0, fmt.Errorf("votes cannot be negative: %d", votes)
	}
	return votes, nil
}

// NormalizeText trims the text and collapses internal runs of whitespace.
func NormalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// RatingScore converts a tier label to its 1-5 score, or 0 when unrated.
func RatingScore(rating string) int {
	return models.RatingTiers[strings.TrimSpace(rating)]
}
