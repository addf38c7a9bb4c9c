package parser

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

const (
	itemSelector      = "div.comment-item"
	votesSelector     = "span.votes"
	nameSelector      = "span.comment-info > a"
	infoSpanSelector  = "span.comment-info span"
	bodySelector      = "p"
	paginatorSelector = "div#paginator"
	reviewerIDAttr    = "data-cid"
)

// DefaultNextLabel is the paginator text of the next-page link.
const DefaultNextLabel = "后页"

// DefaultPathMarker ends the base URL that paginator hrefs are relative to.
const DefaultPathMarker = "comments"

// ExtractComments returns the comments on a page in document order.
func ExtractComments(doc *goquery.Document) ([]*models.Comment, error) {
	items := doc.Find(itemSelector)
	comments := make([]*models.Comment, 0, items.Length())

	var firstErr error
	items.EachWithBreak(func(i int, item *goquery.Selection) bool {
		comment, err := extractComment(i, item)
		if err != nil {
			firstErr = err
			return false
		}
		comments = append(comments, comment)
		return true
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return comments, nil
}

func extractComment(i int, item *goquery.Selection) (*models.Comment, error) {
	id, ok := item.Attr(reviewerIDAttr)
	id = strings.TrimSpace(id)
	if !ok || id == "" {
		return nil, fieldError(i, "reviewer_id", "missing "+reviewerIDAttr+" attribute")
	}

	votesNode := item.Find(votesSelector).First()
	if votesNode.Length() == 0 {
		return nil, fieldError(i, "useful_votes", "missing votes node")
	}
	votes, err := ParseVotes(votesNode.Text())
	if err != nil {
		return nil, &ExtractionError{Index: i, Field: "useful_votes", Reason: "invalid vote count", Err: err}
	}

	nameNode := item.Find(nameSelector).First()
	if nameNode.Length() == 0 {
		return nil, fieldError(i, "reviewer_name", "missing reviewer anchor")
	}

	spans := item.Find(infoSpanSelector)
	if spans.Length() < 2 {
		return nil, fieldError(i, "status", "comment info has fewer than 2 spans")
	}

	comment := &models.Comment{
		ReviewerID:   id,
		UsefulVotes:  votes,
		ReviewerName: NormalizeText(nameNode.Text()),
		Status:       NormalizeText(spans.Eq(0).Text()),
	}

	// Rated comments carry a tier span between status and time.
	if spans.Length() == 3 {
		rating, ok := spans.Eq(1).Attr("title")
		rating = NormalizeText(rating)
		if !ok || rating == "" {
			return nil, fieldError(i, "rating", "rating span has no title")
		}
		if _, known := models.RatingTiers[rating]; !known {
			return nil, fieldError(i, "rating", "unknown rating tier "+rating)
		}
		comment.Rating = rating
		comment.PublishedAt = NormalizeText(spans.Eq(2).Text())
	} else {
		comment.PublishedAt = NormalizeText(spans.Eq(1).Text())
	}

	body := strings.TrimSpace(item.Find(bodySelector).First().Text())
	if body == "" {
		return nil, fieldError(i, "body", "empty comment body")
	}
	comment.Body = body

	return comment, nil
}

// NextPageOptions selects the paginator link and the URL it is relative to.
type NextPageOptions struct {
	Label      string
	PathMarker string
}

func (o NextPageOptions) withDefaults() NextPageOptions {
	if o.Label == "" {
		o.Label = DefaultNextLabel
	}
	if o.PathMarker == "" {
		o.PathMarker = DefaultPathMarker
	}
	return o
}

// NextPage resolves the URL of the page following currentURL. ok is false
// when the paginator has no next link, which marks the last page.
func NextPage(doc *goquery.Document, currentURL string, opts NextPageOptions) (next string, ok bool, err error) {
	opts = opts.withDefaults()

	cut := strings.LastIndex(currentURL, opts.PathMarker)
	if cut < 0 {
		return "", false, &ExtractionError{Index: -1, Field: "next_page", Reason: "current URL lacks path marker " + opts.PathMarker}
	}
	base := currentURL[:cut+len(opts.PathMarker)]

	paginator := doc.Find(paginatorSelector)
	if paginator.Length() == 0 {
		return "", false, &ExtractionError{Index: -1, Field: "next_page", Reason: "no paginator on page", Err: ErrPaginatorMissing}
	}

	paginator.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if linkLabel(a.Text()) != opts.Label {
			return true
		}
		href, exists := a.Attr("href")
		if !exists {
			return true
		}
		href = strings.TrimSpace(href)
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			next = href
		} else {
			next = base + href
		}
		ok = true
		return false
	})

	return next, ok, nil
}

// linkLabel strips arrows, spaces and other decorations around a link text.
func linkLabel(text string) string {
	return strings.TrimFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r)
	})
}
