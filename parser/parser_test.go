package parser

import (
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

const pageURL = "https://movie.douban.com/subject/26752088/comments?start=0&limit=20&sort=new_score&status=P"

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return doc
}

func ratedItem(id, votes, name, rating, published, body string) string {
	return `<div class="comment-item" data-cid="` + id + `">
  <div class="comment">
    <h3>
      <span class="comment-vote"><span class="votes">` + votes + `</span></span>
      <span class="comment-info">
        <a href="https://www.douban.com/people/` + id + `/">` + name + `</a>
        <span>看过</span>
        <span class="allstar40 rating" title="` + rating + `"></span>
        <span class="comment-time" title="` + published + `">` + published + `</span>
      </span>
    </h3>
    <p class="comment-content"><span class="short">` + body + `</span></p>
  </div>
</div>`
}

func unratedItem(id, votes, name, published, body string) string {
	return `<div class="comment-item" data-cid="` + id + `">
  <div class="comment">
    <h3>
      <span class="comment-vote"><span class="votes">` + votes + `</span></span>
      <span class="comment-info">
        <a href="https://www.douban.com/people/` + id + `/">` + name + `</a>
        <span>想看</span>
        <span class="comment-time">` + published + `</span>
      </span>
    </h3>
    <p class="comment-content"><span class="short">` + body + `</span></p>
  </div>
</div>`
}

func page(items ...string) string {
	return "<html><body><div id=\"comments\">" + strings.Join(items, "") + "</div></body></html>"
}

func TestExtractCommentsLayouts(t *testing.T) {
	doc := mustDoc(t, page(
		ratedItem("101", " 12 ", " 影迷甲 ", "推荐", "2018-07-06", "  好看的电影  "),
		unratedItem("102", "0", "路人乙", "2018-07-07", "还没看"),
		ratedItem("103", "3", "Alice", "力荐", "2018-08-01 12:30:00", "Great\n  movie"),
	))

	got, err := ExtractComments(doc)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	want := []*models.Comment{
		{ReviewerID: "101", UsefulVotes: 12, ReviewerName: "影迷甲", Status: "看过", Rating: "推荐", PublishedAt: "2018-07-06", Body: "好看的电影"},
		{ReviewerID: "102", UsefulVotes: 0, ReviewerName: "路人乙", Status: "想看", Rating: "", PublishedAt: "2018-07-07", Body: "还没看"},
		{ReviewerID: "103", UsefulVotes: 3, ReviewerName: "Alice", Status: "看过", Rating: "力荐", PublishedAt: "2018-08-01 12:30:00", Body: "Great\n  movie"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("comments mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractCommentsEmptyPage(t *testing.T) {
	got, err := ExtractComments(mustDoc(t, page()))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("comments = %d, want 0", len(got))
	}
}

func TestExtractCommentsMalformed(t *testing.T) {
	tests := []struct {
		name      string
		item      string
		wantField string
	}{
		{
			name:      "missing id",
			item:      strings.Replace(ratedItem("1", "1", "a", "推荐", "2018-01-01", "x"), `data-cid="1"`, "", 1),
			wantField: "reviewer_id",
		},
		{
			name:      "missing votes",
			item:      strings.Replace(ratedItem("1", "1", "a", "推荐", "2018-01-01", "x"), `class="votes"`, `class="count"`, 1),
			wantField: "useful_votes",
		},
		{
			name:      "non numeric votes",
			item:      ratedItem("1", "many", "a", "推荐", "2018-01-01", "x"),
			wantField: "useful_votes",
		},
		{
			name:      "missing name",
			item:      strings.Replace(unratedItem("1", "1", "a", "2018-01-01", "x"), `<a href="https://www.douban.com/people/1/">a</a>`, "", 1),
			wantField: "reviewer_name",
		},
		{
			name:      "single info span",
			item:      strings.Replace(unratedItem("1", "1", "a", "2018-01-01", "x"), `<span class="comment-time">2018-01-01</span>`, "", 1),
			wantField: "status",
		},
		{
			name:      "rated item without title",
			item:      strings.Replace(ratedItem("1", "1", "a", "推荐", "2018-01-01", "x"), `title="推荐"`, "", 1),
			wantField: "rating",
		},
		{
			name:      "rated item with blank title",
			item:      ratedItem("1", "1", "a", "  ", "2018-01-01", "x"),
			wantField: "rating",
		},
		{
			name:      "unknown tier",
			item:      ratedItem("1", "1", "a", "五星", "2018-01-01", "x"),
			wantField: "rating",
		},
		{
			name:      "empty body",
			item:      ratedItem("1", "1", "a", "推荐", "2018-01-01", "   "),
			wantField: "body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractComments(mustDoc(t, page(tt.item)))
			var extractErr *ExtractionError
			if !errors.As(err, &extractErr) {
				t.Fatalf("expected ExtractionError, got %v", err)
			}
			if extractErr.Field != tt.wantField {
				t.Fatalf("field = %q, want %q", extractErr.Field, tt.wantField)
			}
			if extractErr.Index != 0 {
				t.Fatalf("index = %d, want 0", extractErr.Index)
			}
		})
	}
}

func paginatorPage(links string) string {
	return `<html><body><div id="paginator" class="center">` + links + `</div></body></html>`
}

func TestNextPage(t *testing.T) {
	tests := []struct {
		name     string
		html     string
		wantNext string
		wantOK   bool
	}{
		{
			name:     "first page",
			html:     paginatorPage(`<span class="first">&lt; 首页</span><a href="?start=20&amp;limit=20&amp;sort=new_score&amp;status=P" data-page="" class="next">后页 &gt;</a>`),
			wantNext: "https://movie.douban.com/subject/26752088/comments?start=20&limit=20&sort=new_score&status=P",
			wantOK:   true,
		},
		{
			name:     "middle page",
			html:     paginatorPage(`<a href="?start=0">&lt; 首页</a><a href="?start=20" class="prev">&lt; 前页</a><a href="?start=60" class="next">后页 &gt;</a>`),
			wantNext: "https://movie.douban.com/subject/26752088/comments?start=60",
			wantOK:   true,
		},
		{
			name:     "absolute href",
			html:     paginatorPage(`<a href="https://movie.douban.com/subject/26752088/comments?start=40">后页&gt;</a>`),
			wantNext: "https://movie.douban.com/subject/26752088/comments?start=40",
			wantOK:   true,
		},
		{
			name:   "last page",
			html:   paginatorPage(`<a href="?start=0">&lt; 首页</a><a href="?start=20" class="prev">&lt; 前页</a><span class="next">后页 &gt;</span>`),
			wantOK: false,
		},
		{
			name:   "empty paginator",
			html:   paginatorPage(``),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, ok, err := NextPage(mustDoc(t, tt.html), pageURL, NextPageOptions{})
			if err != nil {
				t.Fatalf("next page: %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if next != tt.wantNext {
				t.Fatalf("next = %q, want %q", next, tt.wantNext)
			}
		})
	}
}

func TestNextPageCustomLabel(t *testing.T) {
	doc := mustDoc(t, paginatorPage(`<a href="?start=20">Next »</a>`))
	next, ok, err := NextPage(doc, "https://example.test/subject/1/reviews?start=0", NextPageOptions{Label: "Next", PathMarker: "reviews"})
	if err != nil || !ok {
		t.Fatalf("next page: ok=%v err=%v", ok, err)
	}
	if next != "https://example.test/subject/1/reviews?start=20" {
		t.Fatalf("next = %q", next)
	}
}

func TestNextPageMissingPaginator(t *testing.T) {
	_, ok, err := NextPage(mustDoc(t, page()), pageURL, NextPageOptions{})
	if ok {
		t.Fatalf("ok should be false")
	}
	if !errors.Is(err, ErrPaginatorMissing) {
		t.Fatalf("expected ErrPaginatorMissing, got %v", err)
	}
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %T", err)
	}
}

func TestNextPageMissingMarker(t *testing.T) {
	_, _, err := NextPage(mustDoc(t, paginatorPage(`<a href="?start=20">后页</a>`)), "https://movie.douban.com/subject/1/reviews", NextPageOptions{})
	var extractErr *ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if errors.Is(err, ErrPaginatorMissing) {
		t.Fatalf("marker failure should not report a missing paginator")
	}
}

func TestValidateComment(t *testing.T) {
	valid := func() *models.Comment {
		return &models.Comment{ReviewerID: "1", ReviewerName: "a", Status: "看过", Rating: "推荐", PublishedAt: "2018-07-06", Body: "ok"}
	}
	tests := []struct {
		name    string
		mutate  func(*models.Comment)
		wantErr bool
	}{
		{name: "valid comment", mutate: func(*models.Comment) {}, wantErr: false},
		{name: "unrated comment", mutate: func(c *models.Comment) { c.Rating = "" }, wantErr: false},
		{name: "missing id", mutate: func(c *models.Comment) { c.ReviewerID = " " }, wantErr: true},
		{name: "missing name", mutate: func(c *models.Comment) { c.ReviewerName = "" }, wantErr: true},
		{name: "missing body", mutate: func(c *models.Comment) { c.Body = "" }, wantErr: true},
		{name: "negative votes", mutate: func(c *models.Comment) { c.UsefulVotes = -1 }, wantErr: true},
		{name: "unknown tier", mutate: func(c *models.Comment) { c.Rating = "Five" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := ValidateComment(c)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateComment() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	if err := ValidateComment(nil); err == nil {
		t.Errorf("nil comment should fail validation")
	}
}

func TestParseVotes(t *testing.T) {
	tests := []struct {
		input    string
		expected int
		wantErr  bool
	}{
		{input: "12", expected: 12},
		{input: "  7 ", expected: 7},
		{input: "", expected: 0},
		{input: "abc", wantErr: true},
		{input: "-3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseVotes(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseVotes(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.expected {
				t.Errorf("ParseVotes(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestRatingScore(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{input: "力荐", expected: 5},
		{input: "推荐", expected: 4},
		{input: "还行", expected: 3},
		{input: "较差", expected: 2},
		{input: "很差", expected: 1},
		{input: " 推荐 ", expected: 4},
		{input: "", expected: 0},
		{input: "Five", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := RatingScore(tt.input); got != tt.expected {
				t.Errorf("RatingScore(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeText(t *testing.T) {
	if got := NormalizeText("  a \n\t b  "); got != "a b" {
		t.Fatalf("NormalizeText = %q, want %q", got, "a b")
	}
}
