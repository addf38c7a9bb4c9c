// Package scraper fetches comment pages and drives the sequential crawl.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
	"github.com/aluiziolira/go-scrape-reviews/pipeline"
)

// PageFetcher retrieves and parses one page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*goquery.Document, error)
}

type statsProvider interface {
	Stats() FetchStats
}

// Crawler walks the comment pages one at a time: fetch, extract, persist,
// follow the next link, wait.
type Crawler struct {
	cfg      *config.Config
	fetcher  PageFetcher
	pipeline *pipeline.Pipeline
	metrics  *Metrics
	log      *zap.Logger

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// NewCrawler wires a crawler. metrics and log may be nil.
func NewCrawler(cfg *config.Config, fetcher PageFetcher, p *pipeline.Pipeline, metrics *Metrics, log *zap.Logger) *Crawler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Crawler{
		cfg:      cfg,
		fetcher:  fetcher,
		pipeline: p,
		metrics:  metrics,
		log:      log,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

// Run crawls from startURL until the page budget is spent or the last page
// is reached. The returned result is populated even when err is non-nil.
func (c *Crawler) Run(ctx context.Context, startURL string) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	result := &models.CrawlResult{
		StartTime:    c.now(),
		ErrorsByType: make(map[string]int),
	}
	opts := parser.NextPageOptions{Label: c.cfg.NextLabel, PathMarker: c.cfg.PathMarker}

	cursor := startURL
	pageIndex := 1
	var runErr error

	for {
		if pageIndex > c.cfg.MaxPages {
			result.StopReason = models.StopBudgetExhausted
			break
		}
		if err := ctx.Err(); err != nil {
			result.StopReason = models.StopCanceled
			runErr = err
			break
		}

		result.LastURL = cursor
		c.log.Info("crawling page", zap.Int("page", pageIndex), zap.String("url", cursor))

		doc, err := c.fetcher.Fetch(ctx, cursor)
		if err != nil {
			result.StopReason = c.failureReason(ctx)
			runErr = fmt.Errorf("page %d: %w", pageIndex, err)
			break
		}

		comments, err := parser.ExtractComments(doc)
		if err != nil {
			result.StopReason = models.StopError
			runErr = fmt.Errorf("page %d %s: %w", pageIndex, cursor, err)
			break
		}
		crawledAt := c.now()
		for _, comment := range comments {
			comment.SourceURL = cursor
			comment.CrawledAt = crawledAt
		}
		result.ExtractedCount += len(comments)

		if stop := c.persist(ctx, result, pageIndex, cursor, comments); stop != nil {
			result.PageCount++
			result.StopReason = models.StopError
			runErr = stop
			break
		}
		result.PageCount++
		c.metrics.IncPages()
		pageIndex++

		next, ok, err := parser.NextPage(doc, cursor, opts)
		if err != nil {
			result.StopReason = models.StopError
			runErr = fmt.Errorf("page %d next link: %w", pageIndex-1, err)
			break
		}
		if !ok {
			c.log.Info("last page reached", zap.String("url", cursor))
			result.StopReason = models.StopLastPage
			break
		}
		cursor = next

		if pageIndex <= c.cfg.MaxPages {
			if err := c.sleep(ctx, c.cfg.Delay); err != nil {
				result.StopReason = models.StopCanceled
				runErr = err
				break
			}
		}
	}

	result.EndTime = c.now()
	if stats, ok := c.fetcher.(statsProvider); ok {
		s := stats.Stats()
		result.RequestCount = s.Requests
		result.RetryCount = s.Retries
		for k, v := range s.ErrorsByType {
			result.ErrorsByType[k] += v
		}
	}

	c.log.Info("crawl finished",
		zap.String("reason", string(result.StopReason)),
		zap.Int("pages", result.PageCount),
		zap.Int("persisted", result.PersistedCount),
		zap.Int("dropped", result.DroppedCount),
		zap.Int("persist_failures", result.PersistFailures),
		zap.Duration("duration", result.EndTime.Sub(result.StartTime)),
	)
	return result, runErr
}

// persist hands one page to the pipeline. It returns a non-nil error only
// when the crawl must stop.
func (c *Crawler) persist(ctx context.Context, result *models.CrawlResult, pageIndex int, pageURL string, comments []*models.Comment) error {
	outcome, err := c.pipeline.Process(ctx, comments)
	result.DroppedCount += outcome.Dropped()
	c.metrics.AddDropped(outcome.Dropped())

	if err == nil {
		result.PersistedCount += outcome.Written
		c.metrics.AddPersisted(outcome.Written)
		c.log.Info("page persisted",
			zap.Int("page", pageIndex),
			zap.Int("written", outcome.Written),
			zap.Int("dropped", outcome.Dropped()),
		)
		return nil
	}

	var persistErr *pipeline.PersistError
	if !errors.As(err, &persistErr) {
		return fmt.Errorf("page %d: %w", pageIndex, err)
	}

	result.PersistFailures++
	result.FailedPages = append(result.FailedPages, pageURL)
	c.metrics.IncPersistFailures()
	c.log.Error("persist failed",
		zap.Int("page", pageIndex),
		zap.String("url", pageURL),
		zap.Int("lost", persistErr.Count),
		zap.Error(err),
	)
	if c.cfg.StopOnPersistError {
		return fmt.Errorf("page %d: %w", pageIndex, err)
	}
	return nil
}

func (c *Crawler) failureReason(ctx context.Context) models.StopReason {
	if ctx.Err() != nil {
		return models.StopCanceled
	}
	return models.StopError
}
