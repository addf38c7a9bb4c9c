// Package pipeline validates crawled comments and hands each page to a sink
// as one bulk write.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
	"github.com/aluiziolira/go-scrape-reviews/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// Sink is the persistence contract: one call inserts a batch of comments.
// Implementations must accept an empty batch.
type Sink interface {
	InsertMany(ctx context.Context, comments []*models.Comment) error
	Close() error
}

// PersistError wraps a failed bulk write. The comments of that batch are lost.
type PersistError struct {
	Count int
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %d comments: %v", e.Count, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Outcome counts what happened to one page of comments.
type Outcome struct {
	Received   int
	Written    int
	Invalid    int
	Duplicates int
}

// Dropped is the number of comments filtered out before the write.
func (o Outcome) Dropped() int {
	return o.Invalid + o.Duplicates
}

// Pipeline coordinates validation, de-duplication, and sink writes.
type Pipeline struct {
	sink Sink
	log  *zap.Logger

	// nil when de-duplication is disabled
	seen *lru.Cache[string, struct{}]

	metrics metrics

	mu     sync.Mutex
	closed bool
}

// NewPipeline builds a pipeline writing to sink. Comments already written
// during this run are remembered up to cfg.DedupeMaxSize reviewer ids.
func NewPipeline(sink Sink, cfg *config.Config, log *zap.Logger) (*Pipeline, error) {
	if sink == nil {
		return nil, fmt.Errorf("pipeline: sink is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &Pipeline{
		sink:    sink,
		log:     log,
		metrics: newMetrics(),
	}
	if cfg != nil && cfg.DedupeMaxSize > 0 {
		seen, err := lru.New[string, struct{}](cfg.DedupeMaxSize)
		if err != nil {
			return nil, fmt.Errorf("create dedupe cache: %w", err)
		}
		p.seen = seen
	}
	return p, nil
}

// Process filters one page of comments and writes the survivors with a
// single InsertMany call. A sink failure is returned as *PersistError.
func (p *Pipeline) Process(ctx context.Context, comments []*models.Comment) (Outcome, error) {
	outcome := Outcome{Received: len(comments)}

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return outcome, ErrPipelineClosed
	}

	batch := make([]*models.Comment, 0, len(comments))
	for _, c := range comments {
		if c == nil {
			continue
		}
		if err := parser.ValidateComment(c); err != nil {
			outcome.Invalid++
			p.metrics.addValidation("invalid_record")
			p.log.Debug("dropping invalid comment", zap.Error(err))
			continue
		}
		if p.seenBefore(c.ReviewerID) {
			outcome.Duplicates++
			p.metrics.addValidation("duplicate_reviewer_id")
			continue
		}
		batch = append(batch, prepare(c))
	}

	if err := p.sink.InsertMany(ctx, batch); err != nil {
		p.forget(batch)
		p.metrics.incrementFailures()
		return outcome, &PersistError{Count: len(batch), Err: err}
	}

	outcome.Written = len(batch)
	p.metrics.addProcessed(int64(len(batch)))
	return outcome, nil
}

// Close closes the sink and prevents more submissions.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.sink.Close()
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

func (p *Pipeline) seenBefore(id string) bool {
	if p.seen == nil {
		return false
	}
	if p.seen.Contains(id) {
		return true
	}
	p.seen.Add(id, struct{}{})
	return false
}

// forget lets a later page persist comments whose write failed.
func (p *Pipeline) forget(batch []*models.Comment) {
	if p.seen == nil {
		return
	}
	for _, c := range batch {
		p.seen.Remove(c.ReviewerID)
	}
}

func prepare(c *models.Comment) *models.Comment {
	c.ReviewerName = parser.NormalizeText(c.ReviewerName)
	c.Status = parser.NormalizeText(c.Status)
	c.Rating = parser.NormalizeText(c.Rating)
	c.PublishedAt = parser.NormalizeText(c.PublishedAt)
	return c
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	failures   int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) addProcessed(n int64) {
	m.mu.Lock()
	m.processed += n
	m.mu.Unlock()
}

func (m *metrics) incrementFailures() {
	m.mu.Lock()
	m.failures++
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_comments": m.processed,
		"persist_failures":   m.failures,
		"validation_errors":  copyValidation,
	}
}
