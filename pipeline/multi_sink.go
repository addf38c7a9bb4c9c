package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Validator is implemented by sinks that can check their output after a run.
type Validator interface {
	Validate() error
}

// MultiSink fans every batch out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks; every sink sees every batch in order.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

// InsertMany writes to all sinks, even when an earlier one fails.
func (ms *MultiSink) InsertMany(ctx context.Context, comments []*models.Comment) error {
	var errs []error
	for i, s := range ms.sinks {
		if err := s.InsertMany(ctx, comments); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes all sinks.
func (ms *MultiSink) Close() error {
	var errs []error
	for i, s := range ms.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Validate validates every sink that supports it.
func (ms *MultiSink) Validate() error {
	var errs []error
	for _, s := range ms.sinks {
		if v, ok := s.(Validator); ok {
			if err := v.Validate(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
