package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/aluiziolira/go-scrape-reviews/config"
)

const (
	ctxStartKey  = "start"
	ctxBodyKey   = "body"
	ctxStatusKey = "status"
)

// FetchStats summarises the requests a fetcher has issued.
type FetchStats struct {
	Requests     int
	Retries      int
	ErrorsByType map[string]int
}

// Fetcher retrieves one page at a time through a synchronous colly
// collector and parses it into a goquery document.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	transport *ctxTransport
	session   Session
	metrics   *Metrics
	log       *zap.Logger
	sleep     func(context.Context, time.Duration) error

	mu           sync.Mutex
	requests     int
	retries      int
	errorsByType map[string]int
}

// NewFetcher builds a fetcher configured from cfg that sends session with
// every request.
func NewFetcher(cfg *config.Config, session Session, metrics *Metrics, log *zap.Logger) (*Fetcher, error) {
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive")
	}
	if log == nil {
		log = zap.NewNop()
	}

	collector := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)
	collector.SetRequestTimeout(cfg.Timeout)
	transport := newCtxTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	collector.WithTransport(transport)

	f := &Fetcher{
		cfg:          cfg,
		collector:    collector,
		transport:    transport,
		session:      session,
		metrics:      metrics,
		log:          log,
		sleep:        sleepContext,
		errorsByType: make(map[string]int),
	}
	f.configureHandlers()
	return f, nil
}

// useTransport swaps the underlying round tripper while keeping requests
// bound to the Fetch context.
func (f *Fetcher) useTransport(rt http.RoundTripper) {
	f.transport.base = rt
}

func (f *Fetcher) configureHandlers() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStartKey, time.Now())
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxBodyKey, r.Body)
		if start, ok := r.Ctx.GetAny(ctxStartKey).(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		if r == nil || r.Ctx == nil {
			return
		}
		r.Ctx.Put(ctxStatusKey, r.StatusCode)
		if start, ok := r.Ctx.GetAny(ctxStartKey).(time.Time); ok {
			f.metrics.ObserveDuration(time.Since(start))
		}
	})
}

// Fetch GETs pageURL and parses the body. Failures are retried up to
// cfg.MaxRetries times with capped exponential backoff, after which a
// *FetchError is returned.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= f.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoff(f.cfg, attempt)
			f.mu.Lock()
			f.retries++
			f.mu.Unlock()
			f.metrics.IncRetries()
			f.log.Warn("retrying page",
				zap.String("url", pageURL),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
			)
			if err := f.sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		attempts++
		doc, err := f.fetchOnce(ctx, pageURL)
		if err == nil {
			return doc, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		lastErr = err
		category := errorTypeLabel(err)
		f.mu.Lock()
		f.errorsByType[category]++
		f.mu.Unlock()
		f.metrics.IncError(category)
		f.log.Error("page fetch failed",
			zap.String("url", pageURL),
			zap.String("category", category),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
	}

	return nil, &FetchError{URL: pageURL, Attempts: attempts, Err: lastErr}
}

func (f *Fetcher) fetchOnce(ctx context.Context, pageURL string) (*goquery.Document, error) {
	hdr := http.Header{}
	hdr.Set("User-Agent", f.cfg.UserAgent)
	if !f.session.Empty() {
		hdr.Set("Cookie", f.session.Header())
	}

	f.mu.Lock()
	f.requests++
	f.mu.Unlock()

	unbind := f.transport.bind(ctx)
	defer unbind()

	reqCtx := colly.NewContext()
	if err := f.collector.Request(http.MethodGet, pageURL, nil, reqCtx, hdr); err != nil {
		f.metrics.IncRequest("error")
		status, _ := reqCtx.GetAny(ctxStatusKey).(int)
		return nil, classifyError(err, status)
	}
	f.metrics.IncRequest("ok")

	body, _ := reqCtx.GetAny(ctxBodyKey).([]byte)
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Stats returns a snapshot of request counters.
func (f *Fetcher) Stats() FetchStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		out[k] = v
	}
	return FetchStats{
		Requests:     f.requests,
		Retries:      f.retries,
		ErrorsByType: out,
	}
}

func backoff(cfg *config.Config, attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := cfg.RetryBackoff
	if base <= 0 {
		return 0
	}

	delay := base * time.Duration(1<<(attempt-1))
	if max := cfg.RetryBackoffMax; max > 0 && (delay > max || delay <= 0) {
		delay = max
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
		if statusCode >= http.StatusMultipleChoices {
			return ErrHTTPStatus{StatusCode: statusCode, Err: wrapped}
		}
	}

	return err
}
