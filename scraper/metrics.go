package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   prometheus.Histogram
	PagesTotal        prometheus.Counter
	CommentsPersisted prometheus.Counter
	CommentsDropped   prometheus.Counter
	PersistFailures   prometheus.Counter
	RetriesTotal      prometheus.Counter
	ErrorsTotal       *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_requests_total",
			Help: "Total page requests issued by the crawler, by result.",
		},
		[]string{"result"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crawler_request_duration_seconds",
			Help:    "HTTP request latency for page fetches.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_pages_total",
			Help: "Total comment pages extracted.",
		},
	)
	persisted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_comments_persisted_total",
			Help: "Total comments written to the sink.",
		},
	)
	dropped := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_comments_dropped_total",
			Help: "Total comments dropped as invalid or duplicate.",
		},
	)
	persistFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_persist_failures_total",
			Help: "Total page batches the sink failed to write.",
		},
	)
	retries := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_retries_total",
			Help: "Total number of fetch retries.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "Total number of fetch errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, pages, persisted, dropped, persistFailures, retries, errorsTotal)

	return &Metrics{
		Registry:          registry,
		RequestsTotal:     requests,
		RequestDuration:   requestDuration,
		PagesTotal:        pages,
		CommentsPersisted: persisted,
		CommentsDropped:   dropped,
		PersistFailures:   persistFailures,
		RetriesTotal:      retries,
		ErrorsTotal:       errorsTotal,
	}
}

// IncRequest increments the requests counter for a result label.
func (m *Metrics) IncRequest(result string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(result).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPages increments the extracted pages counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// AddPersisted adds n written comments.
func (m *Metrics) AddPersisted(n int) {
	if m == nil {
		return
	}
	m.CommentsPersisted.Add(float64(n))
}

// AddDropped adds n filtered comments.
func (m *Metrics) AddDropped(n int) {
	if m == nil {
		return
	}
	m.CommentsDropped.Add(float64(n))
}

// IncPersistFailures increments the failed batch counter.
func (m *Metrics) IncPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

// IncRetries increments the retries counter.
func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
