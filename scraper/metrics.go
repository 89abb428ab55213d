package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	PagesTotal      *prometheus.CounterVec
	BooksTotal      prometheus.Counter
	SkippedTotal    *prometheus.CounterVec
	DownloadsTotal  *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "Total HTTP requests issued by the scraper.",
		},
		[]string{"phase"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency for scraper requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Category pages processed, by outcome.",
		},
		[]string{"outcome"},
	)
	books := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_books_total",
			Help: "Books added to the manifest.",
		},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_skipped_total",
			Help: "Pages and books skipped, by unit and reason.",
		},
		[]string{"unit", "reason"},
	)
	downloads := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_downloads_total",
			Help: "Assets written to disk, by kind.",
		},
		[]string{"kind"},
	)

	registry.MustRegister(requests, requestDuration, pages, books, skipped, downloads)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		PagesTotal:      pages,
		BooksTotal:      books,
		SkippedTotal:    skipped,
		DownloadsTotal:  downloads,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncPage counts a processed category page.
func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Inc()
}

// IncBooks counts a book added to the manifest.
func (m *Metrics) IncBooks() {
	if m == nil {
		return
	}
	m.BooksTotal.Inc()
}

// IncSkipped counts a skipped page or book.
func (m *Metrics) IncSkipped(unit, reason string) {
	if m == nil {
		return
	}
	m.SkippedTotal.WithLabelValues(unit, reason).Inc()
}

// IncDownload counts an asset written to disk.
func (m *Metrics) IncDownload(kind string) {
	if m == nil {
		return
	}
	m.DownloadsTotal.WithLabelValues(kind).Inc()
}
