package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a crawl.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   *prometheus.CounterVec
	RequestDuration prometheus.Histogram
	PagesTotal      *prometheus.CounterVec
	RecordsTotal    *prometheus.CounterVec
	SkippedTotal    prometheus.Counter
	DetailFetches   *prometheus.CounterVec
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_requests_total",
			Help: "HTTP requests issued, by outcome.",
		}, []string{"phase"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scraper_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}),
		PagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_listing_pages_total",
			Help: "Listing pages fetched, by collection.",
		}, []string{"collection"}),
		RecordsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_records_extracted_total",
			Help: "Product records accepted, by collection.",
		}, []string{"collection"}),
		SkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_fragments_skipped_total",
			Help: "Listing fragments that yielded no record.",
		}),
		DetailFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_detail_fetches_total",
			Help: "Product detail lookups, by result.",
		}, []string{"result"}),
		RetriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scraper_retries_total",
			Help: "Retry attempts scheduled.",
		}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Fetch errors by type.",
		}, []string{"error_type"}),
	}

	m.Registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.PagesTotal,
		m.RecordsTotal,
		m.SkippedTotal,
		m.DetailFetches,
		m.RetriesTotal,
		m.ErrorsTotal,
	)
	return m
}

func (m *Metrics) IncRequest(phase string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(phase).Inc()
}

func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

func (m *Metrics) IncPage(collection string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(collection).Inc()
}

func (m *Metrics) AddRecords(collection string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RecordsTotal.WithLabelValues(collection).Add(float64(n))
}

func (m *Metrics) IncSkipped() {
	if m == nil {
		return
	}
	m.SkippedTotal.Inc()
}

// IncDetail counts a detail lookup; result is hit, fetched or failed.
func (m *Metrics) IncDetail(result string) {
	if m == nil {
		return
	}
	m.DetailFetches.WithLabelValues(result).Inc()
}

func (m *Metrics) IncRetries() {
	if m == nil {
		return
	}
	m.RetriesTotal.Inc()
}

func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
