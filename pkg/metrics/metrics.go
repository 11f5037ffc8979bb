// Package metrics defines the Prometheus collectors used by the finisher
// service and consumer and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         *prometheus.HistogramVec
	GuessResultsCount    prometheus.Histogram
	CorrectionsTotal     prometheus.Counter
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	PhrasesTrainedTotal  prometheus.Counter
	TrainingBatchesTotal *prometheus.CounterVec
	BustsTotal           prometheus.Counter
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finisher_queries_total",
				Help: "Total model queries by operation (correct, guess, complete) and result (ok, empty, error).",
			},
			[]string{"operation", "result"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finisher_query_latency_seconds",
				Help:    "Model query latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation", "cache_status"},
		),
		GuessResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "finisher_guess_results_count",
				Help:    "Number of phrases returned per guess.",
				Buckets: []float64{0, 1, 2, 5, 10, 25, 50},
			},
		),
		CorrectionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "finisher_corrections_total",
				Help: "Total tokens replaced by the spelling corrector.",
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		PhrasesTrainedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "finisher_phrases_trained_total",
				Help: "Total training strings accepted.",
			},
		),
		TrainingBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finisher_training_batches_total",
				Help: "Total training batches by source (http, kafka, cli) and status.",
			},
			[]string{"source", "status"},
		),
		BustsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "finisher_busts_total",
				Help: "Total model resets.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.QueryLatency,
		m.GuessResultsCount,
		m.CorrectionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.PhrasesTrainedTotal,
		m.TrainingBatchesTotal,
		m.BustsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
