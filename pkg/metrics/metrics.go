// Package metrics defines the Prometheus metric collectors used across the
// federated search processes and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. Each process only moves the
// collectors that belong to its role; the rest stay at zero.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	QueryEvaluationsTotal *prometheus.CounterVec
	QueryLatency          *prometheus.HistogramVec
	QueryRowsReturned     prometheus.Histogram
	ShardRequestsTotal    *prometheus.CounterVec
	ShardRequestDuration  *prometheus.HistogramVec
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	CircuitBreakerState   *prometheus.GaugeVec

	WireRequestsTotal *prometheus.CounterVec
	WireConnections   prometheus.Gauge

	StatsPublishTotal   *prometheus.CounterVec
	StatsLookupsTotal   prometheus.Counter
	StatsCollectionSize prometheus.Gauge
	StatsTrackedTerms   prometheus.Gauge

	DocsIndexedTotal prometheus.Counter
	ShardDocCount    prometheus.Gauge
}

// New creates all collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates all collectors and registers them with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
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
		QueryEvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_evaluations_total",
				Help: "Coordinator query evaluations by outcome (ok, partial, failed, empty, cached).",
			},
			[]string{"outcome"},
		),
		QueryLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "query_latency_seconds",
				Help:    "End-to-end coordinator evaluation latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"scheme"},
		),
		QueryRowsReturned: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "query_rows_returned",
				Help:    "Number of rows returned per evaluation.",
				Buckets: []float64{0, 1, 5, 10, 20, 50, 100, 500},
			},
		),
		ShardRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shard_requests_total",
				Help: "Shard requests by shard address and outcome (ok, remote_error, network_error, timeout).",
			},
			[]string{"shard", "outcome"},
		),
		ShardRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shard_request_duration_seconds",
				Help:    "Shard round-trip latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"shard"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		WireRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wire_requests_total",
				Help: "Framed requests served by a TCP service, by reply kind (Y or E).",
			},
			[]string{"service", "reply"},
		),
		WireConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "wire_open_connections",
				Help: "Open TCP connections on the framed service.",
			},
		),
		StatsPublishTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stats_publish_total",
				Help: "Statistics deltas applied by origin server id.",
			},
			[]string{"server_id"},
		),
		StatsLookupsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "stats_lookups_total",
				Help: "Statistics lookups answered (terms and collection size).",
			},
		),
		StatsCollectionSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stats_collection_size",
				Help: "Global collection size held by the aggregator.",
			},
		),
		StatsTrackedTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "stats_tracked_terms",
				Help: "Number of distinct (type,value) keys held by the aggregator.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed by this shard node.",
			},
		),
		ShardDocCount: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "shard_document_count",
				Help: "Number of documents held by this shard node.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueryEvaluationsTotal,
		m.QueryLatency,
		m.QueryRowsReturned,
		m.ShardRequestsTotal,
		m.ShardRequestDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
		m.WireRequestsTotal,
		m.WireConnections,
		m.StatsPublishTotal,
		m.StatsLookupsTotal,
		m.StatsCollectionSize,
		m.StatsTrackedTerms,
		m.DocsIndexedTotal,
		m.ShardDocCount,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
