// Package metrics defines Prometheus metrics for killthenoise.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "killthenoise_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killthenoise_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killthenoise_errors_total",
			Help: "Total errors by type",
		},
		[]string{"type"},
	)

	SyncQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "killthenoise_sync_queue_depth",
			Help: "Current background sync queue depth",
		},
	)

	SyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killthenoise_syncs_total",
			Help: "Completed sync runs by provider and outcome",
		},
		[]string{"provider", "status"},
	)

	SyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "killthenoise_sync_duration_seconds",
			Help:    "Sync run duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)

	IssuesUpserted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "killthenoise_issues_upserted_total",
			Help: "Issues written by the sync orchestrator",
		},
		[]string{"provider"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "killthenoise_websocket_connections",
			Help: "Active WebSocket connections",
		},
	)
)

func init() {
	prometheus.MustRegister(
		RequestDuration, RequestsTotal, ErrorsTotal,
		SyncQueueDepth, SyncsTotal, SyncDuration,
		IssuesUpserted, WSConnections,
	)
}
