// Package metrics defines the Prometheus metrics exported by the server
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "confhub"

// HTTP metrics
var (
	// HTTPRequestsTotal counts handled HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes HTTP request latency
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	// RateLimitRejections counts requests refused by a rate limiter
	RateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_rejections_total",
			Help:      "Total number of rate limited requests",
		},
		[]string{"scope"},
	)
)

// Store metrics
var (
	// ConfigMutations counts committed config versions
	ConfigMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_mutations_total",
			Help:      "Total number of committed config versions",
		},
		[]string{"operation"},
	)

	// VersionConflicts counts optimistic concurrency failures
	VersionConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "version_conflicts_total",
			Help:      "Total number of version conflicts",
		},
		[]string{"operation"},
	)

	// Evaluations counts config value evaluations
	Evaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Total number of config value evaluations",
		},
		[]string{"matched"},
	)
)

// Event metrics
var (
	// EventsPublished counts change events published on the local bus
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of published change events",
		},
		[]string{"source"},
	)

	// EventsDropped counts change events dropped because a subscriber was full
	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of change events dropped for slow subscribers",
		},
	)

	// EventsExported counts change events written to external sinks
	EventsExported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_exported_total",
			Help:      "Total number of change events written to external sinks",
		},
		[]string{"sink", "status"},
	)

	// NotificationsSent counts change notifications by channel and result
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Total number of change notifications delivered or dropped",
		},
		[]string{"notifier", "result"},
	)
)

// Replication metrics
var (
	// ReplicationSessions tracks open replication sessions
	ReplicationSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "replication_sessions",
			Help:      "Number of open replication sessions",
		},
	)

	// ReplicationSessionsClosed counts closed sessions by reason
	ReplicationSessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replication_sessions_closed_total",
			Help:      "Total number of closed replication sessions",
		},
		[]string{"reason"},
	)

	// ReplicationPushes counts config pushes sent to sessions
	ReplicationPushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replication_pushes_total",
			Help:      "Total number of configs pushed to sessions",
		},
		[]string{"type"},
	)

	// ReplicationIgnored counts change events absorbed by a session's rolling state
	ReplicationIgnored = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replication_ignored_total",
			Help:      "Total number of stale or duplicate change events ignored by sessions",
		},
	)
)

// Handler returns the Prometheus scrape handler
func Handler() http.Handler {
	return promhttp.Handler()
}
