package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrorRate counts Redis errors by operation type.
	RedisErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedline_redis_error_rate_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// StoreQueryLatency records persistent store latency by driver, operation and collection.
	StoreQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "feedline_store_query_latency_seconds",
		Help:    "Persistent store query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"driver", "operation", "collection"})

	// PostOperations counts post lifecycle operations by outcome.
	PostOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedline_post_operations_total",
		Help: "Post lifecycle operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// ArtifactCleanupFailures counts best-effort artifact deletions that failed.
	ArtifactCleanupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedline_artifact_cleanup_failures_total",
		Help: "Artifact deletions that failed and were swallowed",
	}, []string{"driver"})

	// FeedPublishFailures counts feed events that could not be published.
	FeedPublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedline_feed_publish_failures_total",
		Help: "Feed events that failed to publish",
	}, []string{"action"})

	// FeedEventsPublished counts feed events handed to the notification bus.
	FeedEventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedline_feed_events_published_total",
		Help: "Feed events published by action",
	}, []string{"action"})

	// WebSocketConnectionsTotal is the gauge of total WebSocket connections.
	WebSocketConnectionsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "feedline_websocket_connections_total",
		Help: "Total number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts messages dropped due to backpressure by hub and reason.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedline_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"hub", "reason"})

	// AuthAttempts counts login attempts by strategy and outcome.
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "feedline_auth_attempts_total",
		Help: "Login attempts by strategy and outcome",
	}, []string{"strategy", "outcome"})
)

// TrackQuery returns a function that records store latency when called (e.g. defer).
func TrackQuery(driver, operation, collection string) func() {
	start := time.Now()
	return func() {
		StoreQueryLatency.WithLabelValues(driver, operation, collection).Observe(time.Since(start).Seconds())
	}
}

// Outcome returns the metric label for an operation result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
