// Package observability exposes Prometheus metrics shared by all three
// binaries.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	cacheOpTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_op_total",
			Help: "Cache store operations by outcome.",
		},
		[]string{"op", "outcome"},
	)

	cacheOpDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cache_op_duration_seconds",
			Help:    "Duration of cache store operations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_results_total",
			Help: "Grid cell lookups by outcome.",
		},
		[]string{"outcome"},
	)

	invalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "invalidation_messages_total",
			Help: "Invalidation messages by processing result.",
		},
		[]string{"result"},
	)

	invalidationLagSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "invalidation_lag_seconds",
			Help: "Age of the most recently consumed invalidation message.",
		},
	)

	publishDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "publish_drops_total",
			Help: "Messages dropped on the publish path.",
		},
		[]string{"topic", "reason"},
	)

	chatFanoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_fanout_total",
			Help: "Chat messages relayed by stage.",
		},
		[]string{"stage"},
	)

	wsConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Currently open WebSocket connections on this instance.",
		},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveCacheOp(op string, err error, durationSeconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	cacheOpTotal.WithLabelValues(op, outcome).Inc()
	cacheOpDurationSeconds.WithLabelValues(op).Observe(durationSeconds)
}

func AddCacheHits(n int) {
	if n > 0 {
		cacheResults.WithLabelValues("hit").Add(float64(n))
	}
}

func AddCacheMisses(n int) {
	if n > 0 {
		cacheResults.WithLabelValues("miss").Add(float64(n))
	}
}

func IncInvalidation(result string) {
	invalidationsTotal.WithLabelValues(result).Inc()
}

func SetInvalidationLagSeconds(lag float64) {
	invalidationLagSeconds.Set(lag)
}

func IncPublishDrop(topic, reason string) {
	publishDropsTotal.WithLabelValues(topic, reason).Inc()
}

func IncChatFanout(stage string) {
	chatFanoutTotal.WithLabelValues(stage).Inc()
}

func IncWSConnections() { wsConnections.Inc() }
func DecWSConnections() { wsConnections.Dec() }

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
