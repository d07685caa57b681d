// Package metrics provides Prometheus instrumentation for the Callgate service.
package metrics

import (
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callgate",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "callgate",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// CallsTotal counts screened inbound calls by decision.
	// Decisions: admitted, rejected, failed_closed.
	CallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callgate",
			Name:      "calls_total",
			Help:      "Total inbound calls screened, by admission decision.",
		},
		[]string{"decision"},
	)

	// InsightRequestsTotal counts number-insight lookups by outcome.
	// Outcomes: ok, timeout, unauthorized, malformed, error.
	InsightRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callgate",
			Name:      "insight_requests_total",
			Help:      "Total risk-scoring lookups by outcome.",
		},
		[]string{"outcome"},
	)

	// InsightRequestDuration observes risk-scoring lookup latency.
	InsightRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "callgate",
			Name:      "insight_request_duration_seconds",
			Help:      "Risk-scoring lookup duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// RecordingsTotal counts recording relays by outcome.
	// Outcomes: ok, fetch_failed, write_failed.
	RecordingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "callgate",
			Name:      "recordings_total",
			Help:      "Total recording relays by outcome.",
		},
		[]string{"outcome"},
	)

	// PlaybacksTotal counts playback (stream) instructions emitted.
	PlaybacksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "callgate",
			Name:      "playbacks_total",
			Help:      "Total playback instructions emitted on keypad input.",
		},
	)

	// ActiveSessions tracks currently resident call sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "callgate",
			Name:      "active_sessions",
			Help:      "Number of call sessions currently resident in the registry.",
		},
	)

	// SessionsReapedTotal counts sessions evicted by the TTL reaper.
	SessionsReapedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "callgate",
			Name:      "sessions_reaped_total",
			Help:      "Total call sessions evicted after their TTL elapsed.",
		},
	)

	// ActiveFeedClients tracks connected operator feed WebSocket clients.
	ActiveFeedClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "callgate",
			Name:      "active_feed_clients",
			Help:      "Number of currently connected operator feed clients.",
		},
	)

	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "callgate", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		CallsTotal,
		InsightRequestsTotal,
		InsightRequestDuration,
		RecordingsTotal,
		PlaybacksTotal,
		ActiveSessions,
		SessionsReapedTotal,
		ActiveFeedClients,
		GoroutineCount,
	)
}

// Middleware returns a gin middleware that records request counts and latency.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus scrape endpoint as a gin handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		GoroutineCount.Set(float64(runtime.NumGoroutine()))
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups status codes into classes (2xx, 3xx, 4xx, 5xx) to
// keep label cardinality low.
func statusBucket(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
