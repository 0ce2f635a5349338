// Package metrics holds the Prometheus collectors shared by the server.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testcasegpt_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "testcasegpt_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	gatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testcasegpt_llm_calls_total",
			Help: "LLM gateway calls by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	gatewayDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "testcasegpt_llm_call_duration_seconds",
			Help:    "LLM gateway call latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		},
		[]string{"provider"},
	)

	fallbackAnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "testcasegpt_sql_fallback_total",
			Help: "Chat-to-SQL answers served by the keyword fallback, by reason.",
		},
		[]string{"reason"},
	)

	contextItems = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "testcasegpt_context_items",
			Help: "Table summaries currently held in the context store.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		gatewayCallsTotal,
		gatewayDurationSeconds,
		fallbackAnswersTotal,
		contextItems,
	)
}

// GinMiddleware counts requests by route template rather than raw path.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}

// ObserveGateway records one gateway call. Calls that never reached the
// network are counted but not timed.
func ObserveGateway(provider, outcome string, elapsed time.Duration) {
	gatewayCallsTotal.WithLabelValues(provider, outcome).Inc()
	if elapsed > 0 {
		gatewayDurationSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
	}
}

func ObserveFallback(reason string) {
	fallbackAnswersTotal.WithLabelValues(reason).Inc()
}

func SetContextItems(n int) {
	contextItems.Set(float64(n))
}
