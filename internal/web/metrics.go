package web

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recentmessages_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "recentmessages_http_request_duration_seconds",
			Help: "HTTP request latencies in seconds.",
		},
		[]string{"endpoint", "method"},
	)

	httpRequestTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recentmessages_http_request_timeouts_total",
			Help: "Requests that were aborted after exceeding the configured request timeout.",
		},
		[]string{"endpoint"},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpRequestTimeouts)
}

// metricsMiddleware records request count and latency per route, keyed
// by the matched gin route template rather than the raw path so
// per-channel paths don't explode cardinality.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := c.Writer.Status()

		httpRequestDuration.WithLabelValues(endpoint, c.Request.Method).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(endpoint, c.Request.Method, fmt.Sprintf("%d", status)).Inc()
	}
}
