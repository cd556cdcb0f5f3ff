package adminhttp

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// requestLogger is a gin adaptation of the teacher's net/http HTTPLogger
// middleware (internal/middleware/http.go): same fields, same
// one-line-per-request shape, ported to gin's own response-status capture
// instead of a hand-rolled http.ResponseWriter wrapper.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("admin http request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("duration", time.Since(start)))
	}
}

// requestMetrics ports the teacher's package-level http_requests_total
// CounterVec (internal/middleware/metrics.go) into a per-engine metric
// registered against this server's own Registerer, rather than the
// process-global prometheus.DefaultRegisterer the teacher registers
// against — the admin surface's Registerer may be nil in tests, and a
// package-level MustRegister would panic the second test builds a second
// engine in the same process.
func requestMetrics(reg *prometheus.Registry) gin.HandlerFunc {
	if reg == nil {
		return func(c *gin.Context) { c.Next() }
	}

	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatchbox",
		Subsystem: "admin_http",
		Name:      "requests_total",
		Help:      "Number of admin HTTP requests",
	}, []string{"path", "method", "status"})
	reg.MustRegister(counter)

	return func(c *gin.Context) {
		c.Next()
		counter.WithLabelValues(c.FullPath(), c.Request.Method, statusClass(c.Writer.Status())).Inc()
	}
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
