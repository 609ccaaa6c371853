package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fairclaim/protest-engine/internal/infrastructure/monitoring/prometheus"
)

// Metrics records per-request counters and latency histograms.  The route
// template (c.FullPath) is used instead of the raw path to keep label
// cardinality bounded.
func Metrics(metrics *prometheus.AppMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		prometheus.RecordHTTPRequest(metrics, c.Request.Method, route,
			c.Writer.Status(), time.Since(start))
	}
}
