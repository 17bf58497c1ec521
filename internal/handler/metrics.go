package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tradeeval/internal/metrics"
)

// MetricsMiddleware records request latency keyed by route template.
func MetricsMiddleware(reg *metrics.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		reg.ObserveHTTP(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

func RegisterMetrics(r *gin.Engine, reg *metrics.Registry) {
	r.GET("/metrics", gin.WrapH(reg.Handler()))
}
