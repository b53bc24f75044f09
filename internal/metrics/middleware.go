package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// HTTPMetricsMiddleware собирает метрики для HTTP запросов API маршрутов.
// Запросы к /metrics не учитываются.
func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		endpoint := c.FullPath()
		if endpoint == "/metrics" {
			c.Next()
			return
		}
		if endpoint == "" {
			endpoint = "unmatched"
		}

		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		labels := []string{c.Request.Method, endpoint, status}
		HTTPRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(labels...).Inc()
	}
}
