package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wildsight/antler/pkg/metrics"
)

var (
	httpRequestsTotal   = metrics.NewCounterVec("http_requests", "HTTP requests by method, route and status", []string{"method", "route", "status"})
	httpInFlight        = metrics.NewGaugeVec("http_requests_in_flight", "HTTP requests currently being served", []string{"method"})
	httpRequestDuration = metrics.NewTimer("http_request_duration", "HTTP request latency in seconds", []string{"method", "route"})
)

// HandleMetrics records request count, in-flight gauge and latency for
// every route in the group.
func HandleMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		httpInFlight.Inc(method)
		observe := httpRequestDuration.Timer()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.Inc(method, route, strconv.Itoa(c.Writer.Status()))
		observe(method, route)
		httpInFlight.Dec(method)
	}
}
