package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wildsight/antler/pkg/logger/log"
)

func HandleLogging() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		log.WithFields(log.Fields{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"client_ip":  c.ClientIP(),
			"duration":   time.Since(startTime).String(),
			"user_agent": c.Request.UserAgent(),
		}).Info("HTTP request completed")
	}
}
