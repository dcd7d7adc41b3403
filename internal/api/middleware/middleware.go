package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger is a request logging middleware
func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Start timer
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		// Process request
		c.Next()

		latency := time.Since(start)
		if raw != "" {
			path = path + "?" + raw
		}

		c.Writer.Header().Set("X-Response-Time", latency.String())

		// Probes and scrapes are noisy
		level := slog.LevelInfo
		if path == "/healthz" || path == "/metrics" {
			level = slog.LevelDebug
		}
		logger.Log(c.Request.Context(), level, "http_request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", latency.String(),
			"ip", c.ClientIP(),
		)
	}
}

// ReadOnly rejects every method other than GET and HEAD.
func ReadOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "GET", "HEAD":
			c.Next()
		default:
			c.Header("Allow", "GET, HEAD")
			c.AbortWithStatusJSON(405, gin.H{
				"error": "Method not allowed",
			})
		}
	}
}
