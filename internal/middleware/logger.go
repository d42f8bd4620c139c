package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/notifyd/pkg/logger"
)

// Logger writes a concise structured access log for each request.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", duration),
			zap.String("client_ip", c.ClientIP()),
		}
		// Every notification route keys on a single :id segment (the user for
		// collection routes, the notification for mark-read); carry it so
		// delivery problems can be traced from access logs.
		if id := c.Param("id"); id != "" {
			fields = append(fields, zap.String("subject_id", id))
		}

		logger.WithModule("http").Info("request", fields...)
	}
}
