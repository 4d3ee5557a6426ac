package middleware

import (
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var quietPaths = map[string]bool{
	"/health":  true,
	"/ready":   true,
	"/metrics": true,
}

// RequestLogger logs one structured line per request
func RequestLogger(logger *logrus.Logger, slowThreshold time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if quietPaths[path] {
			return
		}

		latency := time.Since(start)
		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"request_id":    requestid.Get(c),
			"method":        c.Request.Method,
			"path":          path,
			"route":         c.FullPath(),
			"status_code":   status,
			"latency_ms":    latency.Milliseconds(),
			"client_ip":     c.ClientIP(),
			"user_agent":    c.Request.UserAgent(),
			"response_size": c.Writer.Size(),
		})
		if username := c.GetString("username"); username != "" {
			entry = entry.WithField("username", username)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			entry.Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		case slowThreshold > 0 && latency > slowThreshold:
			entry.WithField("slow_request", true).Warn("Slow request detected")
		default:
			entry.Info("Request completed")
		}
	}
}

// Recovery turns panics into 500 responses and logs them
func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.WithFields(logrus.Fields{
			"request_id": requestid.Get(c),
			"path":       c.Request.URL.Path,
			"panic":      recovered,
		}).Error("Panic recovered")
		c.AbortWithStatusJSON(500, gin.H{"error": gin.H{"code": "INTERNAL_ERROR", "message": "Internal server error"}})
	})
}
