package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"facility-alerting/internal/logging"
)

func RequestLoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		log := logger.WithFields(map[string]interface{}{"status": status, "latency": latency})
		switch {
		case status >= 500:
			log.Errorf("Request: %s %s", method, path)
		case status >= 400:
			log.Warnf("Request: %s %s", method, path)
		default:
			log.Infof("Request: %s %s", method, path)
		}
	}
}
