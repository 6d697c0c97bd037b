// internal/middleware/logging_middleware.go
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"labware-service/internal/utils"
)

// LoggingMiddleware logs every request except those to quiet paths, such as
// probes and the metrics scrape, which are only logged when they fail
func LoggingMiddleware(logger *utils.ServiceLogger, quiet ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		skip[p] = true
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()
		if skip[path] && status < 400 {
			return
		}

		logger.LogAPIRequest(utils.APIRequest{
			Method:    c.Request.Method,
			Path:      path,
			Status:    status,
			Duration:  time.Since(start),
			ClientIP:  c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			RequestID: c.GetString("request_id"),
			Device:    c.Param("name"),
		})
	}
}
