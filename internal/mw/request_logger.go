package mw

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs basic request information along with the request_id.
// readerHeader, when set, adds the scanning device's id to the entry.
func RequestLogger(readerHeader string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := map[string]interface{}{
			"status":  c.Writer.Status(),
			"method":  c.Request.Method,
			"path":    SanitizePath(c.Request.URL.Path),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		}
		if readerHeader != "" {
			if reader := c.GetHeader(readerHeader); reader != "" {
				fields["reader"] = SanitizeForLog(reader)
			}
		}
		GetRequestLogger(c).WithFields(fields).Info("handled request")
	}
}
