package mw

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"event-checkin-backend/internal/logger"
)

const (
	RequestIDKey    = "requestID"
	RequestIDHeader = "X-Request-ID"
	loggerKey       = "logger"
)

// RequestID generates a uuid per request and places it in context and header.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := uuid.New().String()
		c.Set(RequestIDKey, rid)
		c.Writer.Header().Set(RequestIDHeader, rid)
		c.Set(loggerKey, logger.WithFields(map[string]interface{}{"request_id": rid}))
		c.Next()
	}
}

// GetRequestLogger retrieves the request-scoped logger from context or the global logger.
func GetRequestLogger(c *gin.Context) *logrus.Entry {
	if v, ok := c.Get(loggerKey); ok {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}
	return logger.Log()
}
