package middleware

import (
	"time"

	"github.com/gepvi/gepvi-users/internal/logger"
	"github.com/gepvi/gepvi-users/internal/types"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func RequestIDMiddleware(c *gin.Context) {
	requestID := c.GetHeader(types.HeaderRequestID)
	if requestID == "" {
		requestID = uuid.New().String()
	}

	c.Request = c.Request.WithContext(types.SetRequestID(c.Request.Context(), requestID))
	c.Header(types.HeaderRequestID, requestID)

	c.Next()
}

// LoggingMiddleware writes one access log line per request
func LoggingMiddleware(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.FullPath() == "/health" {
			return
		}

		log.Infow("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
			"request_id", types.GetRequestID(c.Request.Context()),
			"caller", types.GetCallerID(c.Request.Context()),
		)
	}
}
