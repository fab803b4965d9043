package sdk_server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mattiabonardi/endor-odm-go/pkg/sdk"
)

const (
	RequestIDHeader = "X-Request-Id"

	requestIDKey = "endor.requestId"
	loggerKey    = "endor.logger"
)

// RequestID propagates the caller's X-Request-Id, or generates one, and attaches a
// logger carrying it to the request.
func RequestID(logger *sdk.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Set(loggerKey, logger.With(sdk.LogContext{RequestID: id}))
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AccessLog logs completed requests at debug level and 5xx responses at warn level.
// Client errors stay at debug; Fail already logs them with their cause.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger := Context(c).Logger
		fields := map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      c.Writer.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.WarnWithFields("Request completed", fields)
			return
		}
		logger.DebugWithFields("Request completed", fields)
	}
}
