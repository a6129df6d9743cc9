package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var redactedHeaders = map[string]bool{
	"Authorization": true,
	"Cookie":        true,
	TokenHeader:     true,
}

// LoggingMiddleware logs HTTP requests
type LoggingMiddleware struct {
	logger     *logrus.Logger
	logHeaders bool
}

// LoggingOption configures the logging middleware
type LoggingOption func(*LoggingMiddleware)

// WithHeaderLogging enables logging of request headers
func WithHeaderLogging(enabled bool) LoggingOption {
	return func(m *LoggingMiddleware) {
		m.logHeaders = enabled
	}
}

// NewLoggingMiddleware creates a new logging middleware
func NewLoggingMiddleware(logger *logrus.Logger, opts ...LoggingOption) *LoggingMiddleware {
	m := &LoggingMiddleware{logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Logger returns a gin middleware function for logging requests
func (m *LoggingMiddleware) Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		statusCode := c.Writer.Status()
		fields := logrus.Fields{
			"status":     statusCode,
			"latency":    time.Since(start).String(),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"path":       path,
			"request_id": c.GetString(RequestIDKey),
		}

		if m.logHeaders {
			headers := make(map[string][]string, len(c.Request.Header))
			for k, v := range c.Request.Header {
				if redactedHeaders[k] {
					headers[k] = []string{"[REDACTED]"}
				} else {
					headers[k] = v
				}
			}
			fields["request_headers"] = headers
		}

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			fields["error"] = errorMessage
		}

		entry := m.logger.WithFields(fields)
		switch {
		case statusCode >= 500:
			entry.Error("Request processed with error")
		case statusCode >= 400:
			entry.Warn("Request processed with warning")
		default:
			entry.Debug("Request processed")
		}
	}
}

// RequestIDKey is the context key holding the request id
const RequestIDKey = "request_id"

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}
