package middleware

import (
	"io"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Recovery turns handler panics into a structured 500. Broken client
// connections are detected by gin and only aborted.
func Recovery(logger *logrus.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		entry := logger.WithFields(logrus.Fields{
			"panic":      recovered,
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"request_id": c.GetString(RequestIDKey),
		})
		if logger.IsLevelEnabled(logrus.DebugLevel) {
			entry = entry.WithField("stack", string(debug.Stack()))
		}
		entry.Error("Handler panicked")

		AbortWithError(c, http.StatusInternalServerError, CodeInternal, "Internal Server Error", "")
	})
}
