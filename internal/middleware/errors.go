package middleware

import (
	"github.com/gin-gonic/gin"
)

// ErrorBody is the structured error body of the scanning service API
type ErrorBody struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// AbortWithError aborts the request with a structured error body
func AbortWithError(c *gin.Context, status, code int, errText, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Code:    code,
		Error:   errText,
		Message: message,
	})
}
