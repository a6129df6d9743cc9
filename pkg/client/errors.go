package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// MethodNotAllowedError is the error text the service returns on the probe
// while it is reachable but not ready yet.
const MethodNotAllowedError = "Method not allowed"

// errorBody is the structured error body returned by the scanning service
type errorBody struct {
	Code    int    `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// APIError is returned for every non-2xx response of the scanning service.
type APIError struct {
	// StatusCode is the HTTP status of the response
	StatusCode int

	// Code is the service specific error code, zero when absent
	Code int

	// ErrorText is the short error reported by the service
	ErrorText string

	// Message is the detailed message reported by the service
	Message string

	structured bool
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var eb errorBody
	if len(body) > 0 && json.Unmarshal(body, &eb) == nil {
		if eb.Code != 0 || eb.Error != "" || eb.Message != "" {
			apiErr.Code = eb.Code
			apiErr.ErrorText = eb.Error
			apiErr.Message = eb.Message
			apiErr.structured = true
		}
	}

	return apiErr
}

// Structured reports whether the service sent an error body
func (e *APIError) Structured() bool {
	return e.structured
}

// Error formats the diagnostic as "API Error <code> <error> : <message>", or
// "API Error with HTTP status <status>" when there is no structured body.
func (e *APIError) Error() string {
	if !e.structured {
		return fmt.Sprintf("API Error with HTTP status %d", e.StatusCode)
	}

	var sb strings.Builder
	sb.WriteString("API Error")
	if e.Code != 0 {
		fmt.Fprintf(&sb, " %d", e.Code)
	}
	if e.ErrorText != "" {
		sb.WriteString(" " + e.ErrorText)
	}
	if e.Message != "" {
		sb.WriteString(" : " + e.Message)
	}
	return sb.String()
}

// Reason returns the shortest description of the failure, used as the task result
func (e *APIError) Reason() string {
	if e.ErrorText != "" {
		return e.ErrorText
	}
	return http.StatusText(e.StatusCode)
}

// IsNotModified reports whether err is a 304 answer of the scan endpoint,
// meaning the scan is still running.
func IsNotModified(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotModified
}

// IsNotReady reports whether err is the probe answer of a service that is
// reachable but not ready yet.
func IsNotReady(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		apiErr.StatusCode == http.StatusMethodNotAllowed &&
		apiErr.ErrorText == MethodNotAllowedError
}

// StatusCode extracts the HTTP status of an *APIError, or zero
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
