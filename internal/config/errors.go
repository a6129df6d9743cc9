package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrInvalidConfig is wrapped by every configuration error
var ErrInvalidConfig = errors.New("invalid configuration")

// ValidationResult holds validation results
type ValidationResult struct {
	Errors []ValidationError
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
}

// ConfigurationError is returned when the configuration cannot be used.
// It is raised before any network call is made.
type ConfigurationError struct {
	Errors []ValidationError
}

// NewConfigurationError creates an error for a single field
func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Errors: []ValidationError{{Field: field, Message: message}}}
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, fmt.Sprintf("%s: %s", err.Field, err.Message))
	}
	return fmt.Sprintf("configuration validation failed: %s", strings.Join(msgs, "; "))
}

// Unwrap lets errors.Is match ErrInvalidConfig
func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfig
}

// HasField reports whether the given field failed validation
func (e *ConfigurationError) HasField(field string) bool {
	for _, err := range e.Errors {
		if err.Field == field {
			return true
		}
	}
	return false
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
