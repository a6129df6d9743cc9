package policy

import (
	"strings"

	"github.com/threatflux/scangate/internal/models"
)

// ViolationError is returned when a report fails its policy. It carries
// every failure reason, not only the first.
type ViolationError struct {
	Image   string
	Reasons []string
}

// NewViolationError builds the error for a failed evaluation, or returns nil
// when the evaluation passed.
func NewViolationError(image string, result models.EvaluationResult) error {
	if result.Passed {
		return nil
	}
	return &ViolationError{Image: image, Reasons: append([]string(nil), result.FailureReasons...)}
}

// Error implements the error interface
func (e *ViolationError) Error() string {
	return "policy check failed for " + e.Image + ": " + strings.Join(e.Reasons, "; ")
}
