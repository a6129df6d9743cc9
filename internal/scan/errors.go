package scan

import (
	"errors"
	"fmt"
)

var (
	// ErrNoScanner indicates the poller was created without a scanner API
	ErrNoScanner = errors.New("no scanner API configured")

	// ErrInvalidRequest indicates the scan request is incomplete
	ErrInvalidRequest = errors.New("invalid scan request")
)

// Error is returned when a scan fails for any reason other than the
// service still working on it.
type Error struct {
	// Image is the repository:tag that was requested
	Image string

	// Attempts is the number of scan requests issued before the failure
	Attempts int

	// Err is the underlying cause, usually a *client.APIError
	Err error
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("scan of %s failed after %d attempt(s): %v", e.Image, e.Attempts, e.Err)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}
