package webodm

import (
	"errors"
	"fmt"
)

// Error definitions for the webodm package.
var (
	// ErrSubmitFailed is wrapped by every error returned from Submit.
	ErrSubmitFailed = errors.New("remote submit failed")

	// ErrFetchFailed is wrapped by every error returned from Fetch.
	ErrFetchFailed = errors.New("remote download failed")

	// ErrInvalidConfig is returned when the client is constructed with unusable settings.
	ErrInvalidConfig = errors.New("invalid remote client configuration")
)

// SubmitError describes a rejected or failed submission. Its message is safe
// to show to users: it never contains the access token.
type SubmitError struct {
	StatusCode int    // HTTP status returned by the remote service, 0 for transport errors
	Reason     string // redacted description
	Err        error  // underlying transport error, if any
}

// Error implements the error interface.
func (e *SubmitError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("Error: %d", e.StatusCode)
}

// Unwrap exposes ErrSubmitFailed and the underlying cause to errors.Is/As.
func (e *SubmitError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrSubmitFailed}
	}
	return []error{ErrSubmitFailed, e.Err}
}
