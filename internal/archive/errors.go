package archive

import "errors"

// ErrExtractionFailed is the sentinel wrapped by every extraction error.
var ErrExtractionFailed = errors.New("extraction failed")

// ExtractionError describes why an archive could not be unpacked.
type ExtractionError struct {
	Archive string // path of the archive being unpacked
	Reason  string // human-readable diagnostic, stored as the task message
	Err     error  // underlying error, if any
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	return e.Reason
}

// Unwrap returns ErrExtractionFailed joined with the underlying cause so both
// can be matched with errors.Is.
func (e *ExtractionError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExtractionFailed}
	}
	return []error{ErrExtractionFailed, e.Err}
}

func newExtractionError(archive, reason string, err error) *ExtractionError {
	return &ExtractionError{Archive: archive, Reason: reason, Err: err}
}
