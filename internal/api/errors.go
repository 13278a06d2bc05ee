package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/ortho-api/internal/domain"
	"github.com/phrazzld/ortho-api/internal/service"
	"github.com/phrazzld/ortho-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	var notReady *service.TaskNotReadyError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge

	// Not found errors
	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskNotFound),
		errors.Is(err, service.ErrResultMissing):
		return http.StatusNotFound

	// Bad request errors
	case errors.Is(err, domain.ErrUnsupportedArchive),
		errors.Is(err, domain.ErrValidation),
		errors.As(err, &notReady):
		return http.StatusBadRequest

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	if err == nil {
		return "An unexpected error occurred"
	}

	var notReady *service.TaskNotReadyError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &tooLarge):
		return fmt.Sprintf("File too large: limit is %d bytes", tooLarge.Limit)

	case errors.Is(err, service.ErrTaskNotFound),
		errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, service.ErrResultMissing):
		return "File not found"

	case errors.As(err, &notReady):
		return fmt.Sprintf("Status: %s", notReady.Status)

	case errors.Is(err, domain.ErrUnsupportedArchive):
		return "Only ZIP and RAR files are supported"

	case errors.Is(err, domain.ErrValidation):
		return "Invalid request"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Example format: "Key: 'UploadRequest.Filename' Error:Field validation for 'Filename' failed on the 'required' tag"
	if strings.Contains(errMsg, "Field validation") {
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	return "Validation error"
}

func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "max":
		return "too long"
	case "excludesall":
		return "contains invalid characters"
	default:
		return "validation failed"
	}
}
