// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedArchive is returned when an uploaded file is not a .zip or .rar archive.
	ErrUnsupportedArchive = errors.New("unsupported archive format")

	// ErrInvalidTransition is returned when a task is asked to move to a state
	// its current state does not lead to.
	ErrInvalidTransition = errors.New("invalid task status transition")

	// ErrEmptyTaskID is returned when a task has a nil identifier.
	ErrEmptyTaskID = errors.New("task ID cannot be empty")

	// ErrInvalidTaskStatus is returned when a task status is not one of the known values.
	ErrInvalidTaskStatus = errors.New("invalid task status")
)
