// Package service provides the application-level operations: script intake,
// the recording session workflow, and the confirm/upload coordinator.
package service

import (
	"errors"
	"fmt"

	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/recitalhq/recital-api/internal/session"
	"github.com/recitalhq/recital-api/internal/store"
)

// Sentinel errors callers may check with errors.Is. The API layer maps these
// to HTTP status codes.
var (
	// ErrClipNotFound indicates the referenced clip does not exist.
	ErrClipNotFound = errors.New("clip not found")

	// ErrClipNotCompleted indicates a re-record was requested for a clip that
	// has no recording yet.
	ErrClipNotCompleted = errors.New("clip has no recording to replace")
)

// ServiceError wraps errors from the service layer with operation context.
type ServiceError struct {
	// Operation is the operation that failed (e.g., "submit_script").
	Operation string
	// Message is a human-readable description of the error.
	Message string
	// Err is the underlying error that caused the failure.
	Err error
}

// Error implements the error interface for ServiceError.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// newServiceError wraps err with operation context. Known sentinel errors
// pass through unwrapped so callers can match them directly.
func newServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, domain.ErrEmptyScript),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrNoTarget),
		errors.Is(err, session.ErrNoPermission),
		errors.Is(err, session.ErrUploadInFlight),
		errors.Is(err, session.ErrTargetMismatch),
		errors.Is(err, session.ErrTakeTooLarge),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, ErrClipNotFound),
		errors.Is(err, ErrClipNotCompleted),
		errors.Is(err, ErrEmptyTake):
		return err
	case errors.Is(err, store.ErrClipNotFound):
		return ErrClipNotFound
	}

	return &ServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
