package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/recitalhq/recital-api/internal/api/shared"
	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/recitalhq/recital-api/internal/preview"
	"github.com/recitalhq/recital-api/internal/service"
	"github.com/recitalhq/recital-api/internal/service/auth"
	"github.com/recitalhq/recital-api/internal/session"
	"github.com/recitalhq/recital-api/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, store.ErrUserNotFound),
		errors.Is(err, store.ErrClipNotFound),
		errors.Is(err, service.ErrClipNotFound),
		errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, preview.ErrHandleNotFound):
		return http.StatusNotFound

	// Conflict errors: the operation is well-formed but the session or clip
	// is not in a state that allows it.
	case errors.Is(err, store.ErrEmailExists),
		errors.Is(err, session.ErrInvalidTransition),
		errors.Is(err, session.ErrNoTarget),
		errors.Is(err, session.ErrNoPermission),
		errors.Is(err, session.ErrUploadInFlight),
		errors.Is(err, session.ErrTargetMismatch),
		errors.Is(err, service.ErrClipNotCompleted):
		return http.StatusConflict

	// Payload limits
	case errors.Is(err, session.ErrTakeTooLarge):
		return http.StatusRequestEntityTooLarge

	// Bad request errors
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrEmptyScript),
		errors.Is(err, store.ErrInvalidEntity),
		errors.Is(err, service.ErrEmptyTake):
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

	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken):
		return "Invalid token"

	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid credentials"

	case errors.Is(err, domain.ErrUnauthorized):
		return "Unauthorized"

	case errors.Is(err, store.ErrUserNotFound):
		return "User not found"

	case errors.Is(err, store.ErrClipNotFound),
		errors.Is(err, service.ErrClipNotFound):
		return "Clip not found"

	case errors.Is(err, session.ErrSessionNotFound):
		return "No active recording session"

	case errors.Is(err, preview.ErrHandleNotFound):
		return "Preview not found"

	case errors.Is(err, store.ErrEmailExists):
		return "Email already exists"

	case errors.Is(err, session.ErrInvalidTransition):
		return "Operation not allowed in current session state"

	case errors.Is(err, session.ErrNoTarget):
		return "No clip selected for recording"

	case errors.Is(err, session.ErrNoPermission):
		return "Microphone permission not granted"

	case errors.Is(err, session.ErrUploadInFlight):
		return "An upload is already in progress"

	case errors.Is(err, session.ErrTargetMismatch):
		return "Confirmed clip does not match the active target"

	case errors.Is(err, session.ErrTakeTooLarge):
		return "Recording exceeds the size limit"

	case errors.Is(err, service.ErrClipNotCompleted):
		return "Clip has no recording to replace"

	case errors.Is(err, service.ErrEmptyTake):
		return "Recording is empty"

	case errors.Is(err, domain.ErrEmptyScript):
		return "Script contains no recordable lines"

	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, store.ErrInvalidEntity):
		return "Invalid request data"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError maps the error to a status code and safe message and writes
// the response, logging the underlying error. An empty overrideMessage keeps
// the mapped safe message.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, overrideMessage string) {
	status := MapErrorToStatusCode(err)
	message := overrideMessage
	if message == "" {
		message = GetSafeErrorMessage(err)
	}
	shared.RespondWithErrorAndLog(w, r, status, message, err)
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	if strings.Contains(errMsg, "Field validation") {
		// Example format: "Key: 'LoginRequest.Email' Error:Field validation
		// for 'Email' failed on the 'required' tag"
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
	case "email":
		return "invalid email format"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
