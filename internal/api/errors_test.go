package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/recitalhq/recital-api/internal/preview"
	"github.com/recitalhq/recital-api/internal/service"
	"github.com/recitalhq/recital-api/internal/service/auth"
	"github.com/recitalhq/recital-api/internal/session"
	"github.com/recitalhq/recital-api/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized},
		{"invalid credentials", auth.ErrInvalidCredentials, http.StatusUnauthorized},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"user not found", store.ErrUserNotFound, http.StatusNotFound},
		{"clip not found", store.ErrClipNotFound, http.StatusNotFound},
		{"service clip not found", service.ErrClipNotFound, http.StatusNotFound},
		{"session not found", session.ErrSessionNotFound, http.StatusNotFound},
		{"preview not found", preview.ErrHandleNotFound, http.StatusNotFound},
		{"email exists", store.ErrEmailExists, http.StatusConflict},
		{"invalid transition", session.ErrInvalidTransition, http.StatusConflict},
		{"no target", session.ErrNoTarget, http.StatusConflict},
		{"no permission", session.ErrNoPermission, http.StatusConflict},
		{"upload in flight", session.ErrUploadInFlight, http.StatusConflict},
		{"target mismatch", session.ErrTargetMismatch, http.StatusConflict},
		{"clip not completed", service.ErrClipNotCompleted, http.StatusConflict},
		{"take too large", session.ErrTakeTooLarge, http.StatusRequestEntityTooLarge},
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"invalid id", domain.ErrInvalidID, http.StatusBadRequest},
		{"empty script", domain.ErrEmptyScript, http.StatusBadRequest},
		{"empty take", service.ErrEmptyTake, http.StatusBadRequest},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, MapErrorToStatusCode(tt.err))
		})
	}
}

func TestMapErrorToStatusCodeWrapped(t *testing.T) {
	t.Parallel()

	// Service errors wrap their cause; mapping must see through them.
	wrapped := fmt.Errorf("confirm: %w", session.ErrTargetMismatch)
	assert.Equal(t, http.StatusConflict, MapErrorToStatusCode(wrapped))

	svcErr := &service.ServiceError{Operation: "confirm", Message: "upload rejected", Err: store.ErrClipNotFound}
	assert.Equal(t, http.StatusNotFound, MapErrorToStatusCode(svcErr))
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil error", nil, "An unexpected error occurred"},
		{"expired token", auth.ErrExpiredToken, "Invalid token"},
		{"clip not found", store.ErrClipNotFound, "Clip not found"},
		{"session not found", session.ErrSessionNotFound, "No active recording session"},
		{"target mismatch", session.ErrTargetMismatch, "Confirmed clip does not match the active target"},
		{"take too large", session.ErrTakeTooLarge, "Recording exceeds the size limit"},
		{"empty script", domain.ErrEmptyScript, "Script contains no recordable lines"},
		{"internal detail never leaks", errors.New("pq: connection refused host=10.0.0.3"), "An unexpected error occurred"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, GetSafeErrorMessage(tt.err))
		})
	}
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	err := errors.New(
		"Key: 'LoginRequest.Email' Error:Field validation for 'Email' failed on the 'required' tag")
	assert.Equal(t, "Invalid Email: required field", SanitizeValidationError(err))

	assert.Equal(t, "Validation error", SanitizeValidationError(errors.New("boom")))
}
