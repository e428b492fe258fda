package api

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/recitalhq/recital-api/internal/api/shared"
	"github.com/recitalhq/recital-api/internal/platform/logger"
	"github.com/recitalhq/recital-api/internal/service"
	"github.com/recitalhq/recital-api/internal/session"
)

// SessionHandler handles recording session lifecycle requests. Every
// endpoint responds with the session snapshot after the operation so the
// client can render without a follow-up fetch.
type SessionHandler struct {
	recordingService *service.RecordingService
	validator        *validator.Validate
	logger           *slog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(recordingService *service.RecordingService, log *slog.Logger) *SessionHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SessionHandler{
		recordingService: recordingService,
		validator:        validator.New(),
		logger:           log.With(slog.String("component", "session_handler")),
	}
}

// StartSession handles POST /api/session/start requests. Creates the user's
// session if none exists and targets the oldest pending clip.
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	h.respondSnapshot(w, r, func(userID uuid.UUID) (session.Snapshot, error) {
		return h.recordingService.StartSession(r.Context(), userID)
	})
}

// GetSession handles GET /api/session requests.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.respondSnapshot(w, r, func(userID uuid.UUID) (session.Snapshot, error) {
		return h.recordingService.Snapshot(r.Context(), userID)
	})
}

// ReportPermission handles POST /api/session/permission requests, recording
// the browser's microphone permission outcome.
func (h *SessionHandler) ReportPermission(w http.ResponseWriter, r *http.Request) {
	var req PermissionRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	h.respondSnapshot(w, r, func(userID uuid.UUID) (session.Snapshot, error) {
		return h.recordingService.ReportPermission(r.Context(), userID, *req.Granted)
	})
}

// Discard handles POST /api/session/discard requests, dropping the buffered
// take so the user can record again.
func (h *SessionHandler) Discard(w http.ResponseWriter, r *http.Request) {
	h.respondSnapshot(w, r, func(userID uuid.UUID) (session.Snapshot, error) {
		return h.recordingService.Discard(r.Context(), userID)
	})
}

// Confirm handles POST /api/session/confirm requests, persisting the
// buffered take against the named clip.
func (h *SessionHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	h.respondSnapshot(w, r, func(userID uuid.UUID) (session.Snapshot, error) {
		return h.recordingService.Confirm(r.Context(), userID, req.ClipID)
	})
}

// Rerecord handles POST /api/session/rerecord requests, switching the
// session into record mode targeting a completed clip.
func (h *SessionHandler) Rerecord(w http.ResponseWriter, r *http.Request) {
	var req RerecordRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	h.respondSnapshot(w, r, func(userID uuid.UUID) (session.Snapshot, error) {
		return h.recordingService.Rerecord(r.Context(), userID, req.ClipID)
	})
}

// CancelRerecord handles POST /api/session/rerecord/cancel requests,
// returning the session to review without touching the saved recording.
func (h *SessionHandler) CancelRerecord(w http.ResponseWriter, r *http.Request) {
	h.respondSnapshot(w, r, func(userID uuid.UUID) (session.Snapshot, error) {
		return h.recordingService.CancelRerecord(r.Context(), userID)
	})
}

// EnterReview handles POST /api/session/review requests.
func (h *SessionHandler) EnterReview(w http.ResponseWriter, r *http.Request) {
	h.respondSnapshot(w, r, func(userID uuid.UUID) (session.Snapshot, error) {
		return h.recordingService.EnterReview(r.Context(), userID)
	})
}

// EndSession handles DELETE /api/session requests, tearing down the user's
// session and releasing any buffered audio.
func (h *SessionHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	h.recordingService.EndSession(r.Context(), userID)
	w.WriteHeader(http.StatusNoContent)
}

// decodeAndValidate parses the JSON body into v and validates it, writing
// the error response on failure.
func (h *SessionHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := shared.DecodeJSON(r, v); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return false
	}
	if err := h.validator.Struct(v); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return false
	}
	return true
}

// respondSnapshot runs op for the authenticated user and writes the
// resulting snapshot, mapping errors to status codes.
func (h *SessionHandler) respondSnapshot(
	w http.ResponseWriter,
	r *http.Request,
	op func(userID uuid.UUID) (session.Snapshot, error),
) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	snap, err := op(userID)
	if err != nil {
		if MapErrorToStatusCode(err) >= http.StatusInternalServerError {
			log.Error("session operation failed", "error", err, "user_id", userID)
		}
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, snapshotToResponse(snap))
}
