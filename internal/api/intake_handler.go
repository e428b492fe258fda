package api

import (
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/recitalhq/recital-api/internal/api/shared"
	"github.com/recitalhq/recital-api/internal/platform/logger"
	"github.com/recitalhq/recital-api/internal/service"
)

// IntakeHandler handles script submission requests.
type IntakeHandler struct {
	intakeService *service.IntakeService
	validator     *validator.Validate
	logger        *slog.Logger
}

// NewIntakeHandler creates a new IntakeHandler.
func NewIntakeHandler(intakeService *service.IntakeService, log *slog.Logger) *IntakeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &IntakeHandler{
		intakeService: intakeService,
		validator:     validator.New(),
		logger:        log.With(slog.String("component", "intake_handler")),
	}
}

// SubmitScript handles POST /api/scripts requests. The pasted script is split
// into lines and each becomes a pending clip.
func (h *IntakeHandler) SubmitScript(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req SubmitScriptRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, SanitizeValidationError(err))
		return
	}

	clips, err := h.intakeService.SubmitScript(r.Context(), userID, req.Script)
	if err != nil {
		log.Debug("script submission rejected", "error", err, "user_id", userID)
		HandleAPIError(w, r, err, "")
		return
	}

	resp := SubmitScriptResponse{Clips: make([]ClipResponse, 0, len(clips))}
	for _, clip := range clips {
		resp.Clips = append(resp.Clips, clipToResponse(clip))
	}

	shared.RespondWithJSON(w, r, http.StatusCreated, resp)
}
