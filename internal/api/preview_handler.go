package api

import (
	"log/slog"
	"net/http"

	"github.com/recitalhq/recital-api/internal/api/shared"
	"github.com/recitalhq/recital-api/internal/platform/logger"
	"github.com/recitalhq/recital-api/internal/preview"
)

// PreviewHandler serves buffered takes for playback before confirmation.
type PreviewHandler struct {
	previews *preview.Registry
	logger   *slog.Logger
}

// NewPreviewHandler creates a new PreviewHandler.
func NewPreviewHandler(previews *preview.Registry, log *slog.Logger) *PreviewHandler {
	if log == nil {
		log = slog.Default()
	}
	return &PreviewHandler{
		previews: previews,
		logger:   log.With(slog.String("component", "preview_handler")),
	}
}

// GetPreview handles GET /api/previews/{id} requests, streaming the buffered
// audio bytes. Previews are in-memory handles and disappear when the take is
// confirmed, discarded, or superseded.
func (h *PreviewHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	if _, ok := getUserIDFromContext(r); !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	id, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "Invalid preview ID")
		return
	}

	handle, err := h.previews.Get(id)
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	w.Header().Set("Content-Type", handle.ContentType)
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(handle.Audio); err != nil {
		log.Debug("failed to write preview audio", "error", err, "preview_id", id)
	}
}
