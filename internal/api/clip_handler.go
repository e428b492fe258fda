package api

import (
	"log/slog"
	"net/http"

	"github.com/recitalhq/recital-api/internal/api/shared"
	"github.com/recitalhq/recital-api/internal/platform/logger"
	"github.com/recitalhq/recital-api/internal/store"
)

// ClipHandler serves read-only clip collection queries.
type ClipHandler struct {
	clipStore store.ClipStore
	logger    *slog.Logger
}

// NewClipHandler creates a new ClipHandler.
func NewClipHandler(clipStore store.ClipStore, log *slog.Logger) *ClipHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ClipHandler{
		clipStore: clipStore,
		logger:    log.With(slog.String("component", "clip_handler")),
	}
}

// GetCompleted handles GET /api/clips/completed requests, returning the
// user's completed clips newest first.
func (h *ClipHandler) GetCompleted(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	clips, err := h.clipStore.ListCompleted(r.Context(), userID)
	if err != nil {
		log.Error("failed to list completed clips", "error", err, "user_id", userID)
		HandleAPIError(w, r, err, "Failed to list completed clips")
		return
	}

	resp := make([]ClipResponse, 0, len(clips))
	for _, clip := range clips {
		resp = append(resp, clipToResponse(clip))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// GetNextPending handles GET /api/clips/next requests. Responds 404 when no
// pending clip remains.
func (h *ClipHandler) GetNextPending(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	clip, err := h.clipStore.NextPending(r.Context(), userID)
	if err != nil {
		if !store.IsNotFoundError(err) {
			log.Error("failed to get next pending clip", "error", err, "user_id", userID)
		}
		HandleAPIError(w, r, err, "")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, clipToResponse(clip))
}

// GetCounts handles GET /api/clips/counts requests.
func (h *ClipHandler) GetCounts(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	counts, err := h.clipStore.Counts(r.Context(), userID)
	if err != nil {
		log.Error("failed to count clips", "error", err, "user_id", userID)
		HandleAPIError(w, r, err, "Failed to count clips")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, CountsResponse{
		Total:     counts.Total,
		Completed: counts.Completed,
	})
}
