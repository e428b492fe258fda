package session

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/recitalhq/recital-api/internal/events"
	"github.com/recitalhq/recital-api/internal/store"
)

// PreviewReleaser releases preview handles the reconciler invalidates.
type PreviewReleaser interface {
	Release(id uuid.UUID)
}

// Reconciler keeps every active session's cached view of the clip collection
// consistent with the change feed. It refreshes on every clip event,
// regardless of which clip changed; detecting exactly which sessions a
// change affects is not worth the bookkeeping.
type Reconciler struct {
	sessions *Manager
	clips    store.ClipStore
	previews PreviewReleaser
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler over the given sessions and clip store.
func NewReconciler(sessions *Manager, clips store.ClipStore, previews PreviewReleaser, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		sessions: sessions,
		clips:    clips,
		previews: previews,
		logger:   logger.With(slog.String("component", "session_reconciler")),
	}
}

// Ensure Reconciler implements the clip event handler interface.
var _ events.ClipHandler = (*Reconciler)(nil)

// HandleClipEvent refreshes every session's cached counts and next pending
// clip, plus the completed list for sessions in review mode. A session whose
// re-record target was changed externally is kicked back to review mode.
func (r *Reconciler) HandleClipEvent(ctx context.Context, event *events.ClipEvent) {
	changedID := event.ClipID()

	for _, sess := range r.sessions.All() {
		if released, affected := sess.ClearRerecordTarget(changedID); affected {
			if released != uuid.Nil {
				r.previews.Release(released)
			}
			r.logger.Info("re-record target changed externally, session returned to review",
				slog.String("user_id", sess.UserID().String()),
				slog.String("clip_id", changedID.String()))
		}

		r.Refresh(ctx, sess)
	}
}

// Refresh re-fetches the session's counts, next pending clip, and (in review
// mode) completed list. Fetch failures leave the previous cached view in
// place and are logged, not surfaced; the next event retries naturally.
func (r *Reconciler) Refresh(ctx context.Context, sess *Session) {
	userID := sess.UserID()

	counts, err := r.clips.Counts(ctx, userID)
	if err != nil {
		r.logger.Error("failed to refresh clip counts",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return
	}

	var next *domain.Clip
	next, err = r.clips.NextPending(ctx, userID)
	if err != nil && !store.IsNotFoundError(err) {
		r.logger.Error("failed to refresh next pending clip",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return
	}

	sess.UpdateView(counts, next)

	if sess.Mode() == ModeReview {
		completed, err := r.clips.ListCompleted(ctx, userID)
		if err != nil {
			r.logger.Error("failed to refresh completed list",
				slog.String("error", err.Error()),
				slog.String("user_id", userID.String()))
			return
		}
		sess.UpdateCompleted(completed)
	}
}
