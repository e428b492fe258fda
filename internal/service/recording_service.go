package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/recitalhq/recital-api/internal/events"
	"github.com/recitalhq/recital-api/internal/platform/logger"
	"github.com/recitalhq/recital-api/internal/preview"
	"github.com/recitalhq/recital-api/internal/session"
	"github.com/recitalhq/recital-api/internal/store"
	"github.com/recitalhq/recital-api/internal/task"
)

// ErrEmptyTake indicates a capture ended without buffering any audio.
var ErrEmptyTake = errors.New("recorded take is empty")

// RecordingStorage persists confirmed takes and returns their public URL.
type RecordingStorage interface {
	Save(ctx context.Context, clipID uuid.UUID, audio []byte, contentType string) (string, error)
}

// RecordingService drives the per-user recording session: target selection,
// permission handling, capture, preview, and the confirm/upload coordinator.
type RecordingService struct {
	clips      store.ClipStore
	sessions   *session.Manager
	previews   *preview.Registry
	recordings RecordingStorage
	reconciler *session.Reconciler
	feed       events.ClipFeed
	emitter    events.EventEmitter // nil disables verification enqueue
	maxTake    int64
	logger     *slog.Logger
}

// RecordingServiceParams bundles the RecordingService dependencies.
type RecordingServiceParams struct {
	Clips      store.ClipStore
	Sessions   *session.Manager
	Previews   *preview.Registry
	Recordings RecordingStorage
	Reconciler *session.Reconciler
	Feed       events.ClipFeed
	Emitter    events.EventEmitter
	MaxTake    int64
	Logger     *slog.Logger
}

// NewRecordingService creates a RecordingService. Emitter may be nil, which
// disables verification enqueueing; everything else is required.
func NewRecordingService(p RecordingServiceParams) (*RecordingService, error) {
	switch {
	case p.Clips == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "clip store cannot be nil"}
	case p.Sessions == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "session manager cannot be nil"}
	case p.Previews == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "preview registry cannot be nil"}
	case p.Recordings == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "recording storage cannot be nil"}
	case p.Reconciler == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "reconciler cannot be nil"}
	case p.Feed == nil:
		return nil, &ServiceError{Operation: "create_service", Message: "clip feed cannot be nil"}
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}

	return &RecordingService{
		clips:      p.Clips,
		sessions:   p.Sessions,
		previews:   p.Previews,
		recordings: p.Recordings,
		reconciler: p.Reconciler,
		feed:       p.Feed,
		emitter:    p.Emitter,
		maxTake:    p.MaxTake,
		logger:     p.Logger.With("component", "recording_service"),
	}, nil
}

// StartSession creates (or resumes) the user's session, refreshes its view
// of the clip collection, and targets the next pending clip if the session
// has none.
func (s *RecordingService) StartSession(ctx context.Context, userID uuid.UUID) (session.Snapshot, error) {
	sess := s.sessions.GetOrCreate(userID, s.maxTake)
	s.reconciler.Refresh(ctx, sess)

	snap := sess.Snapshot()
	if snap.Mode == session.ModeRecord && snap.Target == nil && !snap.Uploading {
		if next := sess.NextPending(); next != nil {
			released, err := sess.SetTarget(next, false)
			if err != nil {
				return session.Snapshot{}, newServiceError("start_session", "failed to set target", err)
			}
			s.previews.Release(released)
		}
	}

	return sess.Snapshot(), nil
}

// Snapshot returns the current session state.
func (s *RecordingService) Snapshot(ctx context.Context, userID uuid.UUID) (session.Snapshot, error) {
	sess, err := s.sessions.Get(userID)
	if err != nil {
		return session.Snapshot{}, err
	}
	return sess.Snapshot(), nil
}

// ReportPermission records the client's microphone permission answer.
func (s *RecordingService) ReportPermission(ctx context.Context, userID uuid.UUID, granted bool) (session.Snapshot, error) {
	sess, err := s.sessions.Get(userID)
	if err != nil {
		return session.Snapshot{}, err
	}

	if err := sess.ReportPermission(granted); err != nil {
		return session.Snapshot{}, newServiceError("report_permission", "permission report rejected", err)
	}

	logger.FromContextOrDefault(ctx, s.logger).Info("permission reported",
		"user_id", userID,
		"granted", granted)
	return sess.Snapshot(), nil
}

// BeginCapture opens the session's capture stream. A previously open stream
// is closed first.
func (s *RecordingService) BeginCapture(ctx context.Context, userID uuid.UUID, stream session.CaptureStream) error {
	sess, err := s.sessions.Get(userID)
	if err != nil {
		return err
	}

	if err := sess.BeginCapture(stream); err != nil {
		return newServiceError("begin_capture", "capture rejected", err)
	}
	return nil
}

// AppendChunk buffers one chunk of the in-progress take.
func (s *RecordingService) AppendChunk(ctx context.Context, userID uuid.UUID, chunk []byte) error {
	sess, err := s.sessions.Get(userID)
	if err != nil {
		return err
	}

	if err := sess.AppendChunk(chunk); err != nil {
		if errors.Is(err, session.ErrTakeTooLarge) {
			logger.FromContextOrDefault(ctx, s.logger).Warn("capture aborted, take too large",
				"user_id", userID)
		}
		return newServiceError("append_chunk", "chunk rejected", err)
	}
	return nil
}

// EndCapture closes the stream, assembles the take, and allocates a preview
// handle for it. An empty take aborts the capture instead.
func (s *RecordingService) EndCapture(ctx context.Context, userID uuid.UUID) (session.Snapshot, error) {
	sess, err := s.sessions.Get(userID)
	if err != nil {
		return session.Snapshot{}, err
	}

	take, err := sess.EndCapture()
	if err != nil {
		return session.Snapshot{}, newServiceError("end_capture", "capture end rejected", err)
	}

	if len(take) == 0 {
		s.previews.Release(sess.CaptureFailed(ErrEmptyTake.Error()))
		return session.Snapshot{}, ErrEmptyTake
	}

	handle := s.previews.Create(take, "audio/webm")
	s.previews.Release(sess.AttachPreview(handle.ID))

	logger.FromContextOrDefault(ctx, s.logger).Info("take captured",
		"user_id", userID,
		"take_bytes", len(take),
		"preview_id", handle.ID)
	return sess.Snapshot(), nil
}

// CaptureFailed reports a failed capture (stream error, client abort) and
// returns the machine to a recordable state.
func (s *RecordingService) CaptureFailed(ctx context.Context, userID uuid.UUID, reason string) {
	sess, err := s.sessions.Get(userID)
	if err != nil {
		return
	}
	s.previews.Release(sess.CaptureFailed(reason))
	logger.FromContextOrDefault(ctx, s.logger).Warn("capture failed",
		"user_id", userID,
		"reason", reason)
}

// Discard drops the pending take without uploading it.
func (s *RecordingService) Discard(ctx context.Context, userID uuid.UUID) (session.Snapshot, error) {
	sess, err := s.sessions.Get(userID)
	if err != nil {
		return session.Snapshot{}, err
	}

	released, err := sess.Discard()
	if err != nil {
		return session.Snapshot{}, newServiceError("discard", "discard rejected", err)
	}
	s.previews.Release(released)
	return sess.Snapshot(), nil
}

// Confirm uploads the pending take for the given target clip and completes
// the clip in one UPDATE. The target must match the session's active target;
// a mismatch writes nothing. On success the session moves on to the next
// pending clip, or to review mode when none remain or the take replaced an
// already completed clip.
func (s *RecordingService) Confirm(ctx context.Context, userID uuid.UUID, targetID uuid.UUID) (session.Snapshot, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	sess, err := s.sessions.Get(userID)
	if err != nil {
		return session.Snapshot{}, err
	}

	before := sess.Snapshot()
	previous := before.Target
	wasRerecord := before.Rerecord

	handleID, err := sess.BeginUpload(targetID)
	if err != nil {
		return session.Snapshot{}, newServiceError("confirm", "confirm rejected", err)
	}

	handle, err := s.previews.Get(handleID)
	if err != nil {
		sess.FinishUpload(false, "buffered take is no longer available")
		return session.Snapshot{}, newServiceError("confirm", "failed to load buffered take", err)
	}

	url, err := s.recordings.Save(ctx, targetID, handle.Audio, handle.ContentType)
	if err != nil {
		sess.FinishUpload(false, "failed to store recording")
		return session.Snapshot{}, newServiceError("confirm", "failed to store recording", err)
	}

	updated, err := s.clips.CompleteWithAudio(ctx, targetID, url)
	if err != nil {
		sess.FinishUpload(false, "failed to update clip")
		return session.Snapshot{}, newServiceError("confirm", "failed to update clip", err)
	}

	log.Info("recording confirmed",
		"user_id", userID,
		"clip_id", targetID,
		"audio_url", url)

	s.feed.Publish(ctx, &events.ClipEvent{Type: events.ClipUpdated, Clip: updated, Old: previous})

	s.enqueueVerification(ctx, updated)

	s.previews.Release(sess.FinishUpload(true, ""))

	if next := sess.NextPending(); next != nil && !wasRerecord {
		released, err := sess.SetTarget(next, false)
		if err != nil {
			return session.Snapshot{}, newServiceError("confirm", "failed to target next clip", err)
		}
		s.previews.Release(released)
	} else {
		released, err := sess.EnterReview()
		if err != nil {
			return session.Snapshot{}, newServiceError("confirm", "failed to enter review", err)
		}
		s.previews.Release(released)
		s.reconciler.Refresh(ctx, sess)
	}

	return sess.Snapshot(), nil
}

// enqueueVerification marks the clip queued and emits the task request.
// Verification problems are logged, never surfaced: the upload already
// succeeded.
func (s *RecordingService) enqueueVerification(ctx context.Context, clip *domain.Clip) {
	if s.emitter == nil {
		return
	}
	log := logger.FromContextOrDefault(ctx, s.logger)

	queued, err := s.clips.SetVerification(ctx, clip.ID, domain.VerifyStatusQueued, "")
	if err != nil {
		log.Error("failed to mark clip for verification",
			"error", err,
			"clip_id", clip.ID)
		return
	}
	s.feed.Publish(ctx, &events.ClipEvent{Type: events.ClipUpdated, Clip: queued, Old: clip})

	payload := struct {
		ClipID uuid.UUID `json:"clip_id"`
	}{ClipID: clip.ID}

	event, err := events.NewTaskRequestEvent(task.TaskTypeRecordingVerification, payload)
	if err != nil {
		log.Error("failed to build verification event",
			"error", err,
			"clip_id", clip.ID)
		return
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		log.Error("failed to emit verification event",
			"error", err,
			"clip_id", clip.ID,
			"event_id", event.ID)
	}
}

// EnterReview switches the session to review mode and refreshes the
// completed list.
func (s *RecordingService) EnterReview(ctx context.Context, userID uuid.UUID) (session.Snapshot, error) {
	sess, err := s.sessions.Get(userID)
	if err != nil {
		return session.Snapshot{}, err
	}

	released, err := sess.EnterReview()
	if err != nil {
		return session.Snapshot{}, newServiceError("enter_review", "review rejected", err)
	}
	s.previews.Release(released)
	s.reconciler.Refresh(ctx, sess)
	return sess.Snapshot(), nil
}

// Rerecord targets a completed clip for a replacement recording. Confirming
// it overwrites the stored object at the same key; the clip's status stays
// completed throughout.
func (s *RecordingService) Rerecord(ctx context.Context, userID uuid.UUID, clipID uuid.UUID) (session.Snapshot, error) {
	sess, err := s.sessions.Get(userID)
	if err != nil {
		return session.Snapshot{}, err
	}

	clip, err := s.clips.GetByID(ctx, clipID)
	if err != nil {
		return session.Snapshot{}, newServiceError("rerecord", "failed to load clip", err)
	}
	if clip.UserID != userID {
		return session.Snapshot{}, ErrClipNotFound
	}
	if clip.Status != domain.ClipStatusCompleted {
		return session.Snapshot{}, ErrClipNotCompleted
	}

	released, err := sess.SetTarget(clip, true)
	if err != nil {
		return session.Snapshot{}, newServiceError("rerecord", "failed to set re-record target", err)
	}
	s.previews.Release(released)

	logger.FromContextOrDefault(ctx, s.logger).Info("re-record started",
		"user_id", userID,
		"clip_id", clipID)
	return sess.Snapshot(), nil
}

// CancelRerecord abandons a re-record and returns to review mode. The clip's
// status and audio are untouched.
func (s *RecordingService) CancelRerecord(ctx context.Context, userID uuid.UUID) (session.Snapshot, error) {
	return s.EnterReview(ctx, userID)
}

// EndSession tears the session down, releasing its stream and preview
// handle.
func (s *RecordingService) EndSession(ctx context.Context, userID uuid.UUID) {
	if released, ok := s.sessions.Remove(userID); ok {
		s.previews.Release(released)
	}
}
