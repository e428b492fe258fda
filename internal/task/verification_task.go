package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/recitalhq/recital-api/internal/events"
)

// Common errors for verification task construction.
var (
	ErrNilClipStore = errors.New("clip store cannot be nil")
	ErrNilFetcher   = errors.New("audio fetcher cannot be nil")
	ErrNilVerifier  = errors.New("verifier cannot be nil")
	ErrNilFeed      = errors.New("clip feed cannot be nil")
	ErrNilLogger    = errors.New("logger cannot be nil")
	ErrEmptyClipID  = errors.New("clip ID cannot be empty")
)

// ClipStore is the narrow clip access the verification task needs.
type ClipStore interface {
	// GetByID retrieves a clip by its ID.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Clip, error)

	// SetVerification records the verification outcome for a clip.
	SetVerification(ctx context.Context, id uuid.UUID, status domain.VerifyStatus, note string) (*domain.Clip, error)
}

// AudioFetcher retrieves a stored recording by clip ID.
type AudioFetcher interface {
	// Fetch returns the stored audio bytes and their content type.
	Fetch(ctx context.Context, clipID uuid.UUID) ([]byte, string, error)
}

// Verifier checks a recording against the text it should contain.
type Verifier interface {
	// Verify returns whether the audio matches the expected text, plus a
	// short human-readable note explaining the outcome.
	Verify(ctx context.Context, audio []byte, mimeType, expectedText string) (bool, string, error)
}

// verificationPayload is the serialized data stored with the task.
type verificationPayload struct {
	ClipID uuid.UUID `json:"clip_id"`
}

// VerificationTask implements the Task interface for checking an uploaded
// recording against its clip text.
type VerificationTask struct {
	id       uuid.UUID
	clipID   uuid.UUID
	clips    ClipStore
	fetcher  AudioFetcher
	verifier Verifier
	feed     events.ClipFeed
	logger   *slog.Logger
	status   TaskStatus
}

// NewVerificationTask creates a new recording verification task.
func NewVerificationTask(
	clipID uuid.UUID,
	clips ClipStore,
	fetcher AudioFetcher,
	verifier Verifier,
	feed events.ClipFeed,
	logger *slog.Logger,
) (*VerificationTask, error) {
	if clips == nil {
		return nil, ErrNilClipStore
	}
	if fetcher == nil {
		return nil, ErrNilFetcher
	}
	if verifier == nil {
		return nil, ErrNilVerifier
	}
	if feed == nil {
		return nil, ErrNilFeed
	}
	if logger == nil {
		return nil, ErrNilLogger
	}
	if clipID == uuid.Nil {
		return nil, ErrEmptyClipID
	}

	return &VerificationTask{
		id:       uuid.New(),
		clipID:   clipID,
		clips:    clips,
		fetcher:  fetcher,
		verifier: verifier,
		feed:     feed,
		logger:   logger.With("task_type", TaskTypeRecordingVerification, "clip_id", clipID),
		status:   TaskStatusPending,
	}, nil
}

// ID returns the task's unique identifier.
func (t *VerificationTask) ID() uuid.UUID {
	return t.id
}

// Type returns the task type identifier.
func (t *VerificationTask) Type() string {
	return TaskTypeRecordingVerification
}

// Payload returns the task data as a byte slice.
func (t *VerificationTask) Payload() []byte {
	data, err := json.Marshal(verificationPayload{ClipID: t.clipID})
	if err != nil {
		// Marshalling a uuid cannot realistically fail; log and return empty.
		t.logger.Error("failed to marshal verification payload", "error", err)
		return nil
	}
	return data
}

// Status returns the current task status.
func (t *VerificationTask) Status() TaskStatus {
	return t.status
}

// Execute downloads the stored recording, asks the verifier whether it
// matches the clip text, and records the outcome on the clip. A clip that
// lost its recording or was never completed is a no-op, not a failure.
func (t *VerificationTask) Execute(ctx context.Context) error {
	t.status = TaskStatusProcessing

	clip, err := t.clips.GetByID(ctx, t.clipID)
	if err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("failed to load clip for verification: %w", err)
	}

	if clip.Status != domain.ClipStatusCompleted || clip.AudioURL == nil {
		t.logger.Info("skipping verification, clip has no recording",
			"clip_status", clip.Status)
		t.status = TaskStatusCompleted
		return nil
	}

	audio, mimeType, err := t.fetcher.Fetch(ctx, t.clipID)
	if err != nil {
		if setErr := t.recordOutcome(ctx, clip, domain.VerifyStatusFailed,
			"could not retrieve stored audio"); setErr != nil {
			t.logger.Error("failed to record fetch failure", "error", setErr)
		}
		t.status = TaskStatusFailed
		return fmt.Errorf("failed to fetch stored audio: %w", err)
	}

	ok, note, err := t.verifier.Verify(ctx, audio, mimeType, clip.Text)
	if err != nil {
		if setErr := t.recordOutcome(ctx, clip, domain.VerifyStatusFailed,
			"verification did not complete"); setErr != nil {
			t.logger.Error("failed to record verification failure", "error", setErr)
		}
		t.status = TaskStatusFailed
		return fmt.Errorf("verification failed: %w", err)
	}

	outcome := domain.VerifyStatusFlagged
	if ok {
		outcome = domain.VerifyStatusPassed
	}
	if err := t.recordOutcome(ctx, clip, outcome, note); err != nil {
		t.status = TaskStatusFailed
		return fmt.Errorf("failed to record verification outcome: %w", err)
	}

	t.logger.Info("verification recorded", "outcome", outcome)
	t.status = TaskStatusCompleted
	return nil
}

// recordOutcome writes the verification outcome and publishes the change so
// review views and live sessions see it without a reload.
func (t *VerificationTask) recordOutcome(ctx context.Context, old *domain.Clip, status domain.VerifyStatus, note string) error {
	updated, err := t.clips.SetVerification(ctx, t.clipID, status, note)
	if err != nil {
		return err
	}
	t.feed.Publish(ctx, &events.ClipEvent{Type: events.ClipUpdated, Clip: updated, Old: old})
	return nil
}
