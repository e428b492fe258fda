package task

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/recitalhq/recital-api/internal/events"
)

// VerificationTaskFactory creates VerificationTask instances with their
// dependencies wired in. It also serves as the runner's Reviver, rebuilding
// executable tasks from persisted payloads after a restart.
type VerificationTaskFactory struct {
	clips    ClipStore
	fetcher  AudioFetcher
	verifier Verifier
	feed     events.ClipFeed
	logger   *slog.Logger
}

// NewVerificationTaskFactory creates a new factory for VerificationTasks.
func NewVerificationTaskFactory(
	clips ClipStore,
	fetcher AudioFetcher,
	verifier Verifier,
	feed events.ClipFeed,
	logger *slog.Logger,
) *VerificationTaskFactory {
	return &VerificationTaskFactory{
		clips:    clips,
		fetcher:  fetcher,
		verifier: verifier,
		feed:     feed,
		logger:   logger.With("component", "verification_task_factory"),
	}
}

// Ensure the factory can revive persisted tasks.
var _ Reviver = (*VerificationTaskFactory)(nil)

// CreateTask creates a new VerificationTask for the specified clip.
func (f *VerificationTaskFactory) CreateTask(clipID uuid.UUID) (Task, error) {
	return NewVerificationTask(clipID, f.clips, f.fetcher, f.verifier, f.feed, f.logger)
}

// Revive implements Reviver for recording verification tasks. The persisted
// task keeps its original ID so its status row stays consistent.
func (f *VerificationTaskFactory) Revive(taskType string, taskID uuid.UUID, payload []byte) (Task, error) {
	if taskType != TaskTypeRecordingVerification {
		return nil, fmt.Errorf("unknown task type %q", taskType)
	}

	var p verificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal verification payload: %w", err)
	}

	t, err := NewVerificationTask(p.ClipID, f.clips, f.fetcher, f.verifier, f.feed, f.logger)
	if err != nil {
		return nil, err
	}
	t.id = taskID
	return t, nil
}
