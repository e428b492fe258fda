package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"
	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/recitalhq/recital-api/internal/events"
	"github.com/recitalhq/recital-api/internal/platform/logger"
	"github.com/recitalhq/recital-api/internal/store"
)

// IntakeService turns a pasted script into pending recording clips.
type IntakeService struct {
	db     *sql.DB
	clips  store.ClipStore
	feed   events.ClipFeed
	runTx  func(ctx context.Context, db *sql.DB, fn store.TxFn) error
	logger *slog.Logger
}

// NewIntakeService creates an IntakeService. All dependencies are required
// except logger, which defaults.
func NewIntakeService(db *sql.DB, clips store.ClipStore, feed events.ClipFeed, logger *slog.Logger) (*IntakeService, error) {
	if db == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "db cannot be nil"}
	}
	if clips == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "clip store cannot be nil"}
	}
	if feed == nil {
		return nil, &ServiceError{Operation: "create_service", Message: "clip feed cannot be nil"}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &IntakeService{
		db:     db,
		clips:  clips,
		feed:   feed,
		runTx:  store.RunInTransaction,
		logger: logger.With("component", "intake_service"),
	}, nil
}

// SubmitScript splits the raw script into lines and persists one pending
// clip per line in a single transaction. An empty script (no non-blank
// lines) is a validation error and writes nothing. After the commit an
// insert event is published per clip.
func (s *IntakeService) SubmitScript(ctx context.Context, userID uuid.UUID, script string) ([]*domain.Clip, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	lines := domain.SplitScript(script)
	if len(lines) == 0 {
		log.Warn("script submission rejected, no usable lines",
			"user_id", userID,
			"raw_length", len(script))
		return nil, domain.ErrEmptyScript
	}

	clips := make([]*domain.Clip, 0, len(lines))
	for _, line := range lines {
		clip, err := domain.NewClip(userID, line)
		if err != nil {
			return nil, newServiceError("submit_script", "failed to build clip", err)
		}
		clips = append(clips, clip)
	}

	err := s.runTx(ctx, s.db, func(ctx context.Context, tx *sql.Tx) error {
		return s.clips.WithTx(tx).CreateBatch(ctx, clips)
	})
	if err != nil {
		log.Error("failed to persist script clips",
			"error", err,
			"user_id", userID,
			"clip_count", len(clips))
		return nil, newServiceError("submit_script", "failed to save clips", err)
	}

	log.Info("script submitted",
		"user_id", userID,
		"clip_count", len(clips))

	for _, clip := range clips {
		s.feed.Publish(ctx, &events.ClipEvent{Type: events.ClipInserted, Clip: clip})
	}

	return clips, nil
}
