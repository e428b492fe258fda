package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/recitalhq/recital-api/internal/platform/logger"
	"github.com/recitalhq/recital-api/internal/store"
)

// clipColumns is the column list shared by every clip SELECT.
const clipColumns = "id, user_id, text, audio_url, status, verify_status, verify_note, created_at, updated_at"

// PostgresClipStore implements the store.ClipStore interface
// using a PostgreSQL database as the storage backend.
type PostgresClipStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresClipStore creates a new PostgreSQL implementation of the
// ClipStore interface. The database handle must be initialized and managed
// by the caller. If logger is nil, the default logger is used.
func NewPostgresClipStore(db store.DBTX, logger *slog.Logger) *PostgresClipStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresClipStore{
		db:     db,
		logger: logger.With(slog.String("component", "clip_store")),
	}
}

// Ensure PostgresClipStore implements store.ClipStore
var _ store.ClipStore = (*PostgresClipStore)(nil)

// WithTx implements store.ClipStore.WithTx
func (s *PostgresClipStore) WithTx(tx *sql.Tx) store.ClipStore {
	return &PostgresClipStore{
		db:     tx,
		logger: s.logger,
	}
}

// CreateBatch implements store.ClipStore.CreateBatch
// All clips are validated first, then written with one multi-row INSERT so a
// script intake is a single batched call.
func (s *PostgresClipStore) CreateBatch(ctx context.Context, clips []*domain.Clip) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if len(clips) == 0 {
		return fmt.Errorf("%w: empty clip batch", store.ErrInvalidEntity)
	}

	for _, clip := range clips {
		if err := clip.Validate(); err != nil {
			log.Warn("clip validation failed during batch create",
				slog.String("error", err.Error()),
				slog.String("clip_id", clip.ID.String()))
			return err
		}
	}

	const fieldsPerClip = 9
	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO clips (id, user_id, text, audio_url, status, verify_status, verify_note, created_at, updated_at)
		VALUES `)
	args := make([]any, 0, len(clips)*fieldsPerClip)
	for i, clip := range clips {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * fieldsPerClip
		sb.WriteString("(")
		for j := 1; j <= fieldsPerClip; j++ {
			if j > 1 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", base+j)
		}
		sb.WriteString(")")
		args = append(args,
			clip.ID,
			clip.UserID,
			clip.Text,
			clip.AudioURL,
			clip.Status,
			clip.VerifyStatus,
			clip.VerifyNote,
			clip.CreatedAt,
			clip.UpdatedAt,
		)
	}

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		log.Error("failed to create clip batch",
			slog.String("error", err.Error()),
			slog.Int("clip_count", len(clips)))
		return mapError(err)
	}

	log.Info("clip batch created",
		slog.Int("clip_count", len(clips)),
		slog.String("user_id", clips[0].UserID.String()))
	return nil
}

// GetByID implements store.ClipStore.GetByID
func (s *PostgresClipStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Clip, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := fmt.Sprintf(`SELECT %s FROM clips WHERE id = $1`, clipColumns)
	clip, err := scanClip(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			log.Debug("clip not found", slog.String("clip_id", id.String()))
			return nil, store.ErrClipNotFound
		}
		log.Error("failed to get clip by ID",
			slog.String("error", err.Error()),
			slog.String("clip_id", id.String()))
		return nil, mapError(err)
	}

	return clip, nil
}

// NextPending implements store.ClipStore.NextPending
// The next recording target is always the oldest pending clip by creation
// time, so intake order is preserved.
func (s *PostgresClipStore) NextPending(ctx context.Context, userID uuid.UUID) (*domain.Clip, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := fmt.Sprintf(`
		SELECT %s FROM clips
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at ASC
		LIMIT 1`, clipColumns)

	clip, err := scanClip(s.db.QueryRowContext(ctx, query, userID, domain.ClipStatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrClipNotFound
		}
		log.Error("failed to get next pending clip",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, mapError(err)
	}

	return clip, nil
}

// Counts implements store.ClipStore.Counts
func (s *PostgresClipStore) Counts(ctx context.Context, userID uuid.UUID) (store.ClipCounts, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = $2)
		FROM clips
		WHERE user_id = $1`

	var counts store.ClipCounts
	err := s.db.QueryRowContext(ctx, query, userID, domain.ClipStatusCompleted).
		Scan(&counts.Total, &counts.Completed)
	if err != nil {
		log.Error("failed to count clips",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return store.ClipCounts{}, mapError(err)
	}

	return counts, nil
}

// ListCompleted implements store.ClipStore.ListCompleted
func (s *PostgresClipStore) ListCompleted(ctx context.Context, userID uuid.UUID) ([]*domain.Clip, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := fmt.Sprintf(`
		SELECT %s FROM clips
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at DESC`, clipColumns)

	rows, err := s.db.QueryContext(ctx, query, userID, domain.ClipStatusCompleted)
	if err != nil {
		log.Error("failed to list completed clips",
			slog.String("error", err.Error()),
			slog.String("user_id", userID.String()))
		return nil, mapError(err)
	}
	defer func() { _ = rows.Close() }()

	clips := make([]*domain.Clip, 0)
	for rows.Next() {
		clip, err := scanClip(rows)
		if err != nil {
			return nil, mapError(err)
		}
		clips = append(clips, clip)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	return clips, nil
}

// CompleteWithAudio implements store.ClipStore.CompleteWithAudio
// Audio URL and status move in one UPDATE; the status is forced to completed
// and never written back to pending, so re-records only replace the URL.
func (s *PostgresClipStore) CompleteWithAudio(ctx context.Context, id uuid.UUID, audioURL string) (*domain.Clip, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if audioURL == "" {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrEmptyAudioURL)
	}

	query := fmt.Sprintf(`
		UPDATE clips
		SET audio_url = $2, status = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, clipColumns)

	clip, err := scanClip(s.db.QueryRowContext(ctx, query, id, audioURL, domain.ClipStatusCompleted))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrClipNotFound
		}
		log.Error("failed to complete clip",
			slog.String("error", err.Error()),
			slog.String("clip_id", id.String()))
		return nil, mapError(err)
	}

	log.Info("clip completed",
		slog.String("clip_id", id.String()),
		slog.String("status", string(clip.Status)))
	return clip, nil
}

// SetVerification implements store.ClipStore.SetVerification
func (s *PostgresClipStore) SetVerification(ctx context.Context, id uuid.UUID, status domain.VerifyStatus, note string) (*domain.Clip, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := fmt.Sprintf(`
		UPDATE clips
		SET verify_status = $2, verify_note = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING %s`, clipColumns)

	clip, err := scanClip(s.db.QueryRowContext(ctx, query, id, status, note))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrClipNotFound
		}
		log.Error("failed to set clip verification",
			slog.String("error", err.Error()),
			slog.String("clip_id", id.String()))
		return nil, mapError(err)
	}

	return clip, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanClip reads one clip row in clipColumns order.
func scanClip(row rowScanner) (*domain.Clip, error) {
	var clip domain.Clip
	var audioURL sql.NullString
	var status, verifyStatus string

	err := row.Scan(
		&clip.ID,
		&clip.UserID,
		&clip.Text,
		&audioURL,
		&status,
		&verifyStatus,
		&clip.VerifyNote,
		&clip.CreatedAt,
		&clip.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if audioURL.Valid {
		clip.AudioURL = &audioURL.String
	}
	clip.Status = domain.ClipStatus(status)
	clip.VerifyStatus = domain.VerifyStatus(verifyStatus)
	return &clip, nil
}
