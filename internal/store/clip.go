package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/recitalhq/recital-api/internal/domain"
)

// ClipCounts holds the cached summary numbers a recording session displays.
type ClipCounts struct {
	Total     int
	Completed int
}

// ClipStore defines the interface for clip data persistence.
type ClipStore interface {
	// CreateBatch saves all clips in a single multi-row insert. The caller
	// is expected to run it inside a transaction so intake is all-or-nothing.
	// Returns validation errors from the domain Clip if any entry is invalid.
	CreateBatch(ctx context.Context, clips []*domain.Clip) error

	// GetByID retrieves a clip by its unique ID.
	// Returns ErrClipNotFound if the clip does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Clip, error)

	// NextPending retrieves the oldest pending clip for the user, by
	// creation time. Returns ErrClipNotFound when none remain.
	NextPending(ctx context.Context, userID uuid.UUID) (*domain.Clip, error)

	// Counts returns the user's total and completed clip counts.
	Counts(ctx context.Context, userID uuid.UUID) (ClipCounts, error)

	// ListCompleted retrieves the user's completed clips, newest first.
	// Returns an empty slice when there are none.
	ListCompleted(ctx context.Context, userID uuid.UUID) ([]*domain.Clip, error)

	// CompleteWithAudio sets the clip's audio URL and status to completed in
	// a single write. Used for both first recordings and re-records; it never
	// moves a completed clip back to pending. Returns ErrClipNotFound if the
	// clip does not exist.
	CompleteWithAudio(ctx context.Context, id uuid.UUID, audioURL string) (*domain.Clip, error)

	// SetVerification records the verification outcome for a clip.
	// Returns ErrClipNotFound if the clip does not exist.
	SetVerification(ctx context.Context, id uuid.UUID, status domain.VerifyStatus, note string) (*domain.Clip, error)

	// WithTx returns a ClipStore that runs against the provided transaction.
	// The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) ClipStore
}
