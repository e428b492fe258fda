package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ClipStatus represents the recording state of a clip.
type ClipStatus string

// Possible clip status values. The status is monotonic: a clip moves from
// pending to completed exactly once and never reverts, even when its audio
// is re-recorded.
const (
	ClipStatusPending   ClipStatus = "pending"
	ClipStatusCompleted ClipStatus = "completed"
)

// VerifyStatus represents the outcome of the post-upload verification check.
type VerifyStatus string

// Possible verification status values.
const (
	VerifyStatusNone    VerifyStatus = "none"
	VerifyStatusQueued  VerifyStatus = "queued"
	VerifyStatusPassed  VerifyStatus = "passed"
	VerifyStatusFlagged VerifyStatus = "flagged"
	VerifyStatusFailed  VerifyStatus = "failed"
)

// Common validation errors for Clip.
var (
	ErrEmptyClipID         = errors.New("clip ID cannot be empty")
	ErrEmptyClipUserID     = errors.New("clip user ID cannot be empty")
	ErrEmptyClipText       = errors.New("clip text cannot be empty")
	ErrInvalidClipStatus   = errors.New("invalid clip status")
	ErrInvalidVerifyStatus = errors.New("invalid verification status")
	ErrEmptyAudioURL       = errors.New("audio URL cannot be empty")
)

// Clip is one line of a submitted script awaiting (or holding) a recording.
// Created pending by the intake flow, completed by the recording flow, and
// possibly re-recorded afterwards; never deleted.
type Clip struct {
	ID           uuid.UUID    `json:"id"`
	UserID       uuid.UUID    `json:"user_id"`
	Text         string       `json:"text"`
	AudioURL     *string      `json:"audio_url"`
	Status       ClipStatus   `json:"status"`
	VerifyStatus VerifyStatus `json:"verify_status"`
	VerifyNote   string       `json:"verify_note,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// NewClip creates a pending Clip for the given user and line of text.
// Returns an error if validation fails.
func NewClip(userID uuid.UUID, text string) (*Clip, error) {
	now := time.Now().UTC()
	clip := &Clip{
		ID:           uuid.New(),
		UserID:       userID,
		Text:         text,
		Status:       ClipStatusPending,
		VerifyStatus: VerifyStatusNone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := clip.Validate(); err != nil {
		return nil, err
	}
	return clip, nil
}

// SplitScript turns raw multi-line text into the list of clip texts it would
// produce: each line trimmed, blank lines dropped. An all-blank script yields
// an empty slice.
func SplitScript(raw string) []string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}

// Validate checks if the Clip has valid data.
func (c *Clip) Validate() error {
	if c.ID == uuid.Nil {
		return ErrEmptyClipID
	}
	if c.UserID == uuid.Nil {
		return ErrEmptyClipUserID
	}
	if c.Text == "" {
		return ErrEmptyClipText
	}
	if c.Status != ClipStatusPending && c.Status != ClipStatusCompleted {
		return ErrInvalidClipStatus
	}
	if !isValidVerifyStatus(c.VerifyStatus) {
		return ErrInvalidVerifyStatus
	}
	if c.Status == ClipStatusCompleted && (c.AudioURL == nil || *c.AudioURL == "") {
		return ErrEmptyAudioURL
	}
	return nil
}

// Complete records an uploaded recording on the clip: sets the audio URL and
// moves the status to completed. Calling it again (a re-record) replaces the
// audio URL while the status stays completed; the status never regresses.
func (c *Clip) Complete(audioURL string) error {
	if audioURL == "" {
		return ErrEmptyAudioURL
	}
	c.AudioURL = &audioURL
	c.Status = ClipStatusCompleted
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// SetVerification records the verification outcome for a completed clip.
func (c *Clip) SetVerification(status VerifyStatus, note string) error {
	if !isValidVerifyStatus(status) {
		return ErrInvalidVerifyStatus
	}
	c.VerifyStatus = status
	c.VerifyNote = note
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func isValidVerifyStatus(status VerifyStatus) bool {
	switch status {
	case VerifyStatusNone, VerifyStatusQueued, VerifyStatusPassed,
		VerifyStatusFlagged, VerifyStatusFailed:
		return true
	default:
		return false
	}
}
