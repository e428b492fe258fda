package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/recitalhq/recital-api/internal/session"
)

// Common request/response structures

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	UserID uuid.UUID `json:"user_id"`
	Token  string    `json:"token"`
}

// SubmitScriptRequest defines the payload for the script intake endpoint.
type SubmitScriptRequest struct {
	Script string `json:"script" validate:"required,min=1"`
}

// SubmitScriptResponse reports the clips created from a submitted script.
type SubmitScriptResponse struct {
	Clips []ClipResponse `json:"clips"`
}

// ClipResponse is the API representation of a clip.
type ClipResponse struct {
	ID           string    `json:"id"`
	Text         string    `json:"text"`
	AudioURL     string    `json:"audio_url,omitempty"`
	Status       string    `json:"status"`
	VerifyStatus string    `json:"verify_status,omitempty"`
	VerifyNote   string    `json:"verify_note,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PermissionRequest reports the browser's microphone permission outcome.
type PermissionRequest struct {
	Granted *bool `json:"granted" validate:"required"`
}

// ConfirmRequest names the clip the buffered take should be saved against.
type ConfirmRequest struct {
	ClipID uuid.UUID `json:"clip_id" validate:"required"`
}

// RerecordRequest names the completed clip to record a replacement for.
type RerecordRequest struct {
	ClipID uuid.UUID `json:"clip_id" validate:"required"`
}

// CountsResponse reports the user's clip totals.
type CountsResponse struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

// SessionResponse is the API representation of a recording session snapshot.
type SessionResponse struct {
	State     string         `json:"state"`
	Mode      string         `json:"mode"`
	Target    *ClipResponse  `json:"target,omitempty"`
	Rerecord  bool           `json:"rerecord"`
	Uploading bool           `json:"uploading"`
	PreviewID string         `json:"preview_id,omitempty"`
	Counts    CountsResponse `json:"counts"`
	Completed []ClipResponse `json:"completed,omitempty"`
	LastError string         `json:"last_error,omitempty"`
}

func clipToResponse(clip *domain.Clip) ClipResponse {
	resp := ClipResponse{
		ID:           clip.ID.String(),
		Text:         clip.Text,
		Status:       string(clip.Status),
		VerifyStatus: string(clip.VerifyStatus),
		VerifyNote:   clip.VerifyNote,
		CreatedAt:    clip.CreatedAt,
		UpdatedAt:    clip.UpdatedAt,
	}
	if clip.AudioURL != nil {
		resp.AudioURL = *clip.AudioURL
	}
	return resp
}

func snapshotToResponse(snap session.Snapshot) SessionResponse {
	resp := SessionResponse{
		State:     string(snap.State),
		Mode:      string(snap.Mode),
		Rerecord:  snap.Rerecord,
		Uploading: snap.Uploading,
		Counts: CountsResponse{
			Total:     snap.Counts.Total,
			Completed: snap.Counts.Completed,
		},
		LastError: snap.LastError,
	}
	if snap.Target != nil {
		target := clipToResponse(snap.Target)
		resp.Target = &target
	}
	if snap.PreviewID != nil {
		resp.PreviewID = snap.PreviewID.String()
	}
	for _, clip := range snap.Completed {
		resp.Completed = append(resp.Completed, clipToResponse(clip))
	}
	return resp
}
