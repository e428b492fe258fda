// Package session holds the per-user recording session: an explicit state
// machine over the capture workflow, the buffered take, and the cached view
// of the clip collection that the reconciler keeps fresh. All IO lives in the
// service layer; a Session only mutates its own state.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/recitalhq/recital-api/internal/store"
)

// DefaultMaxTakeBytes caps a buffered take when configuration does not.
const DefaultMaxTakeBytes int64 = 32 << 20

// CaptureStream is the session's handle on an open capture connection. The
// session closes it on any transition that ends the capture; at most one
// stream exists per session at any instant.
type CaptureStream interface {
	Close() error
}

// Snapshot is a point-in-time copy of the session's observable state, safe
// to serialize into an API response.
type Snapshot struct {
	State     State            `json:"state"`
	Mode      Mode             `json:"mode"`
	Target    *domain.Clip     `json:"target,omitempty"`
	Rerecord  bool             `json:"rerecord"`
	Uploading bool             `json:"uploading"`
	PreviewID *uuid.UUID       `json:"preview_id,omitempty"`
	Counts    store.ClipCounts `json:"counts"`
	Completed []*domain.Clip   `json:"completed,omitempty"`
	LastError string           `json:"last_error,omitempty"`
}

// Session is one user's recording session.
type Session struct {
	mu sync.Mutex

	userID       uuid.UUID
	state        State
	mode         Mode
	target       *domain.Clip
	rerecord     bool
	permission   bool
	stream       CaptureStream
	chunks       [][]byte
	takeBytes    int64
	maxTakeBytes int64
	previewID    uuid.UUID
	uploading    bool
	lastError    string

	// Reconciler-maintained view of the collection.
	counts      store.ClipCounts
	nextPending *domain.Clip
	completed   []*domain.Clip
}

// New creates a session in its initial state.
func New(userID uuid.UUID, maxTakeBytes int64) *Session {
	if maxTakeBytes <= 0 {
		maxTakeBytes = DefaultMaxTakeBytes
	}
	return &Session{
		userID:       userID,
		state:        StateIdleNoPermission,
		mode:         ModeRecord,
		maxTakeBytes: maxTakeBytes,
	}
}

// UserID returns the owning user's ID.
func (s *Session) UserID() uuid.UUID {
	return s.userID
}

// Snapshot returns a copy of the observable session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		State:     s.state,
		Mode:      s.mode,
		Target:    s.target,
		Rerecord:  s.rerecord,
		Uploading: s.uploading,
		Counts:    s.counts,
		LastError: s.lastError,
	}
	if s.previewID != uuid.Nil {
		id := s.previewID
		snap.PreviewID = &id
	}
	if s.mode == ModeReview {
		snap.Completed = append([]*domain.Clip(nil), s.completed...)
	}
	return snap
}

// SetTarget makes the clip the active recording target and asks the client
// to (re)report its microphone permission. Any open stream is closed and any
// buffered take is dropped; the returned preview handle ID, if not Nil, must
// be released by the caller.
func (s *Session) SetTarget(clip *domain.Clip, rerecord bool) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploading {
		return uuid.Nil, ErrUploadInFlight
	}

	s.closeStreamLocked()
	released := s.dropTakeLocked()

	s.target = clip
	s.rerecord = rerecord
	s.mode = ModeRecord
	s.state = StateCheckingPermission
	s.lastError = ""
	return released, nil
}

// ReportPermission records the client's microphone permission answer. Legal
// from checking_permission, and from permission_denied as a manual retry.
func (s *Session) ReportPermission(granted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCheckingPermission && s.state != StatePermissionDenied {
		return fmt.Errorf("%w: report permission in state %s", ErrInvalidTransition, s.state)
	}

	s.permission = granted
	if granted {
		s.state = StateReadyToRecord
	} else {
		s.state = StatePermissionDenied
	}
	return nil
}

// BeginCapture opens a capture. Legal from ready_to_record; also from
// recording, in which case the prior stream is closed first so at most one
// stream is ever open. Rejected without a target, without permission, or
// while an upload is in flight.
func (s *Session) BeginCapture(stream CaptureStream) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploading {
		return ErrUploadInFlight
	}
	if s.target == nil {
		return ErrNoTarget
	}
	if !s.permission {
		return ErrNoPermission
	}
	if s.state != StateReadyToRecord && s.state != StateRecording {
		return fmt.Errorf("%w: begin capture in state %s", ErrInvalidTransition, s.state)
	}

	s.closeStreamLocked()
	s.stream = stream
	s.chunks = nil
	s.takeBytes = 0
	s.state = StateRecording
	return nil
}

// AppendChunk buffers one chunk of the take. Only legal while recording. A
// chunk pushing the take past the size limit aborts the capture.
func (s *Session) AppendChunk(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return fmt.Errorf("%w: append chunk in state %s", ErrInvalidTransition, s.state)
	}

	if s.takeBytes+int64(len(chunk)) > s.maxTakeBytes {
		s.abortCaptureLocked(ErrTakeTooLarge.Error())
		return ErrTakeTooLarge
	}

	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.chunks = append(s.chunks, buf)
	s.takeBytes += int64(len(chunk))
	return nil
}

// EndCapture closes the stream and concatenates the buffered chunks into one
// take. The caller allocates a preview handle for the returned bytes and
// attaches it with AttachPreview.
func (s *Session) EndCapture() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecording {
		return nil, fmt.Errorf("%w: end capture in state %s", ErrInvalidTransition, s.state)
	}

	s.closeStreamLocked()

	take := make([]byte, 0, s.takeBytes)
	for _, c := range s.chunks {
		take = append(take, c...)
	}
	s.chunks = nil
	s.state = StateRecordedPendingConfirm
	return take, nil
}

// AttachPreview records the preview handle for the pending take and returns
// the superseded handle ID, if any, for the caller to release.
func (s *Session) AttachPreview(id uuid.UUID) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.previewID
	s.previewID = id
	return previous
}

// Discard drops the pending take and returns to ready_to_record. The
// returned preview handle ID, if not Nil, must be released by the caller.
func (s *Session) Discard() (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecordedPendingConfirm {
		return uuid.Nil, fmt.Errorf("%w: discard in state %s", ErrInvalidTransition, s.state)
	}

	released := s.dropTakeLocked()
	s.state = StateReadyToRecord
	return released, nil
}

// BeginUpload validates the confirm target against the active target, marks
// the upload in flight, and hands the caller the preview handle holding the
// take. A mismatched target is a validation error with no state change.
func (s *Session) BeginUpload(targetID uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRecordedPendingConfirm {
		return uuid.Nil, fmt.Errorf("%w: confirm in state %s", ErrInvalidTransition, s.state)
	}
	if s.target == nil || s.target.ID != targetID {
		return uuid.Nil, ErrTargetMismatch
	}
	if s.previewID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: no buffered take", ErrInvalidTransition)
	}

	s.uploading = true
	s.state = StateUploading
	return s.previewID, nil
}

// FinishUpload clears the uploading flag on both outcomes. On success the
// take and its preview handle are dropped and the returned handle ID must be
// released; on failure the session returns to recorded_pending_confirm so
// the user can retry or discard.
func (s *Session) FinishUpload(success bool, errMsg string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.uploading = false

	if !success {
		s.state = StateRecordedPendingConfirm
		s.lastError = errMsg
		return uuid.Nil
	}

	released := s.dropTakeLocked()
	s.lastError = ""
	// Terminal for this take. The caller supplies the next target, which
	// moves the machine back to checking_permission.
	s.target = nil
	s.rerecord = false
	s.state = StateIdleNoPermission
	return released
}

// CaptureFailed handles a capture-start or mid-capture failure: the stream
// is closed, the partial take dropped, and the machine returns to
// ready_to_record (or permission_denied when permission was lost).
func (s *Session) CaptureFailed(reason string) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.abortCaptureLocked(reason)
}

// EnterReview switches the session to review mode. The caller must release
// the returned preview handle ID, if any.
func (s *Session) EnterReview() (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploading {
		return uuid.Nil, ErrUploadInFlight
	}

	s.closeStreamLocked()
	released := s.dropTakeLocked()
	s.target = nil
	s.rerecord = false
	s.mode = ModeReview
	s.state = StateIdleNoPermission
	return released, nil
}

// Teardown releases everything the session holds. The caller must release
// the returned preview handle ID, if any. In-flight store calls are not
// cancelled.
func (s *Session) Teardown() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closeStreamLocked()
	return s.dropTakeLocked()
}

// UpdateView replaces the reconciler-maintained counts and next pending
// clip.
func (s *Session) UpdateView(counts store.ClipCounts, nextPending *domain.Clip) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counts = counts
	s.nextPending = nextPending
}

// UpdateCompleted replaces the reconciler-maintained completed list.
func (s *Session) UpdateCompleted(completed []*domain.Clip) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed = completed
}

// NextPending returns the cached next pending clip, or nil.
func (s *Session) NextPending() *domain.Clip {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.nextPending
}

// Mode returns the session's current mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.mode
}

// ClearRerecordTarget reacts to an external change of the re-record target:
// the target is cleared and the session drops back to review mode. Reports
// whether the session was affected; the returned preview handle ID, if any,
// must be released by the caller.
func (s *Session) ClearRerecordTarget(clipID uuid.UUID) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.rerecord || s.target == nil || s.target.ID != clipID || s.uploading {
		return uuid.Nil, false
	}

	s.closeStreamLocked()
	released := s.dropTakeLocked()
	s.target = nil
	s.rerecord = false
	s.mode = ModeReview
	s.state = StateIdleNoPermission
	return released, true
}

// SetLastError records a user-visible error on the session.
func (s *Session) SetLastError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastError = msg
}

// closeStreamLocked closes and forgets the open capture stream, if any.
// Callers hold s.mu.
func (s *Session) closeStreamLocked() {
	if s.stream != nil {
		_ = s.stream.Close()
		s.stream = nil
	}
}

// dropTakeLocked drops the buffered take and detaches the preview handle,
// returning its ID for the caller to release. Callers hold s.mu.
func (s *Session) dropTakeLocked() uuid.UUID {
	s.chunks = nil
	s.takeBytes = 0
	released := s.previewID
	s.previewID = uuid.Nil
	return released
}

// abortCaptureLocked ends a failed capture. Callers hold s.mu.
func (s *Session) abortCaptureLocked(reason string) uuid.UUID {
	s.closeStreamLocked()
	released := s.dropTakeLocked()
	s.lastError = reason
	if s.permission {
		s.state = StateReadyToRecord
	} else {
		s.state = StatePermissionDenied
	}
	return released
}
