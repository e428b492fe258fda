package session

import "errors"

// State is the recording session's single state field. Transitions are
// enforced by the Session methods; there is no way to reach a state except
// through them.
type State string

// Recording session states.
const (
	// StateIdleNoPermission is the initial state: no target, microphone
	// permission unknown.
	StateIdleNoPermission State = "idle_no_permission"

	// StateCheckingPermission means a target is set and the client has been
	// asked to report its microphone permission.
	StateCheckingPermission State = "checking_permission"

	// StatePermissionDenied means the client reported a denied microphone.
	// The check may be re-triggered manually.
	StatePermissionDenied State = "permission_denied"

	// StateReadyToRecord means permission is granted and capture may start.
	StateReadyToRecord State = "ready_to_record"

	// StateRecording means the capture stream is open and buffering chunks.
	StateRecording State = "recording"

	// StateRecordedPendingConfirm means a take is buffered and waiting for
	// the confirm or discard decision.
	StateRecordedPendingConfirm State = "recorded_pending_confirm"

	// StateUploading means the confirmed take is being written to storage.
	StateUploading State = "uploading"
)

// Mode distinguishes the two halves of the workflow: recording pending clips
// versus reviewing completed ones.
type Mode string

// Session modes.
const (
	ModeRecord Mode = "record"
	ModeReview Mode = "review"
)

// Session state machine errors.
var (
	// ErrInvalidTransition is returned for an operation that is not legal in
	// the session's current state.
	ErrInvalidTransition = errors.New("operation not allowed in current session state")

	// ErrNoTarget is returned when capture is attempted without an active
	// target clip.
	ErrNoTarget = errors.New("no active target clip")

	// ErrNoPermission is returned when capture is attempted without a
	// granted microphone permission.
	ErrNoPermission = errors.New("microphone permission not granted")

	// ErrUploadInFlight is returned when an operation conflicts with an
	// upload that has not finished.
	ErrUploadInFlight = errors.New("upload in flight")

	// ErrTargetMismatch is returned when a confirm names a clip other than
	// the session's active target.
	ErrTargetMismatch = errors.New("confirmed clip does not match active target")

	// ErrTakeTooLarge is returned when a capture exceeds the configured
	// take size limit.
	ErrTakeTooLarge = errors.New("recorded take exceeds size limit")

	// ErrSessionNotFound is returned when no session exists for the user.
	ErrSessionNotFound = errors.New("no active session")
)
