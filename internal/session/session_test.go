package session

import (
	"testing"

	"github.com/google/uuid"
	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream counts Close calls.
type fakeStream struct {
	closed int
}

func (f *fakeStream) Close() error {
	f.closed++
	return nil
}

func testClip(t *testing.T) *domain.Clip {
	t.Helper()
	clip, err := domain.NewClip(uuid.New(), "a line to read")
	require.NoError(t, err)
	return clip
}

// readySession returns a session with a target set and permission granted.
func readySession(t *testing.T) (*Session, *domain.Clip) {
	t.Helper()
	clip := testClip(t)
	s := New(clip.UserID, 0)
	_, err := s.SetTarget(clip, false)
	require.NoError(t, err)
	require.NoError(t, s.ReportPermission(true))
	require.Equal(t, StateReadyToRecord, s.Snapshot().State)
	return s, clip
}

func TestSessionInitialState(t *testing.T) {
	t.Parallel()

	s := New(uuid.New(), 0)
	snap := s.Snapshot()
	assert.Equal(t, StateIdleNoPermission, snap.State)
	assert.Equal(t, ModeRecord, snap.Mode)
	assert.Nil(t, snap.Target)
}

func TestSetTargetAsksForPermission(t *testing.T) {
	t.Parallel()

	clip := testClip(t)
	s := New(clip.UserID, 0)

	_, err := s.SetTarget(clip, false)
	require.NoError(t, err)

	snap := s.Snapshot()
	assert.Equal(t, StateCheckingPermission, snap.State)
	assert.Equal(t, clip.ID, snap.Target.ID)
}

func TestReportPermission(t *testing.T) {
	t.Parallel()

	clip := testClip(t)
	s := New(clip.UserID, 0)
	_, err := s.SetTarget(clip, false)
	require.NoError(t, err)

	require.NoError(t, s.ReportPermission(false))
	assert.Equal(t, StatePermissionDenied, s.Snapshot().State)

	// Manual re-trigger from the denied state is allowed.
	require.NoError(t, s.ReportPermission(true))
	assert.Equal(t, StateReadyToRecord, s.Snapshot().State)

	// But not from arbitrary states.
	require.NoError(t, s.BeginCapture(&fakeStream{}))
	assert.ErrorIs(t, s.ReportPermission(true), ErrInvalidTransition)
}

func TestBeginCaptureGuards(t *testing.T) {
	t.Parallel()

	t.Run("no target", func(t *testing.T) {
		t.Parallel()
		s := New(uuid.New(), 0)
		assert.ErrorIs(t, s.BeginCapture(&fakeStream{}), ErrNoTarget)
	})

	t.Run("no permission", func(t *testing.T) {
		t.Parallel()
		clip := testClip(t)
		s := New(clip.UserID, 0)
		_, err := s.SetTarget(clip, false)
		require.NoError(t, err)
		assert.ErrorIs(t, s.BeginCapture(&fakeStream{}), ErrNoPermission)
	})

	t.Run("upload in flight", func(t *testing.T) {
		t.Parallel()
		s, clip := recordedSession(t)
		_, err := s.BeginUpload(clip.ID)
		require.NoError(t, err)
		assert.ErrorIs(t, s.BeginCapture(&fakeStream{}), ErrUploadInFlight)
	})
}

func TestSingleCaptureStream(t *testing.T) {
	t.Parallel()

	s, _ := readySession(t)

	first := &fakeStream{}
	require.NoError(t, s.BeginCapture(first))
	assert.Equal(t, StateRecording, s.Snapshot().State)

	// Starting a new capture while recording closes the prior stream first.
	second := &fakeStream{}
	require.NoError(t, s.BeginCapture(second))
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 0, second.closed)

	_, err := s.EndCapture()
	require.NoError(t, err)
	assert.Equal(t, 1, second.closed)
}

func TestCaptureBuffersChunksInOrder(t *testing.T) {
	t.Parallel()

	s, _ := readySession(t)
	require.NoError(t, s.BeginCapture(&fakeStream{}))

	require.NoError(t, s.AppendChunk([]byte("one ")))
	require.NoError(t, s.AppendChunk([]byte("two ")))
	require.NoError(t, s.AppendChunk([]byte("three")))

	take, err := s.EndCapture()
	require.NoError(t, err)
	assert.Equal(t, []byte("one two three"), take)
	assert.Equal(t, StateRecordedPendingConfirm, s.Snapshot().State)
}

func TestAppendChunkOnlyWhileRecording(t *testing.T) {
	t.Parallel()

	s, _ := readySession(t)
	assert.ErrorIs(t, s.AppendChunk([]byte("x")), ErrInvalidTransition)
}

func TestOversizedTakeAbortsCapture(t *testing.T) {
	t.Parallel()

	clip := testClip(t)
	s := New(clip.UserID, 8)
	_, err := s.SetTarget(clip, false)
	require.NoError(t, err)
	require.NoError(t, s.ReportPermission(true))

	stream := &fakeStream{}
	require.NoError(t, s.BeginCapture(stream))
	require.NoError(t, s.AppendChunk([]byte("12345678")))

	err = s.AppendChunk([]byte("9"))
	assert.ErrorIs(t, err, ErrTakeTooLarge)
	assert.Equal(t, 1, stream.closed)

	snap := s.Snapshot()
	assert.Equal(t, StateReadyToRecord, snap.State)
	assert.NotEmpty(t, snap.LastError)
}

// recordedSession returns a session holding a buffered take with a preview
// handle attached.
func recordedSession(t *testing.T) (*Session, *domain.Clip) {
	t.Helper()
	s, clip := readySession(t)
	require.NoError(t, s.BeginCapture(&fakeStream{}))
	require.NoError(t, s.AppendChunk([]byte("take")))
	_, err := s.EndCapture()
	require.NoError(t, err)
	s.AttachPreview(uuid.New())
	return s, clip
}

func TestDiscardReleasesPreview(t *testing.T) {
	t.Parallel()

	s, _ := recordedSession(t)
	snap := s.Snapshot()
	require.NotNil(t, snap.PreviewID)

	released, err := s.Discard()
	require.NoError(t, err)
	assert.Equal(t, *snap.PreviewID, released)
	assert.Equal(t, StateReadyToRecord, s.Snapshot().State)
	assert.Nil(t, s.Snapshot().PreviewID)
}

func TestAttachPreviewReturnsSuperseded(t *testing.T) {
	t.Parallel()

	s, _ := recordedSession(t)
	first := *s.Snapshot().PreviewID

	second := uuid.New()
	superseded := s.AttachPreview(second)
	assert.Equal(t, first, superseded)
}

func TestBeginUploadTargetMismatch(t *testing.T) {
	t.Parallel()

	s, _ := recordedSession(t)

	_, err := s.BeginUpload(uuid.New())
	assert.ErrorIs(t, err, ErrTargetMismatch)

	// No state change: the take is still pending confirm.
	snap := s.Snapshot()
	assert.Equal(t, StateRecordedPendingConfirm, snap.State)
	assert.False(t, snap.Uploading)
}

func TestUploadLifecycle(t *testing.T) {
	t.Parallel()

	s, clip := recordedSession(t)
	previewID := *s.Snapshot().PreviewID

	handle, err := s.BeginUpload(clip.ID)
	require.NoError(t, err)
	assert.Equal(t, previewID, handle)

	snap := s.Snapshot()
	assert.True(t, snap.Uploading)
	assert.Equal(t, StateUploading, snap.State)

	released := s.FinishUpload(true, "")
	assert.Equal(t, previewID, released)

	snap = s.Snapshot()
	assert.False(t, snap.Uploading)
	assert.Equal(t, StateIdleNoPermission, snap.State)
	assert.Nil(t, snap.Target)
}

func TestUploadFailureKeepsTake(t *testing.T) {
	t.Parallel()

	s, clip := recordedSession(t)

	_, err := s.BeginUpload(clip.ID)
	require.NoError(t, err)

	released := s.FinishUpload(false, "storage unavailable")
	assert.Equal(t, uuid.Nil, released, "take survives a failed upload")

	snap := s.Snapshot()
	assert.False(t, snap.Uploading)
	assert.Equal(t, StateRecordedPendingConfirm, snap.State)
	assert.Equal(t, "storage unavailable", snap.LastError)
	assert.NotNil(t, snap.PreviewID)

	// A second confirm attempt is legal after the failure.
	_, err = s.BeginUpload(clip.ID)
	assert.NoError(t, err)
}

func TestSetTargetRejectedDuringUpload(t *testing.T) {
	t.Parallel()

	s, clip := recordedSession(t)
	_, err := s.BeginUpload(clip.ID)
	require.NoError(t, err)

	_, err = s.SetTarget(testClip(t), false)
	assert.ErrorIs(t, err, ErrUploadInFlight)
}

func TestClearRerecordTarget(t *testing.T) {
	t.Parallel()

	clip := testClip(t)
	s := New(clip.UserID, 0)
	_, err := s.SetTarget(clip, true)
	require.NoError(t, err)

	// Events for other clips leave the target alone.
	_, affected := s.ClearRerecordTarget(uuid.New())
	assert.False(t, affected)

	_, affected = s.ClearRerecordTarget(clip.ID)
	assert.True(t, affected)

	snap := s.Snapshot()
	assert.Equal(t, ModeReview, snap.Mode)
	assert.Nil(t, snap.Target)

	// A plain (non-re-record) target is never cleared this way.
	s2 := New(clip.UserID, 0)
	_, err = s2.SetTarget(clip, false)
	require.NoError(t, err)
	_, affected = s2.ClearRerecordTarget(clip.ID)
	assert.False(t, affected)
}

func TestTeardownClosesStreamAndReleasesPreview(t *testing.T) {
	t.Parallel()

	s, _ := readySession(t)
	stream := &fakeStream{}
	require.NoError(t, s.BeginCapture(stream))
	require.NoError(t, s.AppendChunk([]byte("take")))

	previewID := uuid.New()
	s.AttachPreview(previewID)

	released := s.Teardown()
	assert.Equal(t, previewID, released)
	assert.Equal(t, 1, stream.closed)
}

func TestCaptureFailedReturnsToReady(t *testing.T) {
	t.Parallel()

	s, _ := readySession(t)
	stream := &fakeStream{}
	require.NoError(t, s.BeginCapture(stream))

	s.CaptureFailed("stream dropped")

	snap := s.Snapshot()
	assert.Equal(t, StateReadyToRecord, snap.State)
	assert.Equal(t, "stream dropped", snap.LastError)
	assert.Equal(t, 1, stream.closed)
}
