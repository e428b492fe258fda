package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/recitalhq/recital-api/internal/events"
	"github.com/recitalhq/recital-api/internal/preview"
	"github.com/recitalhq/recital-api/internal/session"
	"github.com/recitalhq/recital-api/internal/task"
)

// fixture bundles a RecordingService with its fakes.
type fixture struct {
	svc      *RecordingService
	clips    *memoryClipStore
	storage  *memoryStorage
	previews *preview.Registry
	sessions *session.Manager
	feed     *events.ClipBroadcaster
	emitter  *events.InMemoryEventEmitter
	userID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clips := newMemoryClipStore()
	sessions := session.NewManager()
	previews := preview.NewRegistry()
	storage := newMemoryStorage()
	feed := events.NewClipBroadcaster(testLogger())
	emitter := events.NewInMemoryEventEmitter(testLogger())

	reconciler := session.NewReconciler(sessions, clips, previews, testLogger())
	feed.Subscribe(reconciler)

	svc, err := NewRecordingService(RecordingServiceParams{
		Clips:      clips,
		Sessions:   sessions,
		Previews:   previews,
		Recordings: storage,
		Reconciler: reconciler,
		Feed:       feed,
		Emitter:    emitter,
		Logger:     testLogger(),
	})
	require.NoError(t, err)

	return &fixture{
		svc:      svc,
		clips:    clips,
		storage:  storage,
		previews: previews,
		sessions: sessions,
		feed:     feed,
		emitter:  emitter,
		userID:   uuid.New(),
	}
}

// seedClips adds pending clips for the fixture user, spaced in time so
// ordering is deterministic.
func (f *fixture) seedClips(t *testing.T, texts ...string) []*domain.Clip {
	t.Helper()
	base := time.Now()
	clips := make([]*domain.Clip, 0, len(texts))
	for i, text := range texts {
		clip, err := domain.NewClip(f.userID, text)
		require.NoError(t, err)
		clip.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		clips = append(clips, clip)
	}
	require.NoError(t, f.clips.CreateBatch(context.Background(), clips))
	return clips
}

// recordTake drives the session to recorded_pending_confirm.
func (f *fixture) recordTake(t *testing.T, audio []byte) {
	t.Helper()
	ctx := context.Background()
	_, err := f.svc.ReportPermission(ctx, f.userID, true)
	require.NoError(t, err)
	require.NoError(t, f.svc.BeginCapture(ctx, f.userID, nopStream{}))
	require.NoError(t, f.svc.AppendChunk(ctx, f.userID, audio))
	_, err = f.svc.EndCapture(ctx, f.userID)
	require.NoError(t, err)
}

type nopStream struct{}

func (nopStream) Close() error { return nil }

func TestStartSessionTargetsOldestPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	clips := f.seedClips(t, "first", "second")

	snap, err := f.svc.StartSession(context.Background(), f.userID)
	require.NoError(t, err)

	assert.Equal(t, session.StateCheckingPermission, snap.State)
	require.NotNil(t, snap.Target)
	assert.Equal(t, clips[0].ID, snap.Target.ID)
	assert.Equal(t, 2, snap.Counts.Total)
}

func TestStartSessionWithoutClipsStaysIdle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	snap, err := f.svc.StartSession(context.Background(), f.userID)
	require.NoError(t, err)
	assert.Equal(t, session.StateIdleNoPermission, snap.State)
	assert.Nil(t, snap.Target)
}

func TestConfirmHappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	clips := f.seedClips(t, "first", "second")
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, f.userID)
	require.NoError(t, err)
	f.recordTake(t, []byte("take audio"))

	snap, err := f.svc.Confirm(ctx, f.userID, clips[0].ID)
	require.NoError(t, err)

	// Clip completed with the stored URL.
	updated, err := f.clips.GetByID(ctx, clips[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClipStatusCompleted, updated.Status)
	require.NotNil(t, updated.AudioURL)
	assert.Contains(t, *updated.AudioURL, clips[0].ID.String())
	assert.Equal(t, []byte("take audio"), f.storage.objects[clips[0].ID])

	// Verification queued.
	assert.Equal(t, domain.VerifyStatusQueued, updated.VerifyStatus)

	// Session moved to the next pending clip.
	require.NotNil(t, snap.Target)
	assert.Equal(t, clips[1].ID, snap.Target.ID)
	assert.Equal(t, session.StateCheckingPermission, snap.State)
	assert.Equal(t, 1, snap.Counts.Completed)

	// The preview handle was released.
	assert.Equal(t, 0, f.previews.Len())
}

func TestConfirmTargetMismatchWritesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	clips := f.seedClips(t, "first", "second")
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, f.userID)
	require.NoError(t, err)
	f.recordTake(t, []byte("take audio"))

	_, err = f.svc.Confirm(ctx, f.userID, clips[1].ID)
	assert.ErrorIs(t, err, session.ErrTargetMismatch)

	// No object write, no clip update.
	assert.Equal(t, 0, f.storage.saves)
	unchanged, err := f.clips.GetByID(ctx, clips[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClipStatusPending, unchanged.Status)

	// The take is still pending confirm.
	snap, err := f.svc.Snapshot(ctx, f.userID)
	require.NoError(t, err)
	assert.Equal(t, session.StateRecordedPendingConfirm, snap.State)
}

func TestConfirmStorageFailureLeavesClipUnchanged(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	clips := f.seedClips(t, "only line")
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, f.userID)
	require.NoError(t, err)
	f.recordTake(t, []byte("take audio"))

	f.storage.saveErr = assert.AnError
	_, err = f.svc.Confirm(ctx, f.userID, clips[0].ID)
	require.Error(t, err)

	unchanged, err := f.clips.GetByID(ctx, clips[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ClipStatusPending, unchanged.Status)

	// Uploading flag cleared, take retained for a retry.
	snap, err := f.svc.Snapshot(ctx, f.userID)
	require.NoError(t, err)
	assert.False(t, snap.Uploading)
	assert.Equal(t, session.StateRecordedPendingConfirm, snap.State)
	assert.NotEmpty(t, snap.LastError)

	// Retry succeeds after the storage recovers.
	f.storage.saveErr = nil
	_, err = f.svc.Confirm(ctx, f.userID, clips[0].ID)
	assert.NoError(t, err)
}

func TestConfirmLastClipEntersReview(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	clips := f.seedClips(t, "only line")
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, f.userID)
	require.NoError(t, err)
	f.recordTake(t, []byte("take audio"))

	snap, err := f.svc.Confirm(ctx, f.userID, clips[0].ID)
	require.NoError(t, err)

	assert.Equal(t, session.ModeReview, snap.Mode)
	require.Len(t, snap.Completed, 1)
	assert.Equal(t, clips[0].ID, snap.Completed[0].ID)
}

func TestConfirmEmitsVerificationEvent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	clips := f.seedClips(t, "only line")
	ctx := context.Background()

	var received []*events.TaskRequestEvent
	f.emitter.RegisterHandler(eventHandlerFunc(func(_ context.Context, e *events.TaskRequestEvent) error {
		received = append(received, e)
		return nil
	}))

	_, err := f.svc.StartSession(ctx, f.userID)
	require.NoError(t, err)
	f.recordTake(t, []byte("take audio"))

	_, err = f.svc.Confirm(ctx, f.userID, clips[0].ID)
	require.NoError(t, err)

	require.Len(t, received, 1)
	assert.Equal(t, task.TaskTypeRecordingVerification, received[0].Type)

	var payload struct {
		ClipID uuid.UUID `json:"clip_id"`
	}
	require.NoError(t, received[0].UnmarshalPayload(&payload))
	assert.Equal(t, clips[0].ID, payload.ClipID)
}

type eventHandlerFunc func(ctx context.Context, e *events.TaskRequestEvent) error

func (f eventHandlerFunc) HandleEvent(ctx context.Context, e *events.TaskRequestEvent) error {
	return f(ctx, e)
}

func TestRerecordFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	clips := f.seedClips(t, "only line")
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, f.userID)
	require.NoError(t, err)
	f.recordTake(t, []byte("first take"))
	_, err = f.svc.Confirm(ctx, f.userID, clips[0].ID)
	require.NoError(t, err)

	firstURL := *mustGet(t, f, clips[0].ID).AudioURL

	// Re-record the completed clip.
	snap, err := f.svc.Rerecord(ctx, f.userID, clips[0].ID)
	require.NoError(t, err)
	assert.True(t, snap.Rerecord)
	assert.Equal(t, session.StateCheckingPermission, snap.State)

	f.recordTake(t, []byte("second take"))
	_, err = f.svc.Confirm(ctx, f.userID, clips[0].ID)
	require.NoError(t, err)

	after := mustGet(t, f, clips[0].ID)
	assert.Equal(t, domain.ClipStatusCompleted, after.Status, "status stays completed across re-record")
	assert.Equal(t, firstURL, *after.AudioURL, "re-record keeps the same object URL")
	assert.Equal(t, []byte("second take"), f.storage.objects[clips[0].ID], "object content replaced")
}

func TestConfirmRerecordReturnsToReview(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	clips := f.seedClips(t, "first line", "second line")
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, f.userID)
	require.NoError(t, err)
	f.recordTake(t, []byte("take one"))
	_, err = f.svc.Confirm(ctx, f.userID, clips[0].ID)
	require.NoError(t, err)

	_, err = f.svc.EnterReview(ctx, f.userID)
	require.NoError(t, err)

	_, err = f.svc.Rerecord(ctx, f.userID, clips[0].ID)
	require.NoError(t, err)
	f.recordTake(t, []byte("take two"))

	// The second clip is still pending, but a re-record confirm goes back
	// to review instead of targeting it.
	snap, err := f.svc.Confirm(ctx, f.userID, clips[0].ID)
	require.NoError(t, err)
	assert.Equal(t, session.ModeReview, snap.Mode)
	assert.Nil(t, snap.Target)
	assert.False(t, snap.Rerecord)
}

func mustGet(t *testing.T, f *fixture, id uuid.UUID) *domain.Clip {
	t.Helper()
	clip, err := f.clips.GetByID(context.Background(), id)
	require.NoError(t, err)
	return clip
}

func TestRerecordGuards(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	clips := f.seedClips(t, "pending line")
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, f.userID)
	require.NoError(t, err)

	// Pending clip has nothing to replace.
	_, err = f.svc.Rerecord(ctx, f.userID, clips[0].ID)
	assert.ErrorIs(t, err, ErrClipNotCompleted)

	// Unknown clip.
	_, err = f.svc.Rerecord(ctx, f.userID, uuid.New())
	assert.ErrorIs(t, err, ErrClipNotFound)

	// Someone else's clip is indistinguishable from a missing one.
	other, err := domain.NewClip(uuid.New(), "not yours")
	require.NoError(t, err)
	require.NoError(t, other.Complete("https://cdn/x.webm"))
	require.NoError(t, f.clips.CreateBatch(ctx, []*domain.Clip{other}))
	_, err = f.svc.Rerecord(ctx, f.userID, other.ID)
	assert.ErrorIs(t, err, ErrClipNotFound)
}

func TestCancelRerecordMutatesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	clips := f.seedClips(t, "only line")
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, f.userID)
	require.NoError(t, err)
	f.recordTake(t, []byte("take"))
	_, err = f.svc.Confirm(ctx, f.userID, clips[0].ID)
	require.NoError(t, err)

	before := *mustGet(t, f, clips[0].ID)

	_, err = f.svc.Rerecord(ctx, f.userID, clips[0].ID)
	require.NoError(t, err)
	snap, err := f.svc.CancelRerecord(ctx, f.userID)
	require.NoError(t, err)

	assert.Equal(t, session.ModeReview, snap.Mode)
	after := *mustGet(t, f, clips[0].ID)
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, *before.AudioURL, *after.AudioURL)
}

func TestEndSessionReleasesPreview(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedClips(t, "only line")
	ctx := context.Background()

	_, err := f.svc.StartSession(ctx, f.userID)
	require.NoError(t, err)
	f.recordTake(t, []byte("take"))
	require.Equal(t, 1, f.previews.Len())

	f.svc.EndSession(ctx, f.userID)
	assert.Equal(t, 0, f.previews.Len())

	_, err = f.svc.Snapshot(ctx, f.userID)
	assert.ErrorIs(t, err, session.ErrSessionNotFound)
}
