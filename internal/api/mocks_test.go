package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	apimiddleware "github.com/recitalhq/recital-api/internal/api/middleware"
	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/recitalhq/recital-api/internal/events"
	"github.com/recitalhq/recital-api/internal/preview"
	"github.com/recitalhq/recital-api/internal/service"
	"github.com/recitalhq/recital-api/internal/service/auth"
	"github.com/recitalhq/recital-api/internal/session"
	"github.com/recitalhq/recital-api/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// stubJWTService maps opaque token strings to user IDs.
type stubJWTService struct {
	mu     sync.Mutex
	tokens map[string]uuid.UUID
}

func newStubJWTService() *stubJWTService {
	return &stubJWTService{tokens: make(map[string]uuid.UUID)}
}

func (s *stubJWTService) GenerateToken(_ context.Context, userID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := "token-" + uuid.NewString()
	s.tokens[token] = userID
	return token, nil
}

func (s *stubJWTService) ValidateToken(_ context.Context, tokenString string) (*auth.Claims, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.tokens[tokenString]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &auth.Claims{UserID: userID, Subject: userID.String()}, nil
}

// memoryUserStore backs auth tests with a map keyed by email.
type memoryUserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemoryUserStore() *memoryUserStore {
	return &memoryUserStore{users: make(map[string]*domain.User)}
}

func (s *memoryUserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[user.Email]; exists {
		return store.ErrEmailExists
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	user.HashedPassword = string(hash)
	user.Password = ""
	s.users[user.Email] = user
	return nil
}

func (s *memoryUserStore) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (s *memoryUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[email]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u, nil
}

func (s *memoryUserStore) WithTx(_ *sql.Tx) store.UserStore { return s }

// memoryClipStore backs handler tests with a map.
type memoryClipStore struct {
	mu    sync.Mutex
	clips map[uuid.UUID]*domain.Clip
}

func newMemoryClipStore() *memoryClipStore {
	return &memoryClipStore{clips: make(map[uuid.UUID]*domain.Clip)}
}

func (s *memoryClipStore) CreateBatch(_ context.Context, clips []*domain.Clip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range clips {
		s.clips[c.ID] = c
	}
	return nil
}

func (s *memoryClipStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clips[id]
	if !ok {
		return nil, store.ErrClipNotFound
	}
	return c, nil
}

func (s *memoryClipStore) NextPending(_ context.Context, userID uuid.UUID) (*domain.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var next *domain.Clip
	for _, c := range s.clips {
		if c.UserID != userID || c.Status != domain.ClipStatusPending {
			continue
		}
		if next == nil || c.CreatedAt.Before(next.CreatedAt) {
			next = c
		}
	}
	if next == nil {
		return nil, store.ErrClipNotFound
	}
	return next, nil
}

func (s *memoryClipStore) Counts(_ context.Context, userID uuid.UUID) (store.ClipCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts store.ClipCounts
	for _, c := range s.clips {
		if c.UserID != userID {
			continue
		}
		counts.Total++
		if c.Status == domain.ClipStatusCompleted {
			counts.Completed++
		}
	}
	return counts, nil
}

func (s *memoryClipStore) ListCompleted(_ context.Context, userID uuid.UUID) ([]*domain.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Clip
	for _, c := range s.clips {
		if c.UserID == userID && c.Status == domain.ClipStatusCompleted {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memoryClipStore) CompleteWithAudio(_ context.Context, id uuid.UUID, audioURL string) (*domain.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clips[id]
	if !ok {
		return nil, store.ErrClipNotFound
	}
	if err := c.Complete(audioURL); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *memoryClipStore) SetVerification(_ context.Context, id uuid.UUID, status domain.VerifyStatus, note string) (*domain.Clip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.clips[id]
	if !ok {
		return nil, store.ErrClipNotFound
	}
	if err := c.SetVerification(status, note); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *memoryClipStore) WithTx(_ *sql.Tx) store.ClipStore { return s }

// memoryStorage stands in for the object store.
type memoryStorage struct {
	mu      sync.Mutex
	objects map[uuid.UUID][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[uuid.UUID][]byte)}
}

func (m *memoryStorage) Save(_ context.Context, clipID uuid.UUID, audio []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(audio))
	copy(buf, audio)
	m.objects[clipID] = buf
	return "https://recordings.test/" + clipID.String() + ".webm", nil
}

// testServer bundles the wired router with the state handles tests assert on.
type testServer struct {
	srv         *httptest.Server
	router      http.Handler
	jwt         *stubJWTService
	users       *memoryUserStore
	clips       *memoryClipStore
	storage     *memoryStorage
	previews    *preview.Registry
	broadcaster *events.ClipBroadcaster
	recording   *service.RecordingService
	feedHub     *FeedHub
}

// newTestServer wires the full API surface over in-memory dependencies,
// mirroring the production router layout.
func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := testLogger()
	jwt := newStubJWTService()
	users := newMemoryUserStore()
	clips := newMemoryClipStore()
	storage := newMemoryStorage()
	previews := preview.NewRegistry()
	sessions := session.NewManager()
	broadcaster := events.NewClipBroadcaster(log)
	reconciler := session.NewReconciler(sessions, clips, previews, log)
	broadcaster.Subscribe(reconciler)

	recording, err := service.NewRecordingService(service.RecordingServiceParams{
		Clips:      clips,
		Sessions:   sessions,
		Previews:   previews,
		Recordings: storage,
		Reconciler: reconciler,
		Feed:       broadcaster,
		Logger:     log,
	})
	require.NoError(t, err)

	// The lazy DB handle never connects; intake tests only exercise the
	// validation paths that fail before a transaction starts.
	lazyDB, err := sql.Open("pgx", "postgres://localhost/unused")
	require.NoError(t, err)
	t.Cleanup(func() { _ = lazyDB.Close() })
	intake, err := service.NewIntakeService(lazyDB, clips, broadcaster, log)
	require.NoError(t, err)

	authHandler := NewAuthHandler(users, jwt, auth.NewBcryptVerifier(), log)
	intakeHandler := NewIntakeHandler(intake, log)
	clipHandler := NewClipHandler(clips, log)
	sessionHandler := NewSessionHandler(recording, log)
	previewHandler := NewPreviewHandler(previews, log)
	captureHandler := NewCaptureHandler(recording, log)
	feedHub := NewFeedHub(log)
	broadcaster.Subscribe(feedHub)

	authMiddleware := apimiddleware.NewAuthMiddleware(jwt)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/scripts", intakeHandler.SubmitScript)

			r.Get("/clips/completed", clipHandler.GetCompleted)
			r.Get("/clips/next", clipHandler.GetNextPending)
			r.Get("/clips/counts", clipHandler.GetCounts)

			r.Post("/session/start", sessionHandler.StartSession)
			r.Get("/session", sessionHandler.GetSession)
			r.Post("/session/permission", sessionHandler.ReportPermission)
			r.Post("/session/discard", sessionHandler.Discard)
			r.Post("/session/confirm", sessionHandler.Confirm)
			r.Post("/session/rerecord", sessionHandler.Rerecord)
			r.Post("/session/rerecord/cancel", sessionHandler.CancelRerecord)
			r.Post("/session/review", sessionHandler.EnterReview)
			r.Delete("/session", sessionHandler.EndSession)

			r.Get("/session/capture", captureHandler.Capture)
			r.Get("/feed", feedHub.Feed)
			r.Get("/previews/{id}", previewHandler.GetPreview)
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		feedHub.Close()
		srv.Close()
	})

	return &testServer{
		srv:         srv,
		router:      r,
		jwt:         jwt,
		users:       users,
		clips:       clips,
		storage:     storage,
		previews:    previews,
		broadcaster: broadcaster,
		recording:   recording,
		feedHub:     feedHub,
	}
}

// newAuthedUser registers a token for a fresh user ID.
func (ts *testServer) newAuthedUser(t *testing.T) (uuid.UUID, string) {
	t.Helper()
	userID := uuid.New()
	token, err := ts.jwt.GenerateToken(context.Background(), userID)
	require.NoError(t, err)
	return userID, token
}

// seedClips creates pending clips for the user with ascending creation times.
func (ts *testServer) seedClips(t *testing.T, userID uuid.UUID, lines ...string) []*domain.Clip {
	t.Helper()
	base := time.Now().UTC().Add(-time.Minute)
	clips := make([]*domain.Clip, 0, len(lines))
	for i, line := range lines {
		clip, err := domain.NewClip(userID, line)
		require.NoError(t, err)
		clip.CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		clip.UpdatedAt = clip.CreatedAt
		clips = append(clips, clip)
	}
	require.NoError(t, ts.clips.CreateBatch(context.Background(), clips))
	return clips
}
