package service

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/recitalhq/recital-api/internal/domain"
	"github.com/recitalhq/recital-api/internal/events"
	"github.com/recitalhq/recital-api/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// memoryClipStore backs service tests with a map.
type memoryClipStore struct {
	mu          sync.Mutex
	clips       map[uuid.UUID]*domain.Clip
	completeErr error
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
	if s.completeErr != nil {
		return nil, s.completeErr
	}
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

// memoryStorage records saved takes by deterministic key.
type memoryStorage struct {
	mu      sync.Mutex
	objects map[uuid.UUID][]byte
	saves   int
	saveErr error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[uuid.UUID][]byte)}
}

func (m *memoryStorage) Save(_ context.Context, clipID uuid.UUID, audio []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return "", m.saveErr
	}
	m.objects[clipID] = audio
	m.saves++
	return "https://storage.example.com/recordings/" + clipID.String() + ".webm", nil
}

// capturedEvents collects published clip events.
type capturedEvents struct {
	mu     sync.Mutex
	events []*events.ClipEvent
}

func (c *capturedEvents) Publish(_ context.Context, e *events.ClipEvent) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *capturedEvents) all() []*events.ClipEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*events.ClipEvent(nil), c.events...)
}
