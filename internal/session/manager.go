package session

import (
	"sync"

	"github.com/google/uuid"
)

// Manager tracks the active session per user. A user has at most one.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[uuid.UUID]*Session)}
}

// GetOrCreate returns the user's session, creating it on first use.
func (m *Manager) GetOrCreate(userID uuid.UUID, maxTakeBytes int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s
	}
	s := New(userID, maxTakeBytes)
	m.sessions[userID] = s
	return s
}

// Get returns the user's session, or ErrSessionNotFound.
func (m *Manager) Get(userID uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[userID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Remove tears the user's session down and forgets it. It returns the
// session's preview handle ID, if any, for the caller to release.
func (m *Manager) Remove(userID uuid.UUID) (uuid.UUID, bool) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	delete(m.sessions, userID)
	m.mu.Unlock()

	if !ok {
		return uuid.Nil, false
	}
	return s.Teardown(), true
}

// All returns the active sessions. The slice is a copy; the sessions are
// shared.
func (m *Manager) All() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	return out
}
