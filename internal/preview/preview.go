// Package preview holds recorded takes in memory between capture and
// confirmation, so the client can play a take back before deciding to keep
// it. A handle exists from EndCapture until it is explicitly released; the
// bytes never touch the object store until the take is confirmed.
package preview

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrHandleNotFound is returned when a preview handle does not exist or was
// already released.
var ErrHandleNotFound = errors.New("preview handle not found")

// Handle is one playable take waiting for a confirm or discard decision.
type Handle struct {
	ID          uuid.UUID
	Audio       []byte
	ContentType string
	CreatedAt   time.Time
}

// Registry is an in-memory handle store. All methods are safe for concurrent
// use.
type Registry struct {
	mu      sync.RWMutex
	handles map[uuid.UUID]*Handle
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[uuid.UUID]*Handle)}
}

// Create registers a new handle for the given audio and returns it.
func (r *Registry) Create(audio []byte, contentType string) *Handle {
	if contentType == "" {
		contentType = "audio/webm"
	}

	h := &Handle{
		ID:          uuid.New(),
		Audio:       audio,
		ContentType: contentType,
		CreatedAt:   time.Now(),
	}

	r.mu.Lock()
	r.handles[h.ID] = h
	r.mu.Unlock()
	return h
}

// Get returns the handle with the given ID, or ErrHandleNotFound.
func (r *Registry) Get(id uuid.UUID) (*Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handles[id]
	if !ok {
		return nil, ErrHandleNotFound
	}
	return h, nil
}

// Release drops the handle and its buffered audio. Releasing an unknown or
// already-released handle is a no-op.
func (r *Registry) Release(id uuid.UUID) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

// Len reports how many handles are currently held.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
