// Package events decouples services from the components that react to their
// writes: the task runner (via TaskRequestEvent) and the realtime change feed
// (via ClipEvent).
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/recitalhq/recital-api/internal/domain"
)

// TaskRequestEvent represents a request to create a background task. It
// carries the task-specific data without a direct dependency on the task
// package.
type TaskRequestEvent struct {
	// ID is a unique identifier for this event.
	ID uuid.UUID `json:"id"`

	// Type indicates the task type that should be created.
	Type string `json:"type"`

	// Payload contains the task-specific data serialized as JSON.
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created.
	CreatedAt time.Time `json:"created_at"`
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *TaskRequestEvent) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewTaskRequestEvent creates a new TaskRequestEvent with the specified type
// and payload.
func NewTaskRequestEvent(eventType string, payload interface{}) (*TaskRequestEvent, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &TaskRequestEvent{
		ID:        uuid.New(),
		Type:      eventType,
		Payload:   payloadBytes,
		CreatedAt: time.Now(),
	}, nil
}

// EventHandler defines an interface for components that can handle task
// request events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *TaskRequestEvent) error
}

// EventEmitter defines an interface for components that can emit task
// request events.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *TaskRequestEvent) error
}

// ClipEventType classifies a change to the clip collection.
type ClipEventType string

// Clip change event types, mirroring the row operations of the store.
const (
	ClipInserted ClipEventType = "insert"
	ClipUpdated  ClipEventType = "update"
	ClipDeleted  ClipEventType = "delete"
)

// ClipEvent is one change to a clip record: the event type plus the new and
// old snapshots (Old is nil for inserts, Clip is nil for deletes).
type ClipEvent struct {
	Type ClipEventType `json:"type"`
	Clip *domain.Clip  `json:"clip,omitempty"`
	Old  *domain.Clip  `json:"old,omitempty"`
}

// ClipID returns the identifier of the changed record, whichever snapshot
// carries it.
func (e *ClipEvent) ClipID() uuid.UUID {
	if e.Clip != nil {
		return e.Clip.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return uuid.Nil
}

// ClipHandler receives clip change events. Handlers must not block: dispatch
// is synchronous and runs on the writer's goroutine.
type ClipHandler interface {
	HandleClipEvent(ctx context.Context, event *ClipEvent)
}

// ClipFeed is the publishing side of the clip change feed.
type ClipFeed interface {
	// Publish delivers the event to every subscribed handler.
	Publish(ctx context.Context, event *ClipEvent)
}
