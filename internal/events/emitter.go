package events

import (
	"context"
	"log/slog"
	"sync"
)

// InMemoryEventEmitter is a simple implementation of the EventEmitter
// interface that stores registered handlers in memory and dispatches events
// to them synchronously.
type InMemoryEventEmitter struct {
	handlers []EventHandler
	mu       sync.RWMutex
	logger   *slog.Logger
}

// NewInMemoryEventEmitter creates a new instance of InMemoryEventEmitter.
func NewInMemoryEventEmitter(logger *slog.Logger) *InMemoryEventEmitter {
	return &InMemoryEventEmitter{
		handlers: make([]EventHandler, 0),
		logger:   logger.With("component", "in_memory_event_emitter"),
	}
}

// RegisterHandler adds a new event handler to receive events.
func (e *InMemoryEventEmitter) RegisterHandler(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, handler)
	e.logger.Debug("registered new event handler", "handler_count", len(e.handlers))
}

// EmitEvent publishes the given event to all registered handlers. If a
// handler fails, the event is still delivered to the rest and the first
// error encountered is returned.
func (e *InMemoryEventEmitter) EmitEvent(ctx context.Context, event *TaskRequestEvent) error {
	e.mu.RLock()
	handlers := make([]EventHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.RUnlock()

	e.logger.Debug("emitting event",
		"event_id", event.ID,
		"event_type", event.Type,
		"handler_count", len(handlers))

	if len(handlers) == 0 {
		e.logger.Warn("no handlers registered for event",
			"event_id", event.ID,
			"event_type", event.Type)
		return nil
	}

	var firstErr error
	for i, handler := range handlers {
		if err := handler.HandleEvent(ctx, event); err != nil {
			e.logger.Error("handler failed to process event",
				"error", err,
				"handler_index", i,
				"event_id", event.ID,
				"event_type", event.Type)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

// ClipBroadcaster fans clip change events out to subscribed handlers. Every
// write to the clip collection publishes here exactly once, regardless of
// which record changed, so subscribers see the same stream a managed
// backend's change feed would deliver.
type ClipBroadcaster struct {
	mu       sync.RWMutex
	handlers map[ClipHandler]struct{}
	logger   *slog.Logger
}

// NewClipBroadcaster creates an empty ClipBroadcaster.
func NewClipBroadcaster(logger *slog.Logger) *ClipBroadcaster {
	return &ClipBroadcaster{
		handlers: make(map[ClipHandler]struct{}),
		logger:   logger.With("component", "clip_broadcaster"),
	}
}

// Ensure ClipBroadcaster implements ClipFeed.
var _ ClipFeed = (*ClipBroadcaster)(nil)

// Subscribe registers a handler for clip events.
func (b *ClipBroadcaster) Subscribe(handler ClipHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[handler] = struct{}{}
	b.logger.Debug("clip handler subscribed", "handler_count", len(b.handlers))
}

// Unsubscribe removes a previously registered handler. Safe to call for a
// handler that was never subscribed.
func (b *ClipBroadcaster) Unsubscribe(handler ClipHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, handler)
	b.logger.Debug("clip handler unsubscribed", "handler_count", len(b.handlers))
}

// Publish implements ClipFeed. Dispatch is synchronous: by the time Publish
// returns, every subscriber has observed the event.
func (b *ClipBroadcaster) Publish(ctx context.Context, event *ClipEvent) {
	b.mu.RLock()
	handlers := make([]ClipHandler, 0, len(b.handlers))
	for h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	b.logger.Debug("publishing clip event",
		"event_type", event.Type,
		"clip_id", event.ClipID(),
		"handler_count", len(handlers))

	for _, h := range handlers {
		h.HandleClipEvent(ctx, event)
	}
}
