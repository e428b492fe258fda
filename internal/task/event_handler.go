package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/recitalhq/recital-api/internal/events"
)

// TaskFactory creates an executable task for a clip.
type TaskFactory interface {
	CreateTask(clipID uuid.UUID) (Task, error)
}

// TaskSubmitter accepts tasks for background processing.
type TaskSubmitter interface {
	Submit(ctx context.Context, task Task) error
}

// TaskFactoryEventHandler implements the events.EventHandler interface: it
// turns task request events into runnable tasks and hands them to the
// runner. Events of other types are ignored, not errors.
type TaskFactoryEventHandler struct {
	eventType string
	factory   TaskFactory
	runner    TaskSubmitter
	logger    *slog.Logger
}

// NewTaskFactoryEventHandler creates an event handler that builds tasks of
// the given type from the factory and submits them to the runner.
func NewTaskFactoryEventHandler(eventType string, factory TaskFactory, runner TaskSubmitter, logger *slog.Logger) *TaskFactoryEventHandler {
	return &TaskFactoryEventHandler{
		eventType: eventType,
		factory:   factory,
		runner:    runner,
		logger:    logger.With("component", "task_factory_event_handler"),
	}
}

// Ensure TaskFactoryEventHandler implements events.EventHandler
var _ events.EventHandler = (*TaskFactoryEventHandler)(nil)

// HandleEvent extracts the clip ID from the event payload, creates the task,
// and submits it for execution.
func (h *TaskFactoryEventHandler) HandleEvent(ctx context.Context, event *events.TaskRequestEvent) error {
	if event.Type != h.eventType {
		h.logger.Debug("ignoring event with unsupported type",
			"event_type", event.Type,
			"event_id", event.ID)
		return nil
	}

	var payload struct {
		ClipID uuid.UUID `json:"clip_id"`
	}
	if err := event.UnmarshalPayload(&payload); err != nil {
		h.logger.Error("failed to unmarshal payload", "error", err, "event_id", event.ID)
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	if payload.ClipID == uuid.Nil {
		return fmt.Errorf("event %s carries no clip ID", event.ID)
	}

	t, err := h.factory.CreateTask(payload.ClipID)
	if err != nil {
		h.logger.Error("failed to create task",
			"error", err,
			"clip_id", payload.ClipID,
			"event_id", event.ID)
		return fmt.Errorf("failed to create task: %w", err)
	}

	if err := h.runner.Submit(ctx, t); err != nil {
		h.logger.Error("failed to submit task",
			"error", err,
			"task_id", t.ID(),
			"clip_id", payload.ClipID,
			"event_id", event.ID)
		return fmt.Errorf("failed to submit task: %w", err)
	}

	h.logger.Info("task created and submitted",
		"task_id", t.ID(),
		"task_type", t.Type(),
		"clip_id", payload.ClipID,
		"event_id", event.ID)
	return nil
}
