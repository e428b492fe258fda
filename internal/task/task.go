// Package task provides durable background task processing: a bounded queue,
// a worker pool, and recovery of unfinished tasks across restarts.
package task

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

// Possible task status values.
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants.
const (
	// TaskTypeRecordingVerification checks an uploaded recording against the
	// clip text it was supposed to capture.
	TaskTypeRecordingVerification = "recording_verification"
)

// Task represents a unit of background work to be processed.
type Task interface {
	// ID returns the task's unique identifier.
	ID() uuid.UUID

	// Type returns the task type identifier.
	Type() string

	// Payload returns the task data as a byte slice.
	Payload() []byte

	// Status returns the current task status.
	Status() TaskStatus

	// Execute runs the task logic.
	Execute(ctx context.Context) error
}

// TaskStore defines the interface for persisting tasks.
type TaskStore interface {
	// SaveTask persists a task to the database.
	SaveTask(ctx context.Context, task Task) error

	// UpdateTaskStatus updates the status of a task.
	UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status TaskStatus, errorMsg string) error

	// GetPendingTasks retrieves all tasks with "pending" status.
	GetPendingTasks(ctx context.Context) ([]Task, error)

	// GetProcessingTasks retrieves tasks with "processing" status. A non-zero
	// olderThan restricts the result to tasks stuck in that state longer than
	// the given duration.
	GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]Task, error)

	// WithTx returns a TaskStore that runs against the provided transaction.
	WithTx(tx *sql.Tx) TaskStore
}

// Reviver rebuilds an executable Task from its persisted type and payload.
// Tasks loaded from the database have lost their wired dependencies; the
// runner passes each one through the reviver before requeueing it.
type Reviver interface {
	Revive(taskType string, taskID uuid.UUID, payload []byte) (Task, error)
}
