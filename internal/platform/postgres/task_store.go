package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/recitalhq/recital-api/internal/platform/logger"
	"github.com/recitalhq/recital-api/internal/task"
)

// taskColumns is the column list shared by every task SELECT.
const taskColumns = "id, type, payload, status, error_message, created_at, updated_at"

// PostgresTaskStore implements the task.TaskStore interface using a
// PostgreSQL database as the storage backend.
type PostgresTaskStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// NewPostgresTaskStore creates a new PostgreSQL implementation of the
// TaskStore interface. If logger is nil, the default logger is used.
func NewPostgresTaskStore(db *sql.DB, logger *slog.Logger) *PostgresTaskStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresTaskStore{
		db:     db,
		logger: logger.With(slog.String("component", "task_store")),
	}
}

// Ensure PostgresTaskStore implements task.TaskStore
var _ task.TaskStore = (*PostgresTaskStore)(nil)

// WithTx implements task.TaskStore.WithTx
func (s *PostgresTaskStore) WithTx(tx *sql.Tx) task.TaskStore {
	return &PostgresTaskStore{
		db:     s.db,
		tx:     tx,
		logger: s.logger,
	}
}

// querier returns the transaction when one is attached, the pool otherwise.
func (s *PostgresTaskStore) querier() interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
} {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// SaveTask implements task.TaskStore.SaveTask
func (s *PostgresTaskStore) SaveTask(ctx context.Context, t task.Task) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		INSERT INTO tasks (id, type, payload, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())`

	if _, err := s.querier().ExecContext(ctx, query, t.ID(), t.Type(), t.Payload(), t.Status()); err != nil {
		log.Error("failed to save task",
			slog.String("error", err.Error()),
			slog.String("task_id", t.ID().String()),
			slog.String("task_type", t.Type()))
		return mapError(err)
	}

	log.Debug("task saved",
		slog.String("task_id", t.ID().String()),
		slog.String("task_type", t.Type()))
	return nil
}

// UpdateTaskStatus implements task.TaskStore.UpdateTaskStatus
func (s *PostgresTaskStore) UpdateTaskStatus(ctx context.Context, taskID uuid.UUID, status task.TaskStatus, errorMsg string) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		UPDATE tasks
		SET status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1`

	result, err := s.querier().ExecContext(ctx, query, taskID, status, errorMsg)
	if err != nil {
		log.Error("failed to update task status",
			slog.String("error", err.Error()),
			slog.String("task_id", taskID.String()),
			slog.String("status", string(status)))
		return mapError(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return mapError(err)
	}
	if rows == 0 {
		return fmt.Errorf("task %s not found", taskID)
	}

	log.Debug("task status updated",
		slog.String("task_id", taskID.String()),
		slog.String("status", string(status)))
	return nil
}

// GetPendingTasks implements task.TaskStore.GetPendingTasks
func (s *PostgresTaskStore) GetPendingTasks(ctx context.Context) ([]task.Task, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE status = $1
		ORDER BY created_at ASC`, taskColumns)

	return s.getTasks(ctx, query, task.TaskStatusPending)
}

// GetProcessingTasks implements task.TaskStore.GetProcessingTasks
func (s *PostgresTaskStore) GetProcessingTasks(ctx context.Context, olderThan time.Duration) ([]task.Task, error) {
	if olderThan > 0 {
		query := fmt.Sprintf(`
			SELECT %s FROM tasks
			WHERE status = $1 AND updated_at < $2
			ORDER BY created_at ASC`, taskColumns)
		return s.getTasks(ctx, query, task.TaskStatusProcessing, time.Now().Add(-olderThan))
	}

	query := fmt.Sprintf(`
		SELECT %s FROM tasks
		WHERE status = $1
		ORDER BY created_at ASC`, taskColumns)
	return s.getTasks(ctx, query, task.TaskStatusProcessing)
}

func (s *PostgresTaskStore) getTasks(ctx context.Context, query string, args ...any) ([]task.Task, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	rows, err := s.querier().QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query tasks", slog.String("error", err.Error()))
		return nil, mapError(err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]task.Task, 0)
	for rows.Next() {
		var dt databaseTask
		var errorMsg sql.NullString
		err := rows.Scan(
			&dt.id,
			&dt.taskType,
			&dt.payload,
			&dt.status,
			&errorMsg,
			&dt.createdAt,
			&dt.updatedAt,
		)
		if err != nil {
			return nil, mapError(err)
		}
		if errorMsg.Valid {
			dt.errorMessage = errorMsg.String
		}
		tasks = append(tasks, &dt)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
	}

	return tasks, nil
}

// databaseTask is a task row loaded from the database. It satisfies the Task
// interface for bookkeeping purposes only; a loaded row has lost its wired
// dependencies and must be passed through a Reviver before it can run.
type databaseTask struct {
	id           uuid.UUID
	taskType     string
	payload      []byte
	status       task.TaskStatus
	errorMessage string
	createdAt    time.Time
	updatedAt    time.Time
}

var errTaskNotExecutable = errors.New("task loaded from database is not executable; revive it first")

func (t *databaseTask) ID() uuid.UUID           { return t.id }
func (t *databaseTask) Type() string            { return t.taskType }
func (t *databaseTask) Payload() []byte         { return t.payload }
func (t *databaseTask) Status() task.TaskStatus { return t.status }

func (t *databaseTask) Execute(_ context.Context) error {
	return errTaskNotExecutable
}
