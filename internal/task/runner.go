package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TaskRunnerConfig holds configuration for the task runner.
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks.
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue.
	QueueSize int

	// StuckTaskAge defines how long a task can stay in processing state
	// before it is considered stuck and reset.
	StuckTaskAge time.Duration

	// StuckTaskCheckInterval defines how often to check for stuck tasks.
	// Zero means the 5 minute default.
	StuckTaskCheckInterval time.Duration
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults.
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount:            2,
		QueueSize:              100,
		StuckTaskAge:           30 * time.Minute,
		StuckTaskCheckInterval: 5 * time.Minute,
	}
}

// TaskRunner manages background task processing.
type TaskRunner struct {
	store      TaskStore
	reviver    Reviver
	taskChan   chan Task
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	config     TaskRunnerConfig
	logger     *slog.Logger
	errHandler func(task Task, err error)
}

// NewTaskRunner creates a new TaskRunner. The reviver may be nil, in which
// case persisted tasks are not requeued on recovery (they stay pending until
// the next start with a reviver wired in).
func NewTaskRunner(store TaskStore, reviver Reviver, config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	if config.StuckTaskCheckInterval == 0 {
		config.StuckTaskCheckInterval = 5 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TaskRunner{
		store:      store,
		reviver:    reviver,
		taskChan:   make(chan Task, config.QueueSize),
		ctx:        ctx,
		cancelFunc: cancel,
		config:     config,
		logger:     logger.With("component", "task_runner"),
		errHandler: func(task Task, err error) {
			logger.Error("task execution failed",
				"task_id", task.ID(),
				"task_type", task.Type(),
				"error", err)
		},
	}
}

// SetErrorHandler allows setting a custom error handler function.
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	r.errHandler = handler
}

// Submit persists a new task and adds it to the queue.
func (r *TaskRunner) Submit(ctx context.Context, task Task) error {
	if err := r.store.SaveTask(ctx, task); err != nil {
		return fmt.Errorf("failed to save task: %w", err)
	}

	select {
	case r.taskChan <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full, try again later")
	}
}

// Start recovers unfinished tasks and launches the worker pool.
func (r *TaskRunner) Start() error {
	if err := r.Recover(); err != nil {
		return fmt.Errorf("failed to recover tasks: %w", err)
	}

	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go r.stuckTaskMonitor()

	return nil
}

// Stop gracefully shuts down the task runner.
func (r *TaskRunner) Stop() {
	r.cancelFunc()
	r.wg.Wait()
	close(r.taskChan)
}

// Recover requeues tasks left unfinished by a previous run: pending tasks as
// they are, processing tasks reset to pending first.
func (r *TaskRunner) Recover() error {
	ctx := context.Background()

	pendingTasks, err := r.store.GetPendingTasks(ctx)
	if err != nil {
		return fmt.Errorf("failed to get pending tasks: %w", err)
	}

	processingTasks, err := r.store.GetProcessingTasks(ctx, 0)
	if err != nil {
		return fmt.Errorf("failed to get processing tasks: %w", err)
	}

	r.logger.Info("recovering unfinished tasks",
		"pending_count", len(pendingTasks),
		"processing_count", len(processingTasks))

	for _, t := range pendingTasks {
		r.requeue(t)
	}

	for _, t := range processingTasks {
		if err := r.store.UpdateTaskStatus(ctx, t.ID(), TaskStatusPending, "Reset after recovery"); err != nil {
			r.logger.Error("failed to reset processing task status",
				"task_id", t.ID(),
				"task_type", t.Type(),
				"error", err)
			continue
		}
		r.requeue(t)
	}

	return nil
}

// requeue revives a persisted task into an executable one and enqueues it.
func (r *TaskRunner) requeue(t Task) {
	if r.reviver != nil {
		revived, err := r.reviver.Revive(t.Type(), t.ID(), t.Payload())
		if err != nil {
			r.logger.Error("failed to revive task",
				"task_id", t.ID(),
				"task_type", t.Type(),
				"error", err)
			return
		}
		t = revived
	}

	select {
	case r.taskChan <- t:
	default:
		r.logger.Error("failed to requeue task, queue is full",
			"task_id", t.ID(),
			"task_type", t.Type())
	}
}

// worker processes tasks from the queue.
func (r *TaskRunner) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Debug("stopping worker", "worker_id", id)
			return

		case task, ok := <-r.taskChan:
			if !ok {
				return
			}
			r.processTask(task, id)
		}
	}
}

// processTask handles execution of a single task.
func (r *TaskRunner) processTask(task Task, workerID int) {
	ctx := context.Background()
	log := r.logger.With(
		"task_id", task.ID(),
		"task_type", task.Type(),
		"worker_id", workerID,
	)

	if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusProcessing, ""); err != nil {
		log.Error("failed to update task status to processing", "error", err)
		return
	}

	log.Info("processing task")

	if err := task.Execute(ctx); err != nil {
		log.Error("task execution failed", "error", err)
		if updateErr := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusFailed, err.Error()); updateErr != nil {
			log.Error("failed to update task status to failed", "error", updateErr)
		}
		r.errHandler(task, err)
		return
	}

	log.Info("task completed successfully")
	if err := r.store.UpdateTaskStatus(ctx, task.ID(), TaskStatusCompleted, ""); err != nil {
		log.Error("failed to update task status to completed", "error", err)
	}
}

// stuckTaskMonitor periodically resets tasks stuck in processing state.
func (r *TaskRunner) stuckTaskMonitor() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.StuckTaskCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return

		case <-ticker.C:
			ctx := context.Background()

			stuckTasks, err := r.store.GetProcessingTasks(ctx, r.config.StuckTaskAge)
			if err != nil {
				r.logger.Error("failed to check for stuck tasks", "error", err)
				continue
			}
			if len(stuckTasks) == 0 {
				continue
			}

			r.logger.Info("found stuck tasks", "count", len(stuckTasks))
			for _, t := range stuckTasks {
				if err := r.store.UpdateTaskStatus(ctx, t.ID(), TaskStatusPending,
					"Reset after being stuck in processing state"); err != nil {
					r.logger.Error("failed to reset stuck task status",
						"task_id", t.ID(),
						"task_type", t.Type(),
						"error", err)
					continue
				}
				r.requeue(t)
			}
		}
	}
}
