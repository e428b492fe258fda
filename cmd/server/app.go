package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/recitalhq/recital-api/internal/api"
	"github.com/recitalhq/recital-api/internal/config"
	"github.com/recitalhq/recital-api/internal/events"
	"github.com/recitalhq/recital-api/internal/platform/gemini"
	"github.com/recitalhq/recital-api/internal/platform/postgres"
	"github.com/recitalhq/recital-api/internal/platform/s3blob"
	"github.com/recitalhq/recital-api/internal/preview"
	"github.com/recitalhq/recital-api/internal/service"
	"github.com/recitalhq/recital-api/internal/service/auth"
	"github.com/recitalhq/recital-api/internal/session"
	"github.com/recitalhq/recital-api/internal/store"
	"github.com/recitalhq/recital-api/internal/task"
)

// application holds all the shared application dependencies to simplify
// management and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	// Stores
	userStore store.UserStore
	clipStore store.ClipStore
	taskStore task.TaskStore

	// Auth
	jwtService       auth.JWTService
	passwordVerifier auth.PasswordVerifier

	// Session state and change feed
	sessions    *session.Manager
	previews    *preview.Registry
	reconciler  *session.Reconciler
	broadcaster *events.ClipBroadcaster
	feedHub     *api.FeedHub

	// Storage and verification
	recordings   *s3blob.RecordingStore
	eventEmitter events.EventEmitter // nil when verification is disabled
	taskRunner   *task.TaskRunner    // nil when verification is disabled

	// Services
	intakeService    *service.IntakeService
	recordingService *service.RecordingService
}

// newApplication creates an application instance with all dependencies
// initialized. Configuration, logging, and the database connection must be
// established before this is called.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)

	app.passwordVerifier = auth.NewBcryptVerifier()

	bcryptCost := cfg.Auth.BCryptCost
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	app.userStore = postgres.NewPostgresUserStore(db, bcryptCost, logger)
	app.clipStore = postgres.NewPostgresClipStore(db, logger)
	app.taskStore = postgres.NewPostgresTaskStore(db, logger)

	app.recordings, err = s3blob.NewRecordingStore(cfg.Storage, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize recording storage: %w", err)
	}
	logger.Info("recording storage initialized", "bucket", cfg.Storage.Bucket)

	// Session state and the clip change feed. The reconciler keeps every
	// live session consistent with the database; the feed hub pushes the
	// same events to connected browsers.
	app.sessions = session.NewManager()
	app.previews = preview.NewRegistry()
	app.broadcaster = events.NewClipBroadcaster(logger)
	app.reconciler = session.NewReconciler(app.sessions, app.clipStore, app.previews, logger)
	app.broadcaster.Subscribe(app.reconciler)
	app.feedHub = api.NewFeedHub(logger)
	app.broadcaster.Subscribe(app.feedHub)

	if err := app.setupVerification(ctx); err != nil {
		return nil, err
	}

	app.intakeService, err = service.NewIntakeService(db, app.clipStore, app.broadcaster, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create intake service: %w", err)
	}

	app.recordingService, err = service.NewRecordingService(service.RecordingServiceParams{
		Clips:      app.clipStore,
		Sessions:   app.sessions,
		Previews:   app.previews,
		Recordings: app.recordings,
		Reconciler: app.reconciler,
		Feed:       app.broadcaster,
		Emitter:    app.eventEmitter,
		MaxTake:    cfg.Recording.MaxTakeBytes,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create recording service: %w", err)
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// setupVerification wires the Gemini verifier, task runner, and event
// handler. Without an API key the whole pipeline stays off and confirmed
// clips keep their initial verification status.
func (app *application) setupVerification(ctx context.Context) error {
	if app.config.Verify.GeminiAPIKey == "" {
		app.logger.Info("recording verification disabled, no API key configured")
		return nil
	}

	verifier, err := gemini.NewRecordingVerifier(ctx, app.config.Verify, app.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize recording verifier: %w", err)
	}

	factory := task.NewVerificationTaskFactory(app.clipStore, app.recordings, verifier, app.broadcaster, app.logger)

	app.taskRunner = task.NewTaskRunner(app.taskStore, factory, task.TaskRunnerConfig{
		QueueSize:    app.config.Task.QueueSize,
		WorkerCount:  app.config.Task.WorkerCount,
		StuckTaskAge: time.Duration(app.config.Task.StuckTaskAgeMinutes) * time.Minute,
	}, app.logger)

	if err := app.taskRunner.Start(); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	// Requeue tasks interrupted by the previous shutdown.
	if err := app.taskRunner.Recover(); err != nil {
		app.logger.Error("task recovery failed", "error", err)
	}

	emitter := events.NewInMemoryEventEmitter(app.logger)
	emitter.RegisterHandler(task.NewTaskFactoryEventHandler(
		task.TaskTypeRecordingVerification,
		factory,
		app.taskRunner,
		app.logger,
	))
	app.eventEmitter = emitter

	app.logger.Info("recording verification pipeline initialized",
		"workers", app.config.Task.WorkerCount,
		"queue_size", app.config.Task.QueueSize)
	return nil
}

// Run starts the application server, handling lifecycle and cleanup.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.taskRunner != nil {
		app.taskRunner.Stop()
	}

	if app.feedHub != nil {
		app.feedHub.Close()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}

	app.logger.Info("application shutdown completed")
}
