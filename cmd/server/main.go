// Package main implements the entry point for the Recital API server,
// which turns pasted scripts into per-line audio recording tasks and stores
// the recorded takes.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/recitalhq/recital-api/internal/config"
	"github.com/recitalhq/recital-api/internal/platform/logger"
	"github.com/recitalhq/recital-api/internal/platform/postgres"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// run loads configuration, prepares the database, wires the application,
// and serves until interrupted.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("server configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"verification_enabled", cfg.Verify.GeminiAPIKey != "")

	db, err := openDatabase(cfg, appLogger)
	if err != nil {
		return err
	}

	if err := postgres.RunMigrations(db, appLogger); err != nil {
		return err
	}

	ctx := context.Background()
	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}
