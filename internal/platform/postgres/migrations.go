package postgres

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrationTableName is the table goose uses to track applied migrations.
const MigrationTableName = "schema_migrations"

// RunMigrations applies all pending schema migrations. Safe to call on every
// startup; an up-to-date database is a no-op.
func RunMigrations(db *sql.DB, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	goose.SetLogger(&slogGooseLogger{log: log})
	goose.SetBaseFS(migrationsFS)
	goose.SetTableName(MigrationTableName)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, err := goose.GetDBVersion(db)
	if err != nil {
		log.Warn("failed to read migration version", "error", err)
	} else {
		log.Info("database schema up to date", "version", version)
	}
	return nil
}

// slogGooseLogger adapts goose's logger interface to slog.
type slogGooseLogger struct {
	log *slog.Logger
}

func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Error(fmt.Sprintf(format, v...))
}

func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.log.Info(fmt.Sprintf(format, v...))
}
