// Package testdb provides utilities for database integration tests. It only
// depends on the migration runner and standard database packages, not on
// specific store implementations.
package testdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	"github.com/stretchr/testify/require"

	"github.com/recitalhq/recital-api/internal/platform/postgres"
)

// TestTimeout is the default timeout for test database operations.
const TestTimeout = 5 * time.Second

var (
	migrateOnce sync.Once
	migrateErr  error
)

// GetTestDatabaseURL returns the database URL for integration tests. It
// checks DATABASE_URL and RECITAL_TEST_DB_URL in that order.
func GetTestDatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return os.Getenv("RECITAL_TEST_DB_URL")
}

// MustOpen connects to the test database and ensures the schema is current,
// skipping the test when no database URL is configured. The returned handle
// is closed with the test.
func MustOpen(t *testing.T) *sql.DB {
	t.Helper()

	url := GetTestDatabaseURL()
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping database integration test")
	}

	db, err := sql.Open("pgx", url)
	require.NoError(t, err, "failed to open test database")
	t.Cleanup(func() { _ = db.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), TestTimeout)
	defer cancel()
	require.NoError(t, db.PingContext(ctx), "failed to ping test database")

	migrateOnce.Do(func() {
		migrateErr = postgres.RunMigrations(db, nil)
	})
	require.NoError(t, migrateErr, "failed to migrate test database")

	return db
}

// WithTx executes fn inside a transaction that is rolled back afterwards,
// keeping tests isolated from each other.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	tx, err := db.Begin()
	require.NoError(t, err, "failed to begin transaction")

	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Errorf("failed to roll back transaction: %v", err)
		}
	}()

	fn(t, tx)
}
