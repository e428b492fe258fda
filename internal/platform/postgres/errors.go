package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/recitalhq/recital-api/internal/store"
)

// PostgreSQL error codes.
const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
	notNullViolationCode    = "23502"
)

// mapError maps a database error to the matching store sentinel, wrapping the
// original error for context. All store operations route errors through here
// so callers can rely on errors.Is against the store package sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %v", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		case foreignKeyViolationCode, checkViolationCode, notNullViolationCode:
			return fmt.Errorf(
				"%w: constraint violation (%s): %v",
				store.ErrInvalidEntity, pgErr.ConstraintName, err,
			)
		}
	}

	return err
}

// isUniqueViolation reports whether the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
