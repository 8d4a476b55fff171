package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jatin-dot-py/matrx-microservice-template/internal/store"
)

// SQLSTATE codes mapped onto store errors
var codeErrors = map[string]error{
	"23505": store.ErrDuplicate,     // unique_violation
	"23503": store.ErrInvalidEntity, // foreign_key_violation
	"23514": store.ErrInvalidEntity, // check_violation, e.g. an unknown outcome
	"23502": store.ErrInvalidEntity, // not_null_violation
	"22P02": store.ErrInvalidEntity, // invalid_text_representation, e.g. a malformed uuid
}

// MapError translates driver errors into store errors. The result wraps
// both the store sentinel and the original error, so errors.As still finds
// the *pgconn.PgError. Unmapped errors are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %w", store.ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	sentinel, ok := codeErrors[pgErr.Code]
	if !ok {
		return err
	}

	switch {
	case pgErr.ConstraintName != "":
		return fmt.Errorf("%w (%s): %w", sentinel, pgErr.ConstraintName, err)
	case pgErr.ColumnName != "":
		return fmt.Errorf("%w (column %s): %w", sentinel, pgErr.ColumnName, err)
	default:
		return fmt.Errorf("%w: %w", sentinel, err)
	}
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
