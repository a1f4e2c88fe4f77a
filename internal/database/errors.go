package database

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/fossabot/gfw-data-api/internal/status"
)

// Sentinel errors shared with the status package so callers can match
// either store.
var (
	ErrNotFound      = status.ErrNotFound
	ErrAlreadyExists = status.ErrAlreadyExists
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// mapError translates driver errors from lib/pq or pgx into sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	code := sqlState(err)
	switch code {
	case codeUniqueViolation:
		return fmt.Errorf("%w: %w", ErrAlreadyExists, err)
	case codeForeignKeyViolation:
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}

func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
