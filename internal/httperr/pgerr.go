package httperr

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// Postgres SQLSTATE values the API reports as conflicts.
const (
	pgExclusionViolation   = "23P01"
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsExclusionConflict reports a violated exclusion or unique constraint.
func IsExclusionConflict(err error) bool {
	switch pgCode(err) {
	case pgExclusionViolation, pgUniqueViolation:
		return true
	}
	return false
}

func IsSerializationFailure(err error) bool {
	switch pgCode(err) {
	case pgSerializationFailure, pgDeadlockDetected:
		return true
	}
	return false
}
