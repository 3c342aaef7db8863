package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgCheckViolation       = "23514"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	if pgErrCode(err) == pgUniqueViolation {
		return true
	}

	msg := err.Error()
	// MySQL (1062), SQLite (2067)
	return strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "Error 1062") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}

// IsRetryableTxErr reports conflicts that succeed when the statement is simply run again.
func IsRetryableTxErr(err error) bool {
	if err == nil {
		return false
	}
	switch pgErrCode(err) {
	case pgSerializationFailure, pgDeadlockDetected:
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "Error 1213")
}

func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if pgErrCode(err) == pgCheckViolation {
		return true
	}
	return strings.Contains(err.Error(), "CHECK constraint failed")
}

func pgErrCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
