package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smallbiznis/backoffice/pkg/errs"
	"gorm.io/gorm"
)

const (
	pgUniqueViolation      = "23505"
	pgCheckViolation       = "23514"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, pgUniqueViolation) {
		return true
	}

	msg := err.Error()
	// PostgreSQL via lib/pq or a wrapped driver message
	if strings.Contains(msg, "duplicate key value violates unique constraint") {
		return true
	}
	// MySQL (error code 1062)
	if strings.Contains(msg, "Error 1062") {
		return true
	}
	// SQLite (error code 2067)
	if strings.Contains(msg, "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsSerializationErr reports transient contention failures that a fresh transaction may clear.
func IsSerializationErr(err error) bool {
	if err == nil {
		return false
	}
	if hasPGCode(err, pgSerializationFailure) || hasPGCode(err, pgDeadlockDetected) || hasPGCode(err, pgLockNotAvailable) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Error 1213") || // MySQL deadlock
		strings.Contains(msg, "database is locked")
}

// IsCheckViolation reports rows rejected by a CHECK constraint.
func IsCheckViolation(err error) bool {
	if err == nil {
		return false
	}
	if hasPGCode(err, pgCheckViolation) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "CHECK constraint failed") || // SQLite
		strings.Contains(msg, "Error 3819") // MySQL
}

// Classify marks retryable storage failures as conflicts and rejected values as
// validation errors. Everything else is left untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errs.IsConflict(err) || errs.IsValidation(err) {
		return err
	}
	if IsDuplicateKeyErr(err) || IsSerializationErr(err) {
		return errs.MarkConflict(err)
	}
	if IsCheckViolation(err) {
		return errs.MarkValidation(err)
	}
	return err
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
