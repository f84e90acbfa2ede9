package store

import (
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"auction-service/internal/models"
)

// ErrConflict means a conditional write matched no row although a re-read
// found the bid acceptable. The state moved between the two statements.
var ErrConflict = errors.New("concurrent update conflict")

// Postgres SQLSTATE codes
const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// storageErr wraps a driver error so callers can match ErrStorageFailure
// while the cause stays inspectable.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", models.ErrStorageFailure, op, err)
}

// isUniqueViolation reports a unique index violation from either driver
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgUniqueViolation
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// IsTransient reports whether an operation may succeed if retried
func IsTransient(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pgSerializationFailure || pqErr.Code == pgDeadlockDetected
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}
	return false
}
