package store

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// uniqueViolationCode is the Postgres SQLSTATE for a unique_violation.
const uniqueViolationCode = "23505"

// serializationFailureCode and lockNotAvailableCode are the transient
// Postgres SQLSTATEs that a retry (not a caller-visible failure) can clear:
// a serializable-isolation conflict and a NOWAIT/SKIP LOCKED lock miss.
const (
	serializationFailureCode = "40001"
	lockNotAvailableCode     = "55P03"
)

// isUniqueViolation reports whether err is a unique-constraint violation,
// so callers (e.g. article slug suffixing) can distinguish it from other
// failures without string-matching the driver error.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// isBusy reports whether err is a transient lock/serialization failure that
// is worth retrying immediately rather than surfacing to the caller.
func isBusy(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == serializationFailureCode || pgErr.Code == lockNotAvailableCode
}

// withBusyRetry runs fn, and if it fails on a transient lock/serialization
// error (SQLSTATE 40001/55P03), immediately retries it exactly once before
// giving up — a write under heavy contention on the same (topic, entity_id)
// or scope gets one free second chance instead of failing outright. If the
// retry also hits a transient failure, the caller sees ErrBusy.
func withBusyRetry(fn func() error) error {
	err := fn()
	if err == nil || !isBusy(err) {
		return err
	}
	if err := fn(); err != nil {
		if isBusy(err) {
			return fmt.Errorf("%w: %v", ErrBusy, err)
		}
		return err
	}
	return nil
}

var (
	// ErrNotFound is returned when a lookup by id/key matches no row.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a unique constraint or an invariant
	// (status transition, dense seq) would be violated.
	ErrConflict = errors.New("store: conflict")

	// ErrBusy is returned when a write hits a transient Postgres lock or
	// serialization failure (SQLSTATE 40001/55P03) twice in a row — once on
	// the original attempt, once on withBusyRetry's immediate retry.
	ErrBusy = errors.New("store: resource busy")
)
