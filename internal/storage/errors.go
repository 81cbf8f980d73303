package storage

import "errors"

var (
	// ErrNotFound means the referenced entity does not exist or has been
	// soft-removed. Not retryable; the caller holds a stale reference.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate means a name-uniqueness constraint in the target scope
	// was violated, either by a pre-check inside a transaction or by the
	// database at commit time. Not retryable; it is a business conflict.
	ErrDuplicate = errors.New("already exists")

	// ErrConflict means a concurrent transaction won a write-write race.
	// Safe to retry; the engine retries once before surfacing it.
	ErrConflict = errors.New("write conflict")

	// ErrUnavailable means the store itself could not be reached. Callers
	// should retry after backoff; the data is not corrupt.
	ErrUnavailable = errors.New("storage unavailable")
)
