package store

import "errors"

// Sentinel errors matching the error taxonomy of SPEC_FULL.md §7. Callers
// (the orchestrator, the facade) branch on these with errors.Is.
var (
	// ErrDuplicateRegistration is returned by CreateTask when the caller
	// supplies an external id that already exists.
	ErrDuplicateRegistration = errors.New("store: duplicate task id")

	// ErrInvalidTransition is returned when a status update's pre-state is
	// terminal.
	ErrInvalidTransition = errors.New("store: invalid status transition")

	// ErrNotFound is returned when a task row does not exist.
	ErrNotFound = errors.New("store: task not found")

	// ErrStoreUnavailable is returned once the retry budget for a transient
	// durable-store error (lock contention, WAL race) is exhausted.
	ErrStoreUnavailable = errors.New("store: unavailable")
)
