package pharmacy

import "errors"

var (
	// ErrNotFound marks a missing batch, prescription, or dispense.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock marks a dispense that found no stock to allocate.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidState marks an operation against the wrong lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrVersionConflict marks a lost optimistic-concurrency race on a batch.
	ErrVersionConflict = errors.New("version conflict")
	// ErrSafetyBlocked marks a dispense stopped by a safety check.
	ErrSafetyBlocked = errors.New("safety check failed")
)
