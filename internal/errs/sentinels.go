// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across model/repo/service layers.
var (
	// ErrNotFound indicates the requested timecard, line or account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (record version mismatch).
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates failed authentication.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (username taken, duplicate line id).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidState indicates the timecard's current status does not offer the requested action.
	ErrInvalidState = errors.New("invalid state")

	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation")
)
