package store

import "errors"

// Sentinel errors returned by store operations. Callers branch with errors.Is.
var (
	// ErrNotFound is returned when a record, profile, user or session does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a unique constraint would be violated
	// (user email, household invite code).
	ErrDuplicate = errors.New("already exists")
)
