package store

import "errors"

var (
	// ErrOverlap means a write would leave two scheduled appointments for the
	// same vet overlapping.
	ErrOverlap = errors.New("appointment overlap")
	// ErrNotFound means the appointment id is unknown.
	ErrNotFound = errors.New("not found")
	// ErrVersionMismatch means an optimistic write lost to a concurrent
	// modification of the same appointment.
	ErrVersionMismatch = errors.New("version mismatch")
)
