package storage

import "errors"

// Common storage errors. Implementations must return these sentinel errors
// (possibly wrapped) so callers can use errors.Is for detection.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("storage: entity not found")

	// ErrDuplicateKey is returned when inserting an entity whose key
	// already exists. Use Upsert when overwriting is intended.
	ErrDuplicateKey = errors.New("storage: duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("storage: invalid input")
)
