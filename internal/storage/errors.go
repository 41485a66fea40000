package storage

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when an insert collides with a unique key:
	// a second multisig for the same (network, agent, user) or a second
	// agent with the same id.
	ErrDuplicate = errors.New("duplicate key")

	ErrInvalidInput = errors.New("invalid input")
)
