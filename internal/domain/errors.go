package domain

import "errors"

var (
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTransition is returned when a status change does not match the stored status
	// or is not an edge of the query lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
)
