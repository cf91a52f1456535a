package domain

import "errors"

var (
	// ErrNotFound is returned for unknown sessions, turns, tasks or conversations.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamUnavailable is returned when the model call fails or its
	// output cannot be parsed into the required structure.
	ErrUpstreamUnavailable = errors.New("upstream model unavailable")

	// ErrConflict is returned when a concurrent write broke a uniqueness invariant.
	ErrConflict = errors.New("conflicting update")

	// ErrInvalidInput is returned for malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
)
