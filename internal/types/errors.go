package types

import "errors"

var (
	// ErrInvalidInput is returned for empty or malformed queries and
	// inconsistent tuning parameters.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDependencyUnavailable is returned when the embedder or the chunk
	// store cannot be reached.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrNotFound is returned when a looked-up record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnparseableOutput is returned when a language model response cannot
	// be interpreted.
	ErrUnparseableOutput = errors.New("unparseable model output")
)
