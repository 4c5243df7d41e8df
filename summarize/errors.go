package summarize

import "errors"

var (
	// ErrGeneratorRequired is returned when a generator is not provided.
	ErrGeneratorRequired = errors.New("generator required")

	// ErrChunkSourceRequired is returned when a chunk source is not provided.
	ErrChunkSourceRequired = errors.New("chunk source required")

	// ErrInvalidLevel is returned for an unknown summary level.
	ErrInvalidLevel = errors.New("invalid summary level")
)
