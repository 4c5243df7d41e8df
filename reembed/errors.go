package reembed

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when no document repository is given.
	ErrDocumentRepositoryRequired = errors.New("document repository is required")

	// ErrVectorIndexRequired is returned when no vector index is given.
	ErrVectorIndexRequired = errors.New("vector index is required")

	// ErrEmbedderRequired is returned when no embedder is given.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrExtractorRequired is returned when no relation extractor is given.
	ErrExtractorRequired = errors.New("relation extractor is required")

	// ErrGraphBuilderRequired is returned when no concept graph builder is given.
	ErrGraphBuilderRequired = errors.New("concept graph builder is required")
)
