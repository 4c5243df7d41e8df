package ingestion

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrMetadataIndexRequired is returned when a metadata index is not provided.
	ErrMetadataIndexRequired = errors.New("metadata index required")

	// ErrGraphBuilderRequired is returned when a concept graph builder is not provided.
	ErrGraphBuilderRequired = errors.New("graph builder required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")
)
