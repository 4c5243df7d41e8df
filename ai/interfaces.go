package ai

import (
	"context"

	"github.com/skewballfox/papermill/core"
)

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// May fail with ErrRateLimited or ErrModelUnavailable, both retryable.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// GroundingSpan is a passage the generator may cite. ID is the citation key
// the generator must echo back.
type GroundingSpan struct {
	ID   string
	Text string
}

// Segment is one generated passage with the ids of the spans that support it.
type Segment struct {
	Text        string
	CitationIDs []string
}

// Generator produces grounded text. Every returned segment is expected to cite
// at least one of the provided spans; callers reject segments that do not.
// Implementations must be thread-safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string, spans []GroundingSpan) ([]Segment, error)
}

// RelationExtractor extracts (subject, relation, object, confidence) tuples from text.
// Implementations must be thread-safe for concurrent use.
type RelationExtractor interface {
	// ExtractRelations analyzes text and returns the relations it states.
	// Returns an empty slice if no relations are found.
	ExtractRelations(ctx context.Context, text string) ([]core.Relation, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Generator returns the grounded text-generation service.
	Generator() Generator

	// RelationExtractor returns the relation extraction service.
	RelationExtractor() RelationExtractor

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
