package vector

import (
	"context"

	"github.com/skewballfox/papermill/core"
)

// Payload is the data stored alongside a vector and available to filters.
type Payload struct {
	DocumentID core.DocumentID
	Start      int
}

// Item is a vector to upsert.
type Item struct {
	ID      core.ID
	Vector  []float32
	Payload Payload
}

// Candidate is a query result with its raw similarity score.
type Candidate struct {
	ID      core.ID
	Score   float32
	Payload Payload
}

// Filter decides whether a stored vector may be returned. A nil Filter accepts all.
type Filter func(id core.ID, p Payload) bool

// Index is a k-NN index with CRUD operations.
type Index interface {
	// Upsert inserts or replaces vectors. Every vector must match the
	// index dimensionality.
	Upsert(ctx context.Context, items ...Item) error

	// Delete removes vectors. Missing ids are ignored.
	Delete(ctx context.Context, ids ...core.ID) error

	// Query returns at most k candidates accepted by filter, highest score
	// first, ties by id ascending. Fails with EmptyIndexError on an empty index.
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Candidate, error)

	// Vectors returns stored vectors by id, skipping missing ones.
	Vectors(ctx context.Context, ids ...core.ID) (map[core.ID][]float32, error)

	// Count returns the number of stored vectors.
	Count(ctx context.Context) (int, error)

	// Dimension returns the index dimensionality, or 0 while it is unknown.
	Dimension() int

	Close() error
}
