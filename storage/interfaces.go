package storage

import (
	"context"
	"time"

	"github.com/skewballfox/papermill/core"
)

// Repository provides operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// Close releases resources held by the repository. It does not close
	// the backend the repository was created on.
	Close() error
}

// DocumentRepository persists documents and their chunks.
type DocumentRepository interface {
	Repository

	// PutDocument stores a document and all of its chunks in one transaction.
	// Chunk vectors are not stored here; see VectorRepository.
	PutDocument(ctx context.Context, doc *core.Document) error

	// GetDocument retrieves a document with its chunks.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.DocumentID) (*core.Document, error)

	// HasDocument reports whether a document is stored.
	HasDocument(ctx context.Context, id core.DocumentID) (bool, error)

	// DeleteDocument removes a document, its chunks and its tombstone.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.DocumentID) error

	// ListDocuments returns every stored document ordered by id.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// GetChunks retrieves chunks by id.
	// Returns only the chunks that exist (no error for missing chunks), in request order.
	GetChunks(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error)

	// ForEachChunk calls fn for every stored chunk in key order.
	// Iteration stops at the first error fn returns.
	ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error

	// Tombstone marks a document as being removed.
	Tombstone(ctx context.Context, id core.DocumentID) error

	// Tombstones lists documents whose removal has started but not finished.
	Tombstones(ctx context.Context) ([]core.DocumentID, error)
}

// VectorEntry is a stored chunk vector with the payload needed to filter
// and order search candidates without loading the chunk.
type VectorEntry struct {
	ID         core.ID
	DocumentID core.DocumentID
	Start      int
	Vector     []float32
}

// ScoredVector is a VectorEntry with its similarity to a query vector.
type ScoredVector struct {
	VectorEntry
	Score float32
}

// VectorRepository persists chunk vectors and answers similarity queries.
type VectorRepository interface {
	Repository

	// PutVectors inserts or replaces vectors.
	PutVectors(ctx context.Context, entries ...*VectorEntry) error

	// DeleteVectors removes vectors by id. Missing ids are ignored.
	DeleteVectors(ctx context.Context, ids ...core.ID) error

	// GetVectors returns the stored vectors for ids, skipping missing ones.
	GetVectors(ctx context.Context, ids ...core.ID) ([]*VectorEntry, error)

	// FindSimilar scores every vector accepted by accept (nil accepts all)
	// against vector by dot product and returns at most limit entries with
	// score >= minSimilarity, highest score first, ties by id ascending.
	FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int, accept func(*VectorEntry) bool) ([]*ScoredVector, error)

	// CountVectors returns the number of stored vectors.
	CountVectors(ctx context.Context) (int, error)

	// VectorDimension returns the length of the first stored vector, or 0
	// when the repository is empty.
	VectorDimension(ctx context.Context) (int, error)
}

// AliasRecord is a concept alias with the embedding used to match new aliases against it.
type AliasRecord struct {
	Key    string
	Node   core.NodeID
	Vector []float32
}

// EventRecord is one applied extraction event. Node ids are the ones the
// event resolved to when it was applied; readers follow merge forwarding.
type EventRecord struct {
	ID         core.ID
	Source     core.SourceRef
	Subject    core.NodeID
	Type       core.RelationType
	Object     core.NodeID
	Confidence float64
}

// GraphChange is a set of concept-graph records written atomically.
// LoadGraph returns the whole graph in the same shape, without deletions.
type GraphChange struct {
	Nodes         []*core.ConceptNode
	Edges         []*core.ConceptEdge
	Aliases       []*AliasRecord
	Events        []*EventRecord
	DeletedEdges  []core.EdgeKey
	DeletedEvents []core.ID
}

// Empty reports whether the change carries no records.
func (c *GraphChange) Empty() bool {
	return c == nil || len(c.Nodes)+len(c.Edges)+len(c.Aliases)+len(c.Events)+len(c.DeletedEdges)+len(c.DeletedEvents) == 0
}

// GraphRepository persists the concept graph.
type GraphRepository interface {
	Repository

	// SaveGraph writes every record in change in one transaction, replacing
	// records with the same key and removing deleted edges and events.
	SaveGraph(ctx context.Context, change *GraphChange) error

	// LoadGraph reads the whole graph.
	LoadGraph(ctx context.Context) (*GraphChange, error)
}

// OutlierRecord is a file that no format handler could turn into documents.
// Fingerprint hashes the file content so a changed file is tried again.
type OutlierRecord struct {
	Path        string
	Fingerprint core.ID
	Formats     []string // handlers attempted
	Error       string
	RecordedAt  time.Time
}

// OutlierRepository remembers files that failed to parse.
type OutlierRepository interface {
	Repository

	// PutOutlier records or replaces the outlier for a path.
	PutOutlier(ctx context.Context, rec *OutlierRecord) error

	// GetOutlier returns the outlier recorded for path.
	// Returns ErrNotFound if the path has none.
	GetOutlier(ctx context.Context, path string) (*OutlierRecord, error)

	// DeleteOutlier forgets a path. Missing paths are ignored.
	DeleteOutlier(ctx context.Context, path string) error

	// ListOutliers returns every outlier ordered by path.
	ListOutliers(ctx context.Context) ([]*OutlierRecord, error)
}
