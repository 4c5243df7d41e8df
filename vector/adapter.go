package vector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/storage"
)

// ErrRepositoryRequired is returned when NewAdapter is given a nil repository.
var ErrRepositoryRequired = errors.New("vector repository is required")

// Adapter implements Index over a storage.VectorRepository.
type Adapter struct {
	repo          storage.VectorRepository
	logger        *slog.Logger
	minSimilarity float32

	mu  sync.RWMutex
	dim int
}

var _ Index = (*Adapter)(nil)

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter) error

// WithDimension fixes the index dimensionality. Without it the dimension is
// read from the repository, or taken from the first upsert.
func WithDimension(dim int) AdapterOption {
	return func(a *Adapter) error {
		if dim < 0 {
			return fmt.Errorf("dimension must be non-negative, got %d", dim)
		}
		a.dim = dim
		return nil
	}
}

// WithMinSimilarity drops candidates scoring below min. Defaults to -1 (keep all).
func WithMinSimilarity(min float32) AdapterOption {
	return func(a *Adapter) error {
		a.minSimilarity = min
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) error {
		a.logger = logger
		return nil
	}
}

// NewAdapter creates an Adapter. If no dimension is configured and the
// repository already holds vectors, their length becomes the dimension.
func NewAdapter(ctx context.Context, repo storage.VectorRepository, opts ...AdapterOption) (*Adapter, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}
	a := &Adapter{repo: repo, minSimilarity: -1}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.logger = a.logger.With("component", "vector-index")

	stored, err := repo.VectorDimension(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading stored dimension: %w", err)
	}
	switch {
	case a.dim == 0:
		a.dim = stored
	case stored != 0 && stored != a.dim:
		return nil, &core.DimensionMismatchError{Want: a.dim, Got: stored}
	}
	return a, nil
}

// Dimension returns the index dimensionality, or 0 while it is unknown.
func (a *Adapter) Dimension() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.dim
}

// Upsert validates and normalizes vectors and writes them in one batch.
func (a *Adapter) Upsert(ctx context.Context, items ...Item) error {
	if len(items) == 0 {
		return nil
	}

	a.mu.Lock()
	dim := a.dim
	if dim == 0 {
		dim = len(items[0].Vector)
	}
	for _, it := range items {
		if len(it.Vector) != dim || dim == 0 {
			a.mu.Unlock()
			return fmt.Errorf("chunk %d: %w", it.ID, &core.DimensionMismatchError{Want: dim, Got: len(it.Vector)})
		}
	}
	if a.dim == 0 {
		a.dim = dim
		a.logger.Info("vector dimension fixed", "dimension", dim)
	}
	a.mu.Unlock()

	entries := make([]*storage.VectorEntry, len(items))
	for i, it := range items {
		entries[i] = &storage.VectorEntry{
			ID:         it.ID,
			DocumentID: it.Payload.DocumentID,
			Start:      it.Payload.Start,
			Vector:     NormalizeVector(it.Vector),
		}
	}
	return a.repo.PutVectors(ctx, entries...)
}

// Delete removes vectors by id.
func (a *Adapter) Delete(ctx context.Context, ids ...core.ID) error {
	if len(ids) == 0 {
		return nil
	}
	return a.repo.DeleteVectors(ctx, ids...)
}

// Query returns the k nearest vectors accepted by filter.
func (a *Adapter) Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Candidate, error) {
	count, err := a.repo.CountVectors(ctx)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, &core.EmptyIndexError{}
	}
	if dim := a.Dimension(); len(vector) != dim {
		return nil, &core.DimensionMismatchError{Want: dim, Got: len(vector)}
	}
	if k <= 0 {
		return []Candidate{}, nil
	}

	var accept func(*storage.VectorEntry) bool
	if filter != nil {
		accept = func(e *storage.VectorEntry) bool {
			return filter(e.ID, Payload{DocumentID: e.DocumentID, Start: e.Start})
		}
	}

	scored, err := a.repo.FindSimilar(ctx, NormalizeVector(vector), a.minSimilarity, k, accept)
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, len(scored))
	for i, s := range scored {
		out[i] = Candidate{
			ID:      s.ID,
			Score:   s.Score,
			Payload: Payload{DocumentID: s.DocumentID, Start: s.Start},
		}
	}
	return out, nil
}

// Vectors returns stored vectors by id.
func (a *Adapter) Vectors(ctx context.Context, ids ...core.ID) (map[core.ID][]float32, error) {
	entries, err := a.repo.GetVectors(ctx, ids...)
	if err != nil {
		return nil, err
	}
	out := make(map[core.ID][]float32, len(entries))
	for _, e := range entries {
		out[e.ID] = e.Vector
	}
	return out, nil
}

// Count returns the number of stored vectors.
func (a *Adapter) Count(ctx context.Context) (int, error) {
	return a.repo.CountVectors(ctx)
}

// Close is a no-op; the repository is closed by its owner.
func (a *Adapter) Close() error {
	return nil
}
