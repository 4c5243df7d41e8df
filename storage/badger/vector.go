package badger

import (
	"context"
	"errors"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/storage"
)

// VectorRepository implements storage.VectorRepository for BadgerDB using
// brute-force dot-product scoring. Callers store unit vectors, which makes
// the score the cosine similarity.
type VectorRepository struct {
	backend *Backend
}

var _ storage.VectorRepository = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository.
func NewVectorRepository(backend *Backend) *VectorRepository {
	return &VectorRepository{backend: backend}
}

// Close is a no-op; the backend is closed by its owner.
func (r *VectorRepository) Close() error {
	return nil
}

// PutVectors inserts or replaces vectors.
func (r *VectorRepository) PutVectors(ctx context.Context, entries ...*storage.VectorEntry) error {
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		for _, e := range entries {
			if err := tx.Set(makeVectorKey(e.ID), storage.MarshalVectorEntry(e)); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteVectors removes vectors by id.
func (r *VectorRepository) DeleteVectors(ctx context.Context, ids ...core.ID) error {
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			if err := tx.Delete(makeVectorKey(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetVectors returns the stored vectors for ids, skipping missing ones.
func (r *VectorRepository) GetVectors(ctx context.Context, ids ...core.ID) ([]*storage.VectorEntry, error) {
	entries := make([]*storage.VectorEntry, 0, len(ids))
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			item, err := tx.Get(makeVectorKey(id))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				e, err := storage.UnmarshalVectorEntry(val)
				if err != nil {
					return err
				}
				entries = append(entries, e)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	return entries, err
}

// FindSimilar scores every accepted vector against vector.
func (r *VectorRepository) FindSimilar(ctx context.Context, vector []float32, minSimilarity float32, limit int, accept func(*storage.VectorEntry) bool) ([]*storage.ScoredVector, error) {
	if limit <= 0 {
		return []*storage.ScoredVector{}, nil
	}

	var results []*storage.ScoredVector
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		return scan(tx, []byte(vectorPrefix), func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			e, err := storage.UnmarshalVectorEntry(val)
			if err != nil {
				return err
			}
			if accept != nil && !accept(e) {
				return nil
			}
			score := dotProduct(vector, e.Vector)
			if score >= minSimilarity {
				results = append(results, &storage.ScoredVector{VectorEntry: *e, Score: score})
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *storage.ScoredVector) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// CountVectors returns the number of stored vectors.
func (r *VectorRepository) CountVectors(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// VectorDimension returns the length of the first stored vector.
func (r *VectorRepository) VectorDimension(ctx context.Context) (int, error) {
	dim := 0
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix)
		opts.PrefetchSize = 1
		iter := tx.NewIterator(opts)
		defer iter.Close()
		iter.Rewind()
		if !iter.Valid() {
			return nil
		}
		return iter.Item().Value(func(val []byte) error {
			e, err := storage.UnmarshalVectorEntry(val)
			if err != nil {
				return err
			}
			dim = len(e.Vector)
			return nil
		})
	})
	return dim, err
}

func dotProduct(a, b []float32) float32 {
	var sum float32
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
