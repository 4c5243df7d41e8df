package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/skewballfox/papermill/storage"
)

// OutlierRepository implements storage.OutlierRepository.
type OutlierRepository struct {
	backend *Backend
}

var _ storage.OutlierRepository = (*OutlierRepository)(nil)

// NewOutlierRepository creates a new OutlierRepository.
func NewOutlierRepository(backend *Backend) *OutlierRepository {
	return &OutlierRepository{backend: backend}
}

// Close is a no-op; the backend is closed by its owner.
func (r *OutlierRepository) Close() error {
	return nil
}

// PutOutlier records or replaces the outlier for rec.Path.
func (r *OutlierRepository) PutOutlier(ctx context.Context, rec *storage.OutlierRecord) error {
	if rec.Path == "" {
		return storage.ErrEmptyPath
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now().UTC()
	}
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeOutlierKey(rec.Path), storage.MarshalOutlier(rec))
	})
}

// GetOutlier returns the outlier recorded for path.
func (r *OutlierRepository) GetOutlier(ctx context.Context, path string) (*storage.OutlierRecord, error) {
	var rec *storage.OutlierRecord
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get(makeOutlierKey(path))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = storage.UnmarshalOutlier(val)
			return err
		})
	})
	return rec, err
}

// DeleteOutlier forgets path.
func (r *OutlierRepository) DeleteOutlier(ctx context.Context, path string) error {
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		return tx.Delete(makeOutlierKey(path))
	})
}

// ListOutliers returns every outlier in key order, which is path order.
func (r *OutlierRepository) ListOutliers(ctx context.Context) ([]*storage.OutlierRecord, error) {
	var out []*storage.OutlierRecord
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		return scan(tx, []byte(outlierPrefix), func(_, val []byte) error {
			rec, err := storage.UnmarshalOutlier(val)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	return out, err
}
