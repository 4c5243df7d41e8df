package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{backend: backend}
}

// Close is a no-op; the backend is closed by its owner.
func (r *DocumentRepository) Close() error {
	return nil
}

// PutDocument stores a new document and its chunks.
// Returns storage.ErrDuplicateKey if the id is taken.
func (r *DocumentRepository) PutDocument(ctx context.Context, doc *core.Document) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.ID)
		if _, err := tx.Get(key); err == nil {
			return storage.ErrDuplicateKey
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		if doc.InsertedAt.IsZero() {
			doc.InsertedAt = time.Now().UTC()
		}
		value, err := storage.MarshalDocument(doc)
		if err != nil {
			return err
		}
		if err := tx.Set(key, value); err != nil {
			return err
		}

		for i := range doc.Chunks {
			chunk := &doc.Chunks[i]
			if err := tx.Set(makeChunkKey(chunk.ID), storage.MarshalChunk(chunk)); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetDocument retrieves a document with its chunks.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.DocumentID) (*core.Document, error) {
	var doc *core.Document
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		var err error
		doc, err = readDocument(tx, id)
		return err
	})
	return doc, err
}

// HasDocument reports whether a document is stored.
func (r *DocumentRepository) HasDocument(ctx context.Context, id core.DocumentID) (bool, error) {
	found := false
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		_, err := tx.Get(makeDocumentKey(id))
		switch {
		case err == nil:
			found = true
			return nil
		case errors.Is(err, badger.ErrKeyNotFound):
			return nil
		}
		return err
	})
	return found, err
}

// DeleteDocument removes a document, its chunks and its tombstone.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id core.DocumentID) error {
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		item, err := tx.Get(makeDocumentKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		var chunkIDs []core.ID
		if err := item.Value(func(val []byte) error {
			var err error
			_, chunkIDs, err = storage.UnmarshalDocument(val)
			return err
		}); err != nil {
			return err
		}

		for _, chunkID := range chunkIDs {
			if err := tx.Delete(makeChunkKey(chunkID)); err != nil {
				return err
			}
		}
		if err := tx.Delete(makeTombstoneKey(id)); err != nil {
			return err
		}
		return tx.Delete(makeDocumentKey(id))
	})
}

// ListDocuments returns every stored document ordered by id.
func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	var docs []*core.Document
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		var ids []core.DocumentID
		if err := scan(tx, []byte(documentPrefix), func(key, _ []byte) error {
			ids = append(ids, core.DocumentID(key[len(documentPrefix):]))
			return nil
		}); err != nil {
			return err
		}
		for _, id := range ids {
			doc, err := readDocument(tx, id)
			if err != nil {
				return err
			}
			docs = append(docs, doc)
		}
		return nil
	})
	return docs, err
}

// GetChunks retrieves the chunks that exist among ids, in request order.
func (r *DocumentRepository) GetChunks(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error) {
	chunks := make([]*core.Chunk, 0, len(ids))
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		for _, id := range ids {
			chunk, err := readChunk(tx, id)
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			chunks = append(chunks, chunk)
		}
		return nil
	})
	return chunks, err
}

// ForEachChunk calls fn for every stored chunk in id order.
func (r *DocumentRepository) ForEachChunk(ctx context.Context, fn func(*core.Chunk) error) error {
	return r.backend.view(ctx, func(tx *badger.Txn) error {
		return scan(tx, []byte(chunkPrefix), func(_, val []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk, err := storage.UnmarshalChunk(val)
			if err != nil {
				return err
			}
			return fn(chunk)
		})
	})
}

// Tombstone marks a document as being removed.
func (r *DocumentRepository) Tombstone(ctx context.Context, id core.DocumentID) error {
	return r.backend.update(ctx, func(tx *badger.Txn) error {
		return tx.Set(makeTombstoneKey(id), []byte{1})
	})
}

// Tombstones lists documents whose removal has not finished.
func (r *DocumentRepository) Tombstones(ctx context.Context) ([]core.DocumentID, error) {
	var ids []core.DocumentID
	err := r.backend.view(ctx, func(tx *badger.Txn) error {
		return scan(tx, []byte(tombstonePrefix), func(key, _ []byte) error {
			ids = append(ids, core.DocumentID(key[len(tombstonePrefix):]))
			return nil
		})
	})
	return ids, err
}

func readDocument(tx *badger.Txn, id core.DocumentID) (*core.Document, error) {
	item, err := tx.Get(makeDocumentKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var doc *core.Document
	var chunkIDs []core.ID
	if err := item.Value(func(val []byte) error {
		var err error
		doc, chunkIDs, err = storage.UnmarshalDocument(val)
		return err
	}); err != nil {
		return nil, err
	}

	doc.Chunks = make([]core.Chunk, 0, len(chunkIDs))
	for _, chunkID := range chunkIDs {
		chunk, err := readChunk(tx, chunkID)
		if err != nil {
			return nil, err
		}
		doc.Chunks = append(doc.Chunks, *chunk)
	}
	return doc, nil
}

func readChunk(tx *badger.Txn, id core.ID) (*core.Chunk, error) {
	item, err := tx.Get(makeChunkKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	var chunk *core.Chunk
	err = item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}
