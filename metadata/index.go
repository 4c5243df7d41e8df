package metadata

import (
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/skewballfox/papermill/core"
)

// Index holds typed attributes per document and resolves chunk ids to their
// document so predicates can be evaluated against chunk candidates.
// It is safe for concurrent use.
type Index struct {
	schema *Schema
	logger *slog.Logger

	mu        sync.RWMutex
	docs      map[core.DocumentID]map[string]core.Value
	chunks    map[core.ID]core.DocumentID
	docChunks map[core.DocumentID][]core.ID
}

// Option configures an Index.
type Option func(*Index) error

// WithSchema sets the schema used for extraction. Defaults to NewSchema().
func WithSchema(schema *Schema) Option {
	return func(idx *Index) error {
		idx.schema = schema
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Index) error {
		idx.logger = logger
		return nil
	}
}

// NewIndex creates an empty metadata index.
func NewIndex(opts ...Option) (*Index, error) {
	idx := &Index{
		docs:      make(map[core.DocumentID]map[string]core.Value),
		chunks:    make(map[core.ID]core.DocumentID),
		docChunks: make(map[core.DocumentID][]core.ID),
	}
	for _, opt := range opts {
		if err := opt(idx); err != nil {
			return nil, err
		}
	}
	if idx.schema == nil {
		idx.schema = NewSchema()
	}
	if idx.logger == nil {
		idx.logger = slog.Default()
	}
	idx.logger = idx.logger.With("component", "metadata-index")
	return idx, nil
}

// Schema returns the index's schema.
func (idx *Index) Schema() *Schema {
	return idx.schema
}

// RegisterField registers a field on the underlying schema. Documents already
// indexed are not re-extracted; re-Put them to pick up the new field.
func (idx *Index) RegisterField(name string, ft core.FieldType) error {
	return idx.schema.RegisterField(name, ft)
}

// FieldType returns the type of a registered field.
func (idx *Index) FieldType(name string) (core.FieldType, bool) {
	return idx.schema.FieldType(name)
}

// Put extracts doc's metadata and indexes it together with doc's chunks,
// replacing any previous entry for the same document. Fields that fail
// extraction are logged and left out.
func (idx *Index) Put(doc *core.Document) error {
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}

	values, errs := idx.schema.ExtractAll(doc.Metadata)
	for field, err := range errs {
		idx.logger.Warn("skipping metadata field", "document", doc.ID, "field", field, "error", err)
	}
	if _, ok := values["format"]; !ok && doc.Format != "" {
		if ft, registered := idx.schema.FieldType("format"); registered && ft == core.FieldString {
			values["format"] = core.StringValue(string(doc.Format))
		}
	}

	chunkIDs := doc.ChunkIDs()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(doc.ID)
	idx.docs[doc.ID] = values
	idx.docChunks[doc.ID] = chunkIDs
	for _, id := range chunkIDs {
		idx.chunks[id] = doc.ID
	}
	return nil
}

// Remove drops a document and its chunks from the index.
func (idx *Index) Remove(docID core.DocumentID) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(docID)
}

func (idx *Index) removeLocked(docID core.DocumentID) {
	for _, id := range idx.docChunks[docID] {
		delete(idx.chunks, id)
	}
	delete(idx.docChunks, docID)
	delete(idx.docs, docID)
}

// Len returns the number of indexed documents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docs)
}

// Compile validates predicates against the schema and parses their values.
func (idx *Index) Compile(preds []core.Predicate) (*Matcher, error) {
	return compile(idx.schema, preds)
}

// Evaluate returns the subset of ids whose document satisfies every
// predicate, in input order.
func (idx *Index) Evaluate(preds []core.Predicate, ids []core.ID) ([]core.ID, error) {
	m, err := idx.Compile(preds)
	if err != nil {
		return nil, err
	}
	return idx.Select(m, ids), nil
}

// Select returns the subset of ids accepted by m, in input order. Ids that
// do not belong to an indexed document are dropped.
func (idx *Index) Select(m *Matcher, ids []core.ID) []core.ID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]core.ID, 0, len(ids))
	for _, id := range ids {
		docID, ok := idx.chunks[id]
		if !ok {
			continue
		}
		if m.Match(idx.docs[docID]) {
			out = append(out, id)
		}
	}
	return out
}

// Accepts reports whether the chunk's document satisfies m.
func (idx *Index) Accepts(m *Matcher, chunkID core.ID) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	docID, ok := idx.chunks[chunkID]
	if !ok {
		return false
	}
	return m.Match(idx.docs[docID])
}

// Attributes returns a copy of the attributes of the chunk's document.
func (idx *Index) Attributes(chunkID core.ID) (map[string]core.Value, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	docID, ok := idx.chunks[chunkID]
	if !ok {
		return nil, false
	}
	return maps.Clone(idx.docs[docID]), true
}

// DocumentAttributes returns a copy of a document's attributes.
func (idx *Index) DocumentAttributes(docID core.DocumentID) (map[string]core.Value, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	attrs, ok := idx.docs[docID]
	if !ok {
		return nil, false
	}
	return maps.Clone(attrs), true
}

// Documents returns the indexed document ids in ascending order.
func (idx *Index) Documents() []core.DocumentID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	ids := slices.Collect(maps.Keys(idx.docs))
	slices.Sort(ids)
	return ids
}

// Chunks returns the chunk ids of an indexed document in offset order.
func (idx *Index) Chunks(docID core.DocumentID) []core.ID {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return slices.Clone(idx.docChunks[docID])
}
