package ingestion

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/vector"
)

// DefaultBatchSize is the number of chunks embedded per collaborator call.
const DefaultBatchSize = 32

// embeddingProcessor embeds document chunks and upserts them into the vector index.
type embeddingProcessor struct {
	embedder  ai.Embedder
	index     vector.Index
	batchSize int
	logger    *slog.Logger
}

var _ processor = (*embeddingProcessor)(nil)

// newEmbeddingProcessor creates a new embedding processor.
func newEmbeddingProcessor(embedder ai.Embedder, index vector.Index, batchSize int, logger *slog.Logger) (*embeddingProcessor, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder required")
	}
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if batchSize < 1 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &embeddingProcessor{
		embedder:  embedder,
		index:     index,
		batchSize: batchSize,
		logger:    logger.With("processor", "embeddings"),
	}, nil
}

// process embeds every chunk of doc in batches, stores the vectors on the
// chunks and upserts them. Nothing is upserted unless every batch succeeds.
func (ep *embeddingProcessor) process(ctx context.Context, doc *core.Document) (int, error) {
	ep.logger.Debug("generating embeddings for document", "document", doc.ID, "chunks", len(doc.Chunks))

	for start := 0; start < len(doc.Chunks); start += ep.batchSize {
		end := min(start+ep.batchSize, len(doc.Chunks))
		texts := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			texts = append(texts, doc.Chunks[i].Text)
		}

		embeddings, err := ep.embedder.EmbedTexts(ctx, texts)
		if err != nil {
			ep.logger.Error("error generating embeddings", "document", doc.ID, "err", err)
			return 0, err
		}
		if len(embeddings) != len(texts) {
			return 0, fmt.Errorf("embedding result mismatch. expected %d, received %d", len(texts), len(embeddings))
		}
		for i, emb := range embeddings {
			doc.Chunks[start+i].Vector = emb
		}
	}

	items := make([]vector.Item, len(doc.Chunks))
	for i := range doc.Chunks {
		c := &doc.Chunks[i]
		items[i] = vector.Item{
			ID:      c.ID,
			Vector:  c.Vector,
			Payload: vector.Payload{DocumentID: c.DocumentID, Start: c.Start},
		}
	}
	if err := ep.index.Upsert(ctx, items...); err != nil {
		ep.logger.Error("error upserting vectors", "document", doc.ID, "err", err)
		return 0, err
	}
	return len(items), nil
}
