package reembed

import (
	"context"
	"fmt"

	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/vector"
)

// BatchProcessor embeds batches of chunks and writes their vectors to the index.
type BatchProcessor struct {
	index    vector.Index
	embedder ai.Embedder
}

// NewBatchProcessor creates a new batch processor. Each batch makes one
// embedder call; retries belong to the embedder, which the engine wraps in
// its resilient executor.
func NewBatchProcessor(index vector.Index, embedder ai.Embedder) *BatchProcessor {
	return &BatchProcessor{
		index:    index,
		embedder: embedder,
	}
}

// Process embeds the chunk texts and upserts the vectors in one batch. The
// index normalizes vectors and rejects a batch whose dimension differs from
// the stored one.
func (bp *BatchProcessor) Process(ctx context.Context, chunks []*core.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embeddings, err := bp.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: expected %d, got %d", len(chunks), len(embeddings))
	}

	items := make([]vector.Item, len(chunks))
	for i, chunk := range chunks {
		items[i] = vector.Item{
			ID:      chunk.ID,
			Vector:  embeddings[i],
			Payload: vector.Payload{DocumentID: chunk.DocumentID, Start: chunk.Start},
		}
	}
	if err := bp.index.Upsert(ctx, items...); err != nil {
		return fmt.Errorf("failed to update vectors: %w", err)
	}
	return nil
}
