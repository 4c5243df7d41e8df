package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/graph"
)

// conceptProcessor extracts relations from every chunk of a document and
// merges them into the concept graph.
type conceptProcessor struct {
	extractor ai.RelationExtractor
	builder   *graph.Builder
	pool      *ants.Pool
	logger    *slog.Logger
}

var _ processor = (*conceptProcessor)(nil)

// newConceptProcessor creates a new concept processor. Extraction calls for
// the chunks of one document run concurrently on pool.
func newConceptProcessor(extractor ai.RelationExtractor, builder *graph.Builder, pool *ants.Pool, logger *slog.Logger) (*conceptProcessor, error) {
	if extractor == nil {
		return nil, fmt.Errorf("relation extractor required")
	}
	if builder == nil {
		return nil, ErrGraphBuilderRequired
	}
	if pool == nil {
		return nil, fmt.Errorf("worker pool required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &conceptProcessor{
		extractor: extractor,
		builder:   builder,
		pool:      pool,
		logger:    logger.With("processor", "concepts"),
	}, nil
}

// process extracts relations from every chunk and ingests the valid ones in
// a single graph update. Chunks whose extraction fails are reported in the
// returned error, but relations from the other chunks are still ingested.
func (cp *conceptProcessor) process(ctx context.Context, doc *core.Document) (int, error) {
	results := make([][]core.Relation, len(doc.Chunks))
	errs := make([]error, len(doc.Chunks))

	var wg sync.WaitGroup
	for i := range doc.Chunks {
		chunk := &doc.Chunks[i]
		wg.Add(1)
		err := cp.pool.Submit(func() {
			defer wg.Done()
			relations, err := cp.extractor.ExtractRelations(ctx, chunk.Text)
			if err != nil {
				errs[i] = fmt.Errorf("chunk %d: %w", chunk.ID, err)
				return
			}
			results[i] = relations
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()

	var relations []core.Relation
	for i, batch := range results {
		for _, rel := range batch {
			rel.ChunkID = doc.Chunks[i].ID
			if err := graph.CheckRelation(&rel); err != nil {
				cp.logger.Debug("discarding relation", "document", doc.ID, "chunk", rel.ChunkID, "err", err)
				continue
			}
			relations = append(relations, rel)
		}
	}

	extractErr := errors.Join(errs...)
	if extractErr != nil {
		cp.logger.Error("error extracting relations", "document", doc.ID, "err", extractErr)
	}
	if len(relations) == 0 {
		return 0, extractErr
	}

	affected, err := cp.builder.Ingest(ctx, doc.ID, relations)
	if err != nil {
		cp.logger.Error("error ingesting relations", "document", doc.ID, "err", err)
		return 0, errors.Join(extractErr, err)
	}
	cp.logger.Debug("relations ingested", "document", doc.ID, "relations", len(relations), "nodes", len(affected.Nodes), "edges", len(affected.Edges))
	return len(relations), extractErr
}
