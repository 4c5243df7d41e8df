package reembed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/graph"
	"github.com/skewballfox/papermill/storage"
)

// RelationReextractor re-runs relation extraction over every stored
// document and replaces the document's contribution to the concept graph.
type RelationReextractor struct {
	documents storage.DocumentRepository
	extractor ai.RelationExtractor
	builder   *graph.Builder
	config    *Config
	progress  io.Writer
	logger    *slog.Logger
}

// ReextractResult summarizes a RelationReextractor run.
type ReextractResult struct {
	Documents int
	Relations int
	Failed    []core.DocumentID
}

// NewRelationReextractor creates a new relation re-extractor.
func NewRelationReextractor(documents storage.DocumentRepository, extractor ai.RelationExtractor, builder *graph.Builder, config *Config, progress io.Writer) (*RelationReextractor, error) {
	switch {
	case documents == nil:
		return nil, ErrDocumentRepositoryRequired
	case extractor == nil:
		return nil, ErrExtractorRequired
	case builder == nil:
		return nil, ErrGraphBuilderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}
	return &RelationReextractor{
		documents: documents,
		extractor: extractor,
		builder:   builder,
		config:    config,
		progress:  progress,
		logger:    slog.Default().With("component", "reextract"),
	}, nil
}

// Run processes documents one at a time. All chunks of a document are
// extracted before the graph is touched; when any chunk fails the document keeps its previous relations and is listed in
// Failed. Otherwise its old events are withdrawn and the new relations
// ingested, so running twice with the same extractor leaves the graph as
// it was after the first run.
func (r *RelationReextractor) Run(ctx context.Context) (*ReextractResult, error) {
	docs, err := r.documents.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	result := &ReextractResult{}
	if len(docs) == 0 {
		fmt.Fprintf(r.progress, "No documents found in database (0 documents)\n")
		return result, nil
	}

	fmt.Fprintf(r.progress, "Starting relation extraction for %d documents\n", len(docs))
	tracker := NewProgressTracker(r.progress, len(docs), r.config.ReportInterval, "documents")
	tracker.Start()

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		n, err := r.reextract(ctx, doc)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			r.logger.Error("error re-extracting relations", "document", doc.ID, "err", err)
			result.Failed = append(result.Failed, doc.ID)
			tracker.Fail(1)
			continue
		}
		result.Documents++
		result.Relations += n
		tracker.Increment(1)
	}
	tracker.Finish()

	fmt.Fprintf(r.progress, "Relation extraction complete. %d documents, %d relations, %d failed in %v\n",
		result.Documents, result.Relations, len(result.Failed), tracker.Elapsed().Round(time.Second))
	return result, nil
}

func (r *RelationReextractor) reextract(ctx context.Context, doc *core.Document) (int, error) {
	var relations []core.Relation
	for i := range doc.Chunks {
		chunk := &doc.Chunks[i]
		found, err := r.extractor.ExtractRelations(ctx, chunk.Text)
		if err != nil {
			return 0, fmt.Errorf("chunk %d: %w", chunk.ID, err)
		}
		for _, rel := range found {
			rel.ChunkID = chunk.ID
			if graph.CheckRelation(&rel) != nil {
				continue
			}
			relations = append(relations, rel)
		}
	}

	if _, err := r.builder.RemoveDocument(ctx, doc.ID); err != nil {
		return 0, err
	}
	if len(relations) == 0 {
		return 0, nil
	}
	if _, err := r.builder.Ingest(ctx, doc.ID, relations); err != nil {
		return 0, err
	}
	return len(relations), nil
}
