package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/graph"
	"github.com/skewballfox/papermill/metadata"
	"github.com/skewballfox/papermill/storage"
	"github.com/skewballfox/papermill/vector"
)

// Report summarizes one Ingest call.
type Report struct {
	Ingested  int               // Documents stored and indexed
	Skipped   int               // Documents already stored
	Relations int               // Relations merged into the concept graph
	Failed    []core.DocumentID // Documents that were not ingested, or whose relations failed
	Outliers  int               // Files skipped because they failed to parse before
}

// Pipeline orchestrates the ingestion and processing of documents.
// It manages concurrent processing of documents and relation extraction.
type Pipeline struct {
	documents     storage.DocumentRepository
	index         vector.Index
	meta          *metadata.Index
	chunker       *Chunker
	documentPool  *ants.Pool
	relationPool  *ants.Pool
	embeddingProc processor
	conceptProc   processor
	batchSize     int
	inflight      *documentLocks
	logger        *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pools
		if p.documentPool != nil {
			p.documentPool.Release()
		}
		if p.relationPool != nil {
			p.relationPool.Release()
		}

		documentPool, err := ants.NewPool(size)
		if err != nil {
			return err
		}

		relationPool, err := ants.NewPool(size)
		if err != nil {
			documentPool.Release()
			return err
		}

		p.documentPool = documentPool
		p.relationPool = relationPool
		return nil
	}
}

// WithChunker replaces the default chunker.
func WithChunker(c *Chunker) Option {
	return func(p *Pipeline) error {
		if c == nil || c.MaxRunes < 1 {
			return fmt.Errorf("chunker must have a positive MaxRunes")
		}
		p.chunker = c
		return nil
	}
}

// WithBatchSize sets how many chunks are embedded per collaborator call.
// Default is DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return fmt.Errorf("batch size must be at least 1, got %d", n)
		}
		p.batchSize = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	documents storage.DocumentRepository,
	index vector.Index,
	meta *metadata.Index,
	builder *graph.Builder,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if meta == nil {
		return nil, ErrMetadataIndexRequired
	}
	if builder == nil {
		return nil, ErrGraphBuilderRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	documentPool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}
	relationPool, err := ants.NewPool(poolSize)
	if err != nil {
		documentPool.Release()
		return nil, err
	}

	p := &Pipeline{
		documents:    documents,
		index:        index,
		meta:         meta,
		chunker:      NewChunker(DefaultMaxRunes),
		documentPool: documentPool,
		relationPool: relationPool,
		batchSize:    DefaultBatchSize,
		inflight:     newDocumentLocks(),
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}
	p.logger = p.logger.With("component", "ingestion")

	// Create processors after options are applied (so they get final config)
	embeddingProc, err := newEmbeddingProcessor(provider.Embedder(), index, p.batchSize, p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}
	conceptProc, err := newConceptProcessor(provider.RelationExtractor(), builder, p.relationPool, p.logger)
	if err != nil {
		p.Release()
		return nil, err
	}
	p.embeddingProc = embeddingProc
	p.conceptProc = conceptProc

	return p, nil
}

// Ingest chunks, embeds, indexes and stores the documents, then extracts
// their relations into the concept graph. Documents run concurrently; a
// failing document does not stop the others and its error is joined into
// the returned error. Documents already stored are skipped, as are repeats of
// an id within docs and documents another call is storing under the same id.
func (p *Pipeline) Ingest(ctx context.Context, docs ...*core.Document) (*Report, error) {
	report := &Report{}
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs []error
	)
	record := func(doc *core.Document, relations int, skipped bool, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Relations += relations
		switch {
		case skipped:
			report.Skipped++
		case err != nil && !errors.Is(err, errRelations):
			report.Failed = append(report.Failed, docID(doc))
		default:
			report.Ingested++
			if err != nil {
				report.Failed = append(report.Failed, docID(doc))
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("document %s: %w", docID(doc), err))
		}
	}

	seen := make(map[core.DocumentID]bool, len(docs))
	for _, doc := range docs {
		if doc != nil && doc.ID != "" {
			if seen[doc.ID] {
				p.logger.Debug("duplicate document in batch", "document", doc.ID)
				record(doc, 0, true, nil)
				continue
			}
			seen[doc.ID] = true
		}
		wg.Add(1)
		err := p.documentPool.Submit(func() {
			defer wg.Done()
			relations, skipped, err := p.ingestOne(ctx, doc)
			record(doc, relations, skipped, err)
		})
		if err != nil {
			wg.Done()
			record(doc, 0, false, err)
		}
	}
	wg.Wait()

	slices.Sort(report.Failed)
	slices.SortFunc(errs, func(a, b error) int { return strings.Compare(a.Error(), b.Error()) })
	p.logger.Info("ingestion finished", "ingested", report.Ingested, "skipped", report.Skipped, "relations", report.Relations, "failed", len(report.Failed))
	return report, errors.Join(errs...)
}

// errRelations marks a document that was stored but whose relation
// extraction failed.
var errRelations = errors.New("relation extraction failed")

func (p *Pipeline) ingestOne(ctx context.Context, doc *core.Document) (int, bool, error) {
	if err := core.ValidateDocument(doc); err != nil {
		return 0, false, err
	}
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	release := p.inflight.lock(doc.ID)
	defer release()

	exists, err := p.documents.HasDocument(ctx, doc.ID)
	if err != nil {
		return 0, false, err
	}
	if exists {
		p.logger.Debug("document already ingested", "document", doc.ID)
		return 0, true, nil
	}

	if len(doc.Chunks) == 0 {
		doc.Chunks = p.chunker.Split(doc)
	}
	if doc.InsertedAt.IsZero() {
		doc.InsertedAt = time.Now().UTC()
	}

	if _, err := p.embeddingProc.process(ctx, doc); err != nil {
		return 0, false, err
	}
	if err := p.meta.Put(doc); err != nil {
		p.rollback(doc)
		return 0, false, err
	}
	if err := p.documents.PutDocument(ctx, doc); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Stored by another writer since the check above. Its chunks share
			// our chunk ids, so nothing is rolled back.
			p.logger.Warn("document stored concurrently", "document", doc.ID)
			return 0, true, nil
		}
		p.logger.Error("error storing document", "document", doc.ID, "err", err)
		p.rollback(doc)
		return 0, false, err
	}
	p.logger.Info("document indexed", "document", doc.ID, "format", doc.Format, "chunks", len(doc.Chunks))

	relations, err := p.conceptProc.process(ctx, doc)
	if err != nil {
		return relations, false, fmt.Errorf("%w: %w", errRelations, err)
	}
	return relations, false, nil
}

// rollback removes the vectors and metadata of a document that could not be stored.
func (p *Pipeline) rollback(doc *core.Document) {
	p.meta.Remove(doc.ID)
	if err := p.index.Delete(context.Background(), doc.ChunkIDs()...); err != nil {
		p.logger.Error("error removing vectors of failed document", "document", doc.ID, "err", err)
	}
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.documentPool != nil {
		p.documentPool.Release()
	}
	if p.relationPool != nil {
		p.relationPool.Release()
	}
}

func docID(doc *core.Document) core.DocumentID {
	if doc == nil {
		return ""
	}
	return doc.ID
}
