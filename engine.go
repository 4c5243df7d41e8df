// Copyright 2025 The Papermill Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package papermill

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/ai/openai"
	"github.com/skewballfox/papermill/ai/resilient"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/format"
	"github.com/skewballfox/papermill/graph"
	"github.com/skewballfox/papermill/ingestion"
	"github.com/skewballfox/papermill/metadata"
	"github.com/skewballfox/papermill/query"
	"github.com/skewballfox/papermill/reembed"
	"github.com/skewballfox/papermill/search"
	"github.com/skewballfox/papermill/storage"
	"github.com/skewballfox/papermill/storage/badger"
	"github.com/skewballfox/papermill/summarize"
	"github.com/skewballfox/papermill/vector"
)

// DefaultFields are the metadata fields every engine indexes.
var DefaultFields = map[string]core.FieldType{
	"title":    core.FieldString,
	"author":   core.FieldList,
	"date":     core.FieldDate,
	"tags":     core.FieldList,
	"format":   core.FieldString,
	"isbn":     core.FieldISBN,
	"arxiv_id": core.FieldString,
}

// Engine ties storage, indexes, the concept graph and the AI collaborators
// together. It is safe for concurrent use.
type Engine struct {
	repos      *badger.Repositories
	provider   ai.AIProvider
	meta       *metadata.Index
	index      *vector.Adapter
	graph      *graph.Builder
	search     *search.Engine
	summarizer *summarize.Summarizer
	pipeline   *ingestion.Pipeline
	formats    format.Table
	logger     *slog.Logger

	// removing holds documents whose removal is in progress. They are
	// excluded from search results and summaries.
	removing sync.Map
}

// Open opens (or creates) the database at path and rebuilds the in-memory
// indexes from it. Removals interrupted by a crash are finished before Open
// returns.
func Open(ctx context.Context, path string, opts ...Option) (*Engine, error) {
	options := defaultOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}
	logger := options.logger.With("component", "engine")

	var (
		repos *badger.Repositories
		err   error
	)
	if options.inMemory {
		repos, err = badger.NewMemoryRepositories()
	} else {
		repos, err = badger.Open(path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	e := &Engine{repos: repos, formats: options.formats, logger: logger}
	if err := e.wire(ctx, options); err != nil {
		if closeErr := e.Close(); closeErr != nil {
			logger.Error("error closing engine after failed open", "err", closeErr)
		}
		return nil, err
	}
	return e, nil
}

func (e *Engine) wire(ctx context.Context, options *options) error {
	inner := options.provider
	if inner == nil {
		var err error
		if inner, err = openai.NewProvider(options.aiConfig); err != nil {
			return fmt.Errorf("creating AI provider: %w", err)
		}
	}
	resOpts := []resilient.Option{resilient.WithLogger(options.logger)}
	if options.registerer != nil {
		resOpts = append(resOpts, resilient.WithRegisterer(options.registerer))
	}
	provider, err := resilient.Wrap(inner, options.resilience, resOpts...)
	if err != nil {
		_ = inner.Close()
		return err
	}
	e.provider = provider

	if e.meta, err = metadata.NewIndex(metadata.WithLogger(options.logger)); err != nil {
		return err
	}
	for name, ft := range options.fields {
		if err := e.meta.RegisterField(name, ft); err != nil {
			return fmt.Errorf("registering field %s: %w", name, err)
		}
	}

	if e.index, err = vector.NewAdapter(ctx, e.repos.Vectors, vector.WithLogger(options.logger)); err != nil {
		return err
	}

	graphOpts := append([]graph.Option{graph.WithRepository(e.repos.Graph), graph.WithLogger(options.logger)}, options.graphOpts...)
	if e.graph, err = graph.NewBuilder(provider.Embedder(), graphOpts...); err != nil {
		return err
	}
	if err := e.graph.Load(ctx); err != nil {
		return err
	}

	searchOpts := append([]search.Option{search.WithLogger(options.logger), search.WithExclude(e.isRemoving)}, options.searchOpts...)
	if e.search, err = search.NewEngine(e.index, e.meta, e.repos.Documents, provider.Embedder(), searchOpts...); err != nil {
		return err
	}

	summarizeOpts := append([]summarize.Option{summarize.WithLogger(options.logger), summarize.WithExclude(e.isRemoving)}, options.summarizeOpts...)
	if e.summarizer, err = summarize.NewSummarizer(provider.Generator(), e.repos.Documents, summarizeOpts...); err != nil {
		return err
	}

	ingestOpts := append([]ingestion.Option{ingestion.WithLogger(options.logger)}, options.ingestOpts...)
	if e.pipeline, err = ingestion.NewPipeline(e.repos.Documents, e.index, e.meta, e.graph, provider, ingestOpts...); err != nil {
		return err
	}

	if err := e.rebuildMetadata(ctx); err != nil {
		return err
	}
	return e.finishRemovals(ctx)
}

func (e *Engine) rebuildMetadata(ctx context.Context) error {
	docs, err := e.repos.Documents.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("loading documents: %w", err)
	}
	for _, doc := range docs {
		if err := e.meta.Put(doc); err != nil {
			e.logger.Warn("skipping document in metadata index", "document", doc.ID, "err", err)
		}
	}
	e.logger.Debug("metadata index rebuilt", "documents", e.meta.Len())
	return nil
}

func (e *Engine) finishRemovals(ctx context.Context) error {
	pending, err := e.repos.Documents.Tombstones(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range pending {
		e.logger.Info("finishing interrupted removal", "document", id)
		if err := e.RemoveDocument(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) isRemoving(id core.DocumentID) bool {
	_, ok := e.removing.Load(id)
	return ok
}

// Close releases the engine's resources in reverse order of creation.
func (e *Engine) Close() error {
	if e.pipeline != nil {
		e.pipeline.Release()
	}
	if e.summarizer != nil {
		e.summarizer.Release()
	}

	var errs []error
	if e.index != nil {
		errs = append(errs, e.index.Close())
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	if err := e.repos.Close(); err != nil {
		e.logger.Error("error closing storage", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Ingest adds parsed documents.
func (e *Engine) Ingest(ctx context.Context, docs ...*core.Document) (*ingestion.Report, error) {
	return e.pipeline.Ingest(ctx, docs...)
}

// IngestFiles parses and ingests files. A file whose document id follows
// from its name and is already stored is not read again. Files that fail to
// parse are recorded as outliers and reported in the returned error; later
// calls skip them until their content changes. Unreadable files are reported
// and skipped.
func (e *Engine) IngestFiles(ctx context.Context, paths ...string) (*ingestion.Report, error) {
	var (
		docs             []*core.Document
		errs             []error
		cached, outliers int
	)
	for _, path := range paths {
		if id, ok := format.KnownID(path); ok {
			has, err := e.repos.Documents.HasDocument(ctx, id)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if has {
				cached++
				continue
			}
		}

		raw, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		fingerprint := core.IDFromContent(string(raw))
		known, err := e.repos.Outliers.GetOutlier(ctx, path)
		switch {
		case err == nil && known.Fingerprint == fingerprint:
			e.logger.Debug("skipping known outlier", "path", path, "recorded_at", known.RecordedAt)
			outliers++
			continue
		case err != nil && !errors.Is(err, storage.ErrNotFound):
			errs = append(errs, err)
			continue
		}

		parsed, parseErr := e.formats.ParseAll(path, raw)
		if parseErr != nil {
			errs = append(errs, parseErr)
			e.recordOutlier(ctx, path, raw, fingerprint, parseErr)
			continue
		}
		if known != nil {
			if err := e.repos.Outliers.DeleteOutlier(ctx, path); err != nil {
				e.logger.Warn("error clearing outlier", "path", path, "err", err)
			}
		}
		docs = append(docs, parsed...)
	}
	report, err := e.pipeline.Ingest(ctx, docs...)
	if report != nil {
		report.Skipped += cached
		report.Outliers = outliers
	}
	return report, errors.Join(append(errs, err)...)
}

func (e *Engine) recordOutlier(ctx context.Context, path string, raw []byte, fingerprint core.ID, cause error) {
	rec := &storage.OutlierRecord{Path: path, Fingerprint: fingerprint, Error: cause.Error()}
	if f, err := format.Detect(path, raw); err == nil {
		rec.Formats = []string{string(f)}
	}
	if err := e.repos.Outliers.PutOutlier(ctx, rec); err != nil {
		e.logger.Warn("error recording outlier", "path", path, "err", err)
		return
	}
	e.logger.Info("recorded outlier", "path", path, "err", cause)
}

// Outliers lists the files that failed to parse, ordered by path.
func (e *Engine) Outliers(ctx context.Context) ([]*storage.OutlierRecord, error) {
	return e.repos.Outliers.ListOutliers(ctx)
}

// ForgetOutliers clears the outlier records for paths, or all of them when
// paths is empty, so the next IngestFiles tries those files again.
func (e *Engine) ForgetOutliers(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		all, err := e.Outliers(ctx)
		if err != nil {
			return err
		}
		for _, rec := range all {
			paths = append(paths, rec.Path)
		}
	}
	for _, path := range paths {
		if err := e.repos.Outliers.DeleteOutlier(ctx, path); err != nil {
			return fmt.Errorf("forgetting outlier %s: %w", path, err)
		}
	}
	return nil
}

// Search runs a query DSL string and returns at most k hits.
func (e *Engine) Search(ctx context.Context, dsl string, k int) (*core.RankedResult, error) {
	return e.search.SearchText(ctx, dsl, k)
}

// Summarize searches with dsl and summarizes the top k hits at level. The
// query text is the summary topic.
func (e *Engine) Summarize(ctx context.Context, dsl string, k int, level core.Level) (*core.SummaryTree, error) {
	tree, err := query.Parse(dsl, e.meta)
	if err != nil {
		return nil, err
	}
	result, err := e.search.Search(ctx, tree, k, 0)
	if err != nil {
		return nil, err
	}
	in := summarize.FromRankedResult(result)
	in.Topic = tree.Similarity.Text
	return e.summarizer.Summarize(ctx, in, level)
}

// SummarizeConcept summarizes the chunks that back the concept graph
// around label.
func (e *Engine) SummarizeConcept(ctx context.Context, label string, depth int, level core.Level) (*core.SummaryTree, error) {
	sg, err := e.graph.Subgraph(label, depth)
	if err != nil {
		return nil, err
	}
	in := summarize.FromSubgraph(sg)
	in.Topic = label
	return e.summarizer.Summarize(ctx, in, level)
}

// Subgraph returns the concepts within depth hops of label.
func (e *Engine) Subgraph(label string, depth int) (*core.Subgraph, error) {
	return e.graph.Subgraph(label, depth)
}

// Merge folds the concept named absorb into the concept named keep.
func (e *Engine) Merge(ctx context.Context, keep, absorb string) (*core.Affected, error) {
	return e.graph.MergeLabels(ctx, keep, absorb)
}

// RemoveDocument deletes a document and everything derived from it. The
// document is tombstoned first: from then on it is excluded from search
// results and summaries, and a crash mid-way is finished by the next Open.
// When a later step fails the document stays excluded until a retried
// RemoveDocument or the next Open completes the removal.
func (e *Engine) RemoveDocument(ctx context.Context, id core.DocumentID) error {
	doc, err := e.repos.Documents.GetDocument(ctx, id)
	if err != nil {
		return fmt.Errorf("removing document %s: %w", id, err)
	}

	e.removing.Store(id, struct{}{})
	if err := e.repos.Documents.Tombstone(ctx, id); err != nil {
		e.removing.Delete(id)
		return err
	}

	if err := e.index.Delete(ctx, doc.ChunkIDs()...); err != nil {
		return fmt.Errorf("removing vectors of %s: %w", id, err)
	}
	e.meta.Remove(id)
	if _, err := e.graph.RemoveDocument(ctx, id); err != nil {
		return fmt.Errorf("removing %s from concept graph: %w", id, err)
	}
	if err := e.repos.Documents.DeleteDocument(ctx, id); err != nil {
		return err
	}
	e.removing.Delete(id)
	e.logger.Info("document removed", "document", id, "chunks", len(doc.Chunks))
	return nil
}

// Reembed recomputes every chunk vector with the current embedder.
func (e *Engine) Reembed(ctx context.Context, cfg *reembed.Config, progress io.Writer) error {
	r, err := reembed.NewReembedder(e.repos.Documents, e.index, e.provider.Embedder(), cfg, progress)
	if err != nil {
		return err
	}
	return r.Run(ctx)
}

// ExtractRelations re-runs relation extraction over every stored document.
func (e *Engine) ExtractRelations(ctx context.Context, cfg *reembed.Config, progress io.Writer) (*reembed.ReextractResult, error) {
	r, err := reembed.NewRelationReextractor(e.repos.Documents, e.provider.RelationExtractor(), e.graph, cfg, progress)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// Document returns a stored document with its chunks.
func (e *Engine) Document(ctx context.Context, id core.DocumentID) (*core.Document, error) {
	return e.repos.Documents.GetDocument(ctx, id)
}

// Stats describes the engine's contents.
type Stats struct {
	Documents int
	Vectors   int
	Dimension int
	Graph     graph.Stats
}

// Stats returns counts of the stored data.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	vectors, err := e.index.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Documents: e.meta.Len(),
		Vectors:   vectors,
		Dimension: e.index.Dimension(),
		Graph:     e.graph.Stats(),
	}, nil
}

// Formats returns the format handler table used by IngestFiles.
func (e *Engine) Formats() format.Table {
	return e.formats
}

// Documents returns the document repository.
func (e *Engine) Documents() storage.DocumentRepository {
	return e.repos.Documents
}
