package papermill

import (
	"errors"
	"log/slog"
	"maps"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/ai/resilient"
	"github.com/skewballfox/papermill/config"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/format"
	"github.com/skewballfox/papermill/graph"
	"github.com/skewballfox/papermill/ingestion"
	"github.com/skewballfox/papermill/search"
	"github.com/skewballfox/papermill/summarize"
)

// Option configures Open.
type Option func(*options) error

type options struct {
	aiConfig      *ai.Config
	provider      ai.AIProvider
	resilience    resilient.Config
	registerer    prometheus.Registerer
	inMemory      bool
	fields        map[string]core.FieldType
	formats       format.Table
	logger        *slog.Logger
	searchOpts    []search.Option
	graphOpts     []graph.Option
	summarizeOpts []summarize.Option
	ingestOpts    []ingestion.Option
}

func defaultOptions() *options {
	return &options{
		aiConfig:   ai.DefaultConfig(),
		resilience: resilient.DefaultConfig(),
		fields:     maps.Clone(DefaultFields),
		formats:    format.Default(),
		logger:     slog.Default(),
	}
}

// WithAIConfig sets the configuration of the OpenAI-compatible services.
func WithAIConfig(cfg *ai.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("ai config is nil")
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		o.aiConfig = cfg
		return nil
	}
}

// WithProvider uses provider instead of creating OpenAI clients. The engine
// takes ownership and closes it.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *options) error {
		o.provider = provider
		return nil
	}
}

// WithResilience sets the collaborator call limits.
func WithResilience(cfg resilient.Config) Option {
	return func(o *options) error {
		o.resilience = cfg
		return nil
	}
}

// WithRegisterer enables collaborator metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithInMemory keeps all data in memory; the path given to Open is ignored.
func WithInMemory() Option {
	return func(o *options) error {
		o.inMemory = true
		return nil
	}
}

// WithField indexes an additional metadata field.
func WithField(name string, ft core.FieldType) Option {
	return func(o *options) error {
		o.fields[name] = ft
		return nil
	}
}

// WithFormats replaces the format handler table.
func WithFormats(table format.Table) Option {
	return func(o *options) error {
		if len(table) == 0 {
			return errors.New("format table is empty")
		}
		o.formats = table
		return nil
	}
}

// WithLogger sets the logger shared by all components.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// WithSearchOptions passes options to the search engine.
func WithSearchOptions(opts ...search.Option) Option {
	return func(o *options) error {
		o.searchOpts = append(o.searchOpts, opts...)
		return nil
	}
}

// WithGraphOptions passes options to the concept graph builder.
func WithGraphOptions(opts ...graph.Option) Option {
	return func(o *options) error {
		o.graphOpts = append(o.graphOpts, opts...)
		return nil
	}
}

// WithSummarizeOptions passes options to the summarizer.
func WithSummarizeOptions(opts ...summarize.Option) Option {
	return func(o *options) error {
		o.summarizeOpts = append(o.summarizeOpts, opts...)
		return nil
	}
}

// WithIngestOptions passes options to the ingestion pipeline.
func WithIngestOptions(opts ...ingestion.Option) Option {
	return func(o *options) error {
		o.ingestOpts = append(o.ingestOpts, opts...)
		return nil
	}
}

// FromConfig translates a configuration file into options. Zero values
// keep each component's defaults.
func FromConfig(cfg *config.File) []Option {
	opts := []Option{
		WithAIConfig(cfg.AIConfig()),
		WithResilience(cfg.ResilienceConfig()),
	}
	if cfg.Storage.InMemory {
		opts = append(opts, WithInMemory())
	}

	var searchOpts []search.Option
	if cfg.Search.Alpha > 0 {
		searchOpts = append(searchOpts, search.WithAlpha(cfg.Search.Alpha))
	}
	if cfg.Search.OverFetch > 0 {
		searchOpts = append(searchOpts, search.WithOverFetch(cfg.Search.OverFetch))
	}
	if cfg.Search.MaxRefetches != nil {
		searchOpts = append(searchOpts, search.WithMaxRefetches(*cfg.Search.MaxRefetches))
	}
	opts = append(opts, WithSearchOptions(searchOpts...))

	var graphOpts []graph.Option
	if cfg.Graph.SimilarityThreshold > 0 {
		graphOpts = append(graphOpts, graph.WithSimilarityThreshold(cfg.Graph.SimilarityThreshold))
	}
	if cfg.Graph.ConfirmAfter > 0 {
		graphOpts = append(graphOpts, graph.WithConfirmAfter(cfg.Graph.ConfirmAfter))
	}
	if cfg.Graph.HighConfidence > 0 {
		graphOpts = append(graphOpts, graph.WithHighConfidence(cfg.Graph.HighConfidence))
	}
	opts = append(opts, WithGraphOptions(graphOpts...))

	summarizeOpts := []summarize.Option{summarize.WithPruneStale(cfg.Summarize.PruneStale)}
	if cfg.Summarize.ShortChunkRunes > 0 {
		summarizeOpts = append(summarizeOpts, summarize.WithShortChunkRunes(cfg.Summarize.ShortChunkRunes))
	}
	if cfg.Summarize.PoolSize > 0 {
		summarizeOpts = append(summarizeOpts, summarize.WithPoolSize(cfg.Summarize.PoolSize))
	}
	opts = append(opts, WithSummarizeOptions(summarizeOpts...))

	var ingestOpts []ingestion.Option
	if cfg.Ingest.PoolSize > 0 {
		ingestOpts = append(ingestOpts, ingestion.WithPoolSize(cfg.Ingest.PoolSize))
	}
	if cfg.Ingest.BatchSize > 0 {
		ingestOpts = append(ingestOpts, ingestion.WithBatchSize(cfg.Ingest.BatchSize))
	}
	if cfg.Ingest.MaxChunkRunes > 0 {
		ingestOpts = append(ingestOpts, ingestion.WithChunker(ingestion.NewChunker(cfg.Ingest.MaxChunkRunes)))
	}
	return append(opts, WithIngestOptions(ingestOpts...))
}
