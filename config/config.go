package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/ai/resilient"
)

// ErrUnsupportedFormat is returned for config files that are neither YAML nor TOML.
var ErrUnsupportedFormat = errors.New("unsupported config file format")

// Duration is a time.Duration written as a string such as "30s" in config files.
type Duration time.Duration

// UnmarshalText parses a Go duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText formats the duration as a Go duration string.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// File is the whole configuration file.
type File struct {
	Storage       StorageConfig       `yaml:"storage" toml:"storage"`
	AI            AIConfig            `yaml:"ai" toml:"ai"`
	Collaborators CollaboratorsConfig `yaml:"collaborators" toml:"collaborators"`
	Search        SearchConfig        `yaml:"search" toml:"search"`
	Graph         GraphConfig         `yaml:"graph" toml:"graph"`
	Summarize     SummarizeConfig     `yaml:"summarize" toml:"summarize"`
	Ingest        IngestConfig        `yaml:"ingest" toml:"ingest"`
	Logging       LoggingConfig       `yaml:"logging" toml:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" toml:"metrics"`
}

// StorageConfig locates the database.
type StorageConfig struct {
	Path     string `yaml:"path" toml:"path"`
	InMemory bool   `yaml:"in_memory" toml:"in_memory"`
}

// AIConfig selects the OpenAI-compatible services.
type AIConfig struct {
	Host           string  `yaml:"host" toml:"host"` // sets both hosts unless they are given
	EmbeddingHost  string  `yaml:"embedding_host" toml:"embedding_host"`
	GeneratorHost  string  `yaml:"generator_host" toml:"generator_host"`
	EmbeddingModel string  `yaml:"embedding_model" toml:"embedding_model"`
	GeneratorModel string  `yaml:"generator_model" toml:"generator_model"`
	Token          string  `yaml:"token" toml:"token"`
	MinConfidence  float64 `yaml:"min_confidence" toml:"min_confidence"`
}

// CollaboratorsConfig bounds calls to the AI services.
type CollaboratorsConfig struct {
	CallTimeout    Duration `yaml:"call_timeout" toml:"call_timeout"`
	MaxConcurrency int      `yaml:"max_concurrency" toml:"max_concurrency"`
	RateLimit      float64  `yaml:"rate_limit" toml:"rate_limit"`
	RateBurst      int      `yaml:"rate_burst" toml:"rate_burst"`
	MaxAttempts    int      `yaml:"max_attempts" toml:"max_attempts"`
	InitialBackoff Duration `yaml:"initial_backoff" toml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff" toml:"max_backoff"`
	DisableBreaker bool     `yaml:"disable_breaker" toml:"disable_breaker"`
}

// SearchConfig tunes hybrid ranking.
type SearchConfig struct {
	Alpha        float64 `yaml:"alpha" toml:"alpha"`
	OverFetch    int     `yaml:"over_fetch" toml:"over_fetch"`
	MaxRefetches *int    `yaml:"max_refetches" toml:"max_refetches"` // nil keeps the default, 0 disables re-fetching
	DefaultK     int     `yaml:"default_k" toml:"default_k"`
}

// GraphConfig tunes the concept graph.
type GraphConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" toml:"similarity_threshold"`
	ConfirmAfter        int     `yaml:"confirm_after" toml:"confirm_after"`
	HighConfidence      float64 `yaml:"high_confidence" toml:"high_confidence"`
}

// SummarizeConfig tunes the summarizer.
type SummarizeConfig struct {
	ShortChunkRunes int  `yaml:"short_chunk_runes" toml:"short_chunk_runes"`
	PoolSize        int  `yaml:"pool_size" toml:"pool_size"`
	PruneStale      bool `yaml:"prune_stale" toml:"prune_stale"`
}

// IngestConfig tunes the ingestion pipeline.
type IngestConfig struct {
	PoolSize      int      `yaml:"pool_size" toml:"pool_size"`
	BatchSize     int      `yaml:"batch_size" toml:"batch_size"`
	MaxChunkRunes int      `yaml:"max_chunk_runes" toml:"max_chunk_runes"`
	Extensions    []string `yaml:"extensions" toml:"extensions"` // files picked up by watch
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" toml:"level"` // debug, info, warn, error
}

// MetricsConfig exposes prometheus metrics.
type MetricsConfig struct {
	Addr string `yaml:"addr" toml:"addr"` // empty disables the endpoint
}

// Default returns the configuration used when no file is given.
func Default() *File {
	def := ai.DefaultConfig()
	res := resilient.DefaultConfig()
	return &File{
		Storage: StorageConfig{Path: "papermill.db"},
		AI: AIConfig{
			Host:           def.EmbeddingHost,
			EmbeddingModel: def.EmbeddingModel,
			GeneratorModel: def.GeneratorModel,
			Token:          def.Token,
			MinConfidence:  def.MinConfidence,
		},
		Collaborators: CollaboratorsConfig{
			CallTimeout:    Duration(res.CallTimeout),
			MaxConcurrency: res.MaxConcurrency,
			RateBurst:      res.RateBurst,
			MaxAttempts:    res.RetryMaxAttempts,
			InitialBackoff: Duration(res.RetryInitialBackoff),
			MaxBackoff:     Duration(res.RetryMaxBackoff),
		},
		Search:  SearchConfig{DefaultK: 10},
		Ingest:  IngestConfig{Extensions: []string{".txt", ".md", ".markdown", ".pdf", ".json", ".bib"}},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads a YAML (.yaml, .yml) or TOML (.toml) file over Default, then
// applies environment overrides. An empty path returns the defaults with
// overrides applied.
func Load(path string) (*File, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *File) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		return toml.Unmarshal(data, cfg)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

// Validate checks values that have no usable default.
func (f *File) Validate() error {
	if !f.Storage.InMemory && f.Storage.Path == "" {
		return errors.New("storage.path is required unless storage.in_memory is set")
	}
	if f.Search.Alpha < 0 || f.Search.Alpha > 1 {
		return fmt.Errorf("search.alpha must be between 0 and 1, got %g", f.Search.Alpha)
	}
	if f.Search.MaxRefetches != nil && *f.Search.MaxRefetches < 0 {
		return fmt.Errorf("search.max_refetches must be non-negative, got %d", *f.Search.MaxRefetches)
	}
	if f.Graph.SimilarityThreshold < 0 || f.Graph.SimilarityThreshold > 1 {
		return fmt.Errorf("graph.similarity_threshold must be between 0 and 1, got %g", f.Graph.SimilarityThreshold)
	}
	switch strings.ToLower(f.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", f.Logging.Level)
	}
	return f.AIConfig().Validate()
}

// AIConfig returns the collaborator settings as an ai.Config. Host fills
// whichever of the two service hosts is empty.
func (f *File) AIConfig() *ai.Config {
	cfg := &ai.Config{
		EmbeddingHost:  f.AI.EmbeddingHost,
		GeneratorHost:  f.AI.GeneratorHost,
		EmbeddingModel: f.AI.EmbeddingModel,
		GeneratorModel: f.AI.GeneratorModel,
		Token:          f.AI.Token,
		MinConfidence:  f.AI.MinConfidence,
	}
	if f.AI.Host != "" {
		if cfg.EmbeddingHost == "" {
			cfg.EmbeddingHost = f.AI.Host
		}
		if cfg.GeneratorHost == "" {
			cfg.GeneratorHost = f.AI.Host
		}
	}
	cfg.Normalize()
	return cfg
}

// ResilienceConfig returns the collaborator limits. Zero values fall back to
// resilient defaults when the config is used.
func (f *File) ResilienceConfig() resilient.Config {
	cfg := resilient.DefaultConfig()
	c := f.Collaborators
	cfg.CallTimeout = time.Duration(c.CallTimeout)
	cfg.MaxConcurrency = c.MaxConcurrency
	cfg.RateLimit = c.RateLimit
	cfg.RateBurst = c.RateBurst
	cfg.RetryMaxAttempts = c.MaxAttempts
	cfg.RetryInitialBackoff = time.Duration(c.InitialBackoff)
	cfg.RetryMaxBackoff = time.Duration(c.MaxBackoff)
	cfg.BreakerEnabled = !c.DisableBreaker
	return cfg
}
