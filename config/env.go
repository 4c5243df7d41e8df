package config

import (
	"errors"
	"io/fs"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables that override file settings.
const (
	EnvDB             = "PAPERMILL_DB"
	EnvHost           = "PAPERMILL_HOST"
	EnvEmbeddingHost  = "PAPERMILL_EMBEDDING_HOST"
	EnvGeneratorHost  = "PAPERMILL_GENERATOR_HOST"
	EnvEmbeddingModel = "PAPERMILL_EMBEDDING_MODEL"
	EnvGeneratorModel = "PAPERMILL_GENERATOR_MODEL"
	EnvToken          = "PAPERMILL_TOKEN"
	EnvLogLevel       = "PAPERMILL_LOG_LEVEL"
	EnvMetricsAddr    = "PAPERMILL_METRICS_ADDR"
	EnvMaxConcurrency = "PAPERMILL_MAX_CONCURRENCY"
)

// LoadEnv loads variables from a .env file into the process environment.
// Variables that are already set win. A missing file is not an error when
// optional is true.
func LoadEnv(path string, optional bool) error {
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if optional && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overrides settings from PAPERMILL_* variables read via getenv.
// PAPERMILL_HOST replaces both service hosts; the specific host variables
// take precedence over it.
func (f *File) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&f.Storage.Path, EnvDB)
	if v := getenv(EnvHost); v != "" {
		f.AI.Host = v
		f.AI.EmbeddingHost = v
		f.AI.GeneratorHost = v
	}
	set(&f.AI.EmbeddingHost, EnvEmbeddingHost)
	set(&f.AI.GeneratorHost, EnvGeneratorHost)
	set(&f.AI.EmbeddingModel, EnvEmbeddingModel)
	set(&f.AI.GeneratorModel, EnvGeneratorModel)
	set(&f.AI.Token, EnvToken)
	set(&f.Logging.Level, EnvLogLevel)
	set(&f.Metrics.Addr, EnvMetricsAddr)
	if n, err := strconv.Atoi(getenv(EnvMaxConcurrency)); err == nil && n > 0 {
		f.Collaborators.MaxConcurrency = n
	}
}
