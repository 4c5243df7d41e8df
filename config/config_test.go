package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "papermill.db", cfg.Storage.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.Search.DefaultK)
	assert.Nil(t, cfg.Search.MaxRefetches)

	ai := cfg.AIConfig()
	assert.Equal(t, "http://localhost:11434/v1", ai.EmbeddingHost)
	assert.Equal(t, "http://localhost:11434/v1", ai.GeneratorHost)
	assert.Equal(t, "embeddinggemma", ai.EmbeddingModel)

	res := cfg.ResilienceConfig()
	assert.Equal(t, 30*time.Second, res.CallTimeout)
	assert.True(t, res.BreakerEnabled)
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "papermill.yaml", `
storage:
  path: /var/lib/papermill
ai:
  host: http://gpu-box:8000
  generator_model: llama3
collaborators:
  call_timeout: 5s
  max_concurrency: 8
  disable_breaker: true
search:
  alpha: 0.5
  max_refetches: 0
graph:
  confirm_after: 3
summarize:
  prune_stale: true
ingest:
  extensions: [".md"]
logging:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/papermill", cfg.Storage.Path)
	assert.Equal(t, 0.5, cfg.Search.Alpha)
	require.NotNil(t, cfg.Search.MaxRefetches)
	assert.Equal(t, 0, *cfg.Search.MaxRefetches)
	assert.Equal(t, 3, cfg.Graph.ConfirmAfter)
	assert.True(t, cfg.Summarize.PruneStale)
	assert.Equal(t, []string{".md"}, cfg.Ingest.Extensions)
	assert.Equal(t, "debug", cfg.Logging.Level)

	ai := cfg.AIConfig()
	assert.Equal(t, "http://gpu-box:8000/v1", ai.EmbeddingHost)
	assert.Equal(t, "http://gpu-box:8000/v1", ai.GeneratorHost)
	assert.Equal(t, "llama3", ai.GeneratorModel)
	assert.Equal(t, "embeddinggemma", ai.EmbeddingModel, "unset keys keep defaults")

	res := cfg.ResilienceConfig()
	assert.Equal(t, 5*time.Second, res.CallTimeout)
	assert.Equal(t, 8, res.MaxConcurrency)
	assert.False(t, res.BreakerEnabled)
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "papermill.toml", `
[storage]
in_memory = true
path = ""

[ai]
embedding_host = "http://embed:11434"
generator_host = "http://chat:9100/v1"

[collaborators]
initial_backoff = "250ms"
rate_limit = 2.5

[search]
over_fetch = 8
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.Storage.InMemory)
	assert.Equal(t, 8, cfg.Search.OverFetch)

	ai := cfg.AIConfig()
	assert.Equal(t, "http://embed:11434/v1", ai.EmbeddingHost)
	assert.Equal(t, "http://chat:9100/v1", ai.GeneratorHost)

	res := cfg.ResilienceConfig()
	assert.Equal(t, 250*time.Millisecond, res.RetryInitialBackoff)
	assert.Equal(t, 2.5, res.RateLimit)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"unsupported extension", "config.ini", "a=b"},
		{"malformed yaml", "config.yaml", "storage: [unclosed"},
		{"malformed toml", "config.toml", "[storage\npath = 1"},
		{"bad duration", "config.yaml", "collaborators:\n  call_timeout: soon\n"},
		{"alpha out of range", "config.yaml", "search:\n  alpha: 1.5\n"},
		{"negative refetches", "config.yaml", "search:\n  max_refetches: -1\n"},
		{"unknown log level", "config.yaml", "logging:\n  level: loud\n"},
		{"no storage path", "config.yaml", "storage:\n  path: \"\"\n"},
		{"missing model", "config.toml", "[ai]\nembedding_model = \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvDB:             "/tmp/papermill",
		EnvHost:           "http://shared:11434",
		EnvGeneratorHost:  "http://chat:9100",
		EnvEmbeddingModel: "nomic-embed-text",
		EnvToken:          "secret",
		EnvMaxConcurrency: "16",
	}
	cfg := Default()
	cfg.ApplyEnv(func(key string) string { return env[key] })

	assert.Equal(t, "/tmp/papermill", cfg.Storage.Path)
	assert.Equal(t, 16, cfg.Collaborators.MaxConcurrency)

	ai := cfg.AIConfig()
	assert.Equal(t, "http://shared:11434/v1", ai.EmbeddingHost)
	assert.Equal(t, "http://chat:9100/v1", ai.GeneratorHost)
	assert.Equal(t, "nomic-embed-text", ai.EmbeddingModel)
	assert.Equal(t, "secret", ai.Token)

	env[EnvMaxConcurrency] = "many"
	cfg = Default()
	cfg.ApplyEnv(func(key string) string { return env[key] })
	assert.Equal(t, Default().Collaborators.MaxConcurrency, cfg.Collaborators.MaxConcurrency)
}

func TestLoadEnv(t *testing.T) {
	path := writeFile(t, ".env", "PAPERMILL_EMBEDDING_MODEL=from-dotenv\nPAPERMILL_TOKEN=dotenv-token\n")
	// godotenv never overrides a set variable, even an empty one.
	t.Setenv(EnvEmbeddingModel, "")
	require.NoError(t, os.Unsetenv(EnvEmbeddingModel))
	t.Setenv(EnvToken, "already-set")

	require.NoError(t, LoadEnv(path, false))
	assert.Equal(t, "from-dotenv", os.Getenv(EnvEmbeddingModel))
	assert.Equal(t, "already-set", os.Getenv(EnvToken), "existing variables win")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.AIConfig().EmbeddingModel)

	missing := filepath.Join(t.TempDir(), ".env")
	assert.NoError(t, LoadEnv(missing, true))
	assert.Error(t, LoadEnv(missing, false))
}
