package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/ai/mock"
	"github.com/skewballfox/papermill/ai/resilient"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedEmbedder returns the same unnormalized vector for every text.
func fixedEmbedder(v ...float32) *mock.MockEmbedder {
	m := mock.NewMockEmbedder()
	m.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			out[i] = append([]float32(nil), v...)
		}
		return out, nil
	}
	return m
}

func chunkPointers(doc *core.Document) []*core.Chunk {
	out := make([]*core.Chunk, len(doc.Chunks))
	for i := range doc.Chunks {
		out[i] = &doc.Chunks[i]
	}
	return out
}

func TestBatchProcessor_Process(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	doc := seedDocument(t, repos.Documents, "p1", "first paragraph", "second paragraph")

	index, err := vector.NewAdapter(ctx, repos.Vectors)
	require.NoError(t, err)
	processor := NewBatchProcessor(index, fixedEmbedder(1, 2, 2))

	require.NoError(t, processor.Process(ctx, chunkPointers(doc)))

	vectors, err := index.Vectors(ctx, doc.ChunkIDs()...)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	for _, v := range vectors {
		assert.InDeltaSlice(t, []float32{1.0 / 3, 2.0 / 3, 2.0 / 3}, v, 1e-6, "vector should be normalized")
	}
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	repos := setupTestDB(t)
	index, err := vector.NewAdapter(context.Background(), repos.Vectors)
	require.NoError(t, err)
	embedder := fixedEmbedder(1)

	processor := NewBatchProcessor(index, embedder)
	require.NoError(t, processor.Process(context.Background(), nil))
	assert.Equal(t, 0, embedder.CallCount())
}

func TestBatchProcessor_EmbeddingError(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	doc := seedDocument(t, repos.Documents, "p1", "text")
	index, err := vector.NewAdapter(ctx, repos.Vectors)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, errors.New("embedding error")
	}
	processor := NewBatchProcessor(index, embedder)

	err = processor.Process(ctx, chunkPointers(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding error")
	assert.Equal(t, 1, embedder.CallCount())
}

func TestBatchProcessor_RetriesStayWithinResilientCap(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		calls int
	}{
		{"retryable failure", ai.ErrRateLimited, 3},
		{"permanent failure", errors.New("bad request"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repos := setupTestDB(t)
			ctx := context.Background()
			doc := seedDocument(t, repos.Documents, "p1", "text")
			index, err := vector.NewAdapter(ctx, repos.Vectors)
			require.NoError(t, err)

			embedder := mock.NewMockEmbedder()
			embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
				return nil, tt.err
			}
			cfg := resilient.DefaultConfig()
			cfg.RetryMaxAttempts = 3
			cfg.RetryInitialBackoff = time.Millisecond
			cfg.RetryMaxBackoff = time.Millisecond
			cfg.BreakerEnabled = false
			provider, err := resilient.Wrap(mock.NewMockProviderWithServices(embedder, nil, nil), cfg,
				resilient.WithRegisterer(prometheus.NewRegistry()))
			require.NoError(t, err)
			t.Cleanup(func() { _ = provider.Close() })

			err = NewBatchProcessor(index, provider.Embedder()).Process(ctx, chunkPointers(doc))
			require.Error(t, err)
			assert.Equal(t, tt.calls, embedder.CallCount())
		})
	}
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	doc := seedDocument(t, repos.Documents, "p1", "one", "two")
	index, err := vector.NewAdapter(ctx, repos.Vectors)
	require.NoError(t, err)

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return [][]float32{{1, 0}}, nil
	}
	err = NewBatchProcessor(index, embedder).Process(ctx, chunkPointers(doc))
	assert.ErrorContains(t, err, "embedding count mismatch")
}

func TestBatchProcessor_DimensionMismatch(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	doc := seedDocument(t, repos.Documents, "p1", "text")
	index, err := vector.NewAdapter(ctx, repos.Vectors, vector.WithDimension(4))
	require.NoError(t, err)

	embedder := fixedEmbedder(1, 2, 2)
	err = NewBatchProcessor(index, embedder).Process(ctx, chunkPointers(doc))
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)
	assert.Equal(t, 1, embedder.CallCount(), "upsert failures do not call the embedder again")
}
