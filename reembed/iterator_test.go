package reembed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/storage"
	"github.com/skewballfox/papermill/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB opens in-memory repositories that are closed with the test.
func setupTestDB(t *testing.T) *badger.Repositories {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })
	return repos
}

// seedDocument stores a document whose chunks are the given paragraphs.
func seedDocument(t *testing.T, repo storage.DocumentRepository, id core.DocumentID, paragraphs ...string) *core.Document {
	t.Helper()
	doc := &core.Document{ID: id, Format: core.FormatText, Text: strings.Join(paragraphs, "\n\n")}
	start := 0
	for _, p := range paragraphs {
		doc.Chunks = append(doc.Chunks, core.Chunk{
			ID:         core.ChunkID(id, start),
			DocumentID: id,
			Start:      start,
			End:        start + len(p),
			Text:       p,
		})
		start += len(p) + 2
	}
	require.NoError(t, repo.PutDocument(context.Background(), doc))
	return doc
}

func seedChunks(t *testing.T, repo storage.DocumentRepository, docs, perDoc int) int {
	t.Helper()
	for d := range docs {
		paragraphs := make([]string, perDoc)
		for p := range paragraphs {
			paragraphs[p] = fmt.Sprintf("document %d paragraph %d", d, p)
		}
		seedDocument(t, repo, core.DocumentID(fmt.Sprintf("doc-%02d", d)), paragraphs...)
	}
	return docs * perDoc
}

func TestChunkIterator_Batches(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	total := seedChunks(t, repos.Documents, 4, 5)

	it := NewChunkIterator(repos.Documents, 6)
	count, err := it.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, total, count)

	var sizes []int
	seen := make(map[core.ID]bool)
	err = it.ForEach(ctx, func(chunks []*core.Chunk) error {
		sizes = append(sizes, len(chunks))
		for _, c := range chunks {
			assert.False(t, seen[c.ID], "chunk %d delivered twice", c.ID)
			seen[c.ID] = true
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{6, 6, 6, 2}, sizes)
	assert.Len(t, seen, total)
}

func TestChunkIterator_Empty(t *testing.T) {
	repos := setupTestDB(t)

	calls := 0
	err := NewChunkIterator(repos.Documents, 10).ForEach(context.Background(), func([]*core.Chunk) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, calls)
}

func TestChunkIterator_DefaultBatchSize(t *testing.T) {
	repos := setupTestDB(t)
	assert.Equal(t, DefaultBatchSize, NewChunkIterator(repos.Documents, 0).batchSize)
	assert.Equal(t, DefaultBatchSize, NewChunkIterator(repos.Documents, -5).batchSize)
}

func TestChunkIterator_StopsOnError(t *testing.T) {
	repos := setupTestDB(t)
	seedChunks(t, repos.Documents, 2, 5)

	stop := errors.New("stop")
	calls := 0
	err := NewChunkIterator(repos.Documents, 3).ForEach(context.Background(), func([]*core.Chunk) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 2, calls)
}

func TestChunkIterator_ContextCancellation(t *testing.T) {
	repos := setupTestDB(t)
	seedChunks(t, repos.Documents, 2, 5)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := NewChunkIterator(repos.Documents, 2).ForEach(ctx, func([]*core.Chunk) error {
		calls++
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)

	err = NewChunkIterator(repos.Documents, 2).ForEach(ctx, func([]*core.Chunk) error {
		t.Fatal("should not be called")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
