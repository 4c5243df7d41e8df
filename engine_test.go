package papermill

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/skewballfox/papermill/ai/mock"
	"github.com/skewballfox/papermill/config"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/format"
	"github.com/skewballfox/papermill/storage"
	"github.com/skewballfox/papermill/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestEngine(t *testing.T, path string, opts ...Option) (*Engine, *mock.MockProvider) {
	t.Helper()
	provider := mock.NewMockProviderWithServices(nil, nil, nil)
	opts = append([]Option{WithProvider(provider)}, opts...)
	if path == "" {
		opts = append(opts, WithInMemory())
	}
	e, err := Open(context.Background(), path, opts...)
	require.NoError(t, err)
	return e, provider
}

func testDocs() []*core.Document {
	return []*core.Document{
		{
			ID:       "p1",
			Format:   core.FormatText,
			Text:     "BERT uses transformers.\n\nRoBERTa improves BERT.",
			Metadata: map[string]any{"title": "BERT", "author": []any{"Devlin"}},
		},
		{
			ID:       "p2",
			Format:   core.FormatText,
			Text:     "GPT extends transformers.",
			Metadata: map[string]any{"title": "GPT", "author": []any{"Radford"}},
		},
	}
}

func TestEngine_IngestSearchSummarize(t *testing.T) {
	ctx := context.Background()
	e, _ := openTestEngine(t, "")
	defer e.Close()

	report, err := e.Ingest(ctx, testDocs()...)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Ingested)
	assert.Equal(t, 3, report.Relations)

	result, err := e.Search(ctx, "transformers", 10)
	require.NoError(t, err)
	require.NotEmpty(t, result.Hits)
	assert.ElementsMatch(t, []core.DocumentID{"p1", "p2"}, result.DocumentIDs())

	result, err = e.Search(ctx, "transformers author:radford", 10)
	require.NoError(t, err)
	assert.Equal(t, []core.DocumentID{"p2"}, result.DocumentIDs())

	tree, err := e.Summarize(ctx, "transformers", 10, core.LevelDocument)
	require.NoError(t, err)
	assert.Equal(t, core.LevelDocument, tree.Level)
	assert.NotEmpty(t, tree.Roots)

	sg, err := e.Subgraph("bert", 1)
	require.NoError(t, err)
	assert.NotEmpty(t, sg.Edges)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Documents)
	assert.Equal(t, 2, stats.Vectors)
	assert.Equal(t, mock.DefaultDimension, stats.Dimension)
}

func TestEngine_RemoveDocument(t *testing.T) {
	ctx := context.Background()
	e, _ := openTestEngine(t, "")
	defer e.Close()

	_, err := e.Ingest(ctx, testDocs()...)
	require.NoError(t, err)

	require.NoError(t, e.RemoveDocument(ctx, "p1"))

	_, err = e.Document(ctx, "p1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	result, err := e.Search(ctx, "transformers", 10)
	require.NoError(t, err)
	assert.Equal(t, []core.DocumentID{"p2"}, result.DocumentIDs())

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Vectors)

	sg, err := e.Subgraph("bert", 1)
	require.NoError(t, err)
	for _, edge := range sg.Edges {
		assert.Zero(t, edge.Weight)
		for _, ref := range edge.Provenance {
			assert.NotEqual(t, core.DocumentID("p1"), ref.DocumentID)
		}
	}

	err = e.RemoveDocument(ctx, "p1")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEngine_ReopenRestoresIndexes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")

	e, provider := openTestEngine(t, path)
	_, err := e.Ingest(ctx, testDocs()...)
	require.NoError(t, err)
	before, err := e.Stats(ctx)
	require.NoError(t, err)
	require.NoError(t, e.Close())
	assert.True(t, provider.Closed())

	e, _ = openTestEngine(t, path)
	defer e.Close()

	after, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Documents, after.Documents)
	assert.Equal(t, before.Vectors, after.Vectors)
	assert.Equal(t, before.Graph.Nodes, after.Graph.Nodes)
	assert.Equal(t, before.Graph.Edges, after.Graph.Edges)

	result, err := e.Search(ctx, "transformers author:devlin", 10)
	require.NoError(t, err)
	assert.Equal(t, []core.DocumentID{"p1"}, result.DocumentIDs())
}

func TestEngine_OpenFinishesInterruptedRemoval(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "db")

	e, _ := openTestEngine(t, path)
	_, err := e.Ingest(ctx, testDocs()...)
	require.NoError(t, err)
	require.NoError(t, e.Documents().Tombstone(ctx, "p2"))
	require.NoError(t, e.Close())

	e, _ = openTestEngine(t, path)
	defer e.Close()

	_, err = e.Document(ctx, "p2")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	pending, err := e.Documents().Tombstones(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Vectors)
}

func TestEngine_IngestFiles(t *testing.T) {
	ctx := context.Background()
	e, _ := openTestEngine(t, "")
	defer e.Close()

	dir := t.TempDir()
	good := filepath.Join(dir, "1706.03762v5.md")
	writeFile(t, good, "---\ntitle: Attention\n---\nTransformers use attention.\n")
	missing := filepath.Join(dir, "missing.txt")

	report, err := e.IngestFiles(ctx, good, missing)
	assert.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Ingested)

	doc, err := e.Document(ctx, "1706.03762v5")
	require.NoError(t, err)
	assert.Equal(t, "Attention", doc.Metadata["title"])
}

func TestEngine_IngestFilesSkipsStoredFiles(t *testing.T) {
	ctx := context.Background()
	e, _ := openTestEngine(t, "")
	defer e.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	writeFile(t, path, "Graph Notes\n\nConcepts link documents.")
	report, err := e.IngestFiles(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)

	// The stored document answers for the file without reading it.
	require.NoError(t, os.Remove(path))
	report, err = e.IngestFiles(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Ingested)
	assert.Equal(t, 1, report.Skipped)
}

func TestEngine_IngestFilesRecordsOutliers(t *testing.T) {
	ctx := context.Background()
	e, _ := openTestEngine(t, "")
	defer e.Close()

	path := filepath.Join(t.TempDir(), "blank.txt")
	writeFile(t, path, "   \n\n  ")

	report, err := e.IngestFiles(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, format.ErrNoText)
	assert.Equal(t, 0, report.Outliers)

	outliers, err := e.Outliers(ctx)
	require.NoError(t, err)
	require.Len(t, outliers, 1)
	assert.Equal(t, path, outliers[0].Path)
	assert.Equal(t, []string{"text"}, outliers[0].Formats)
	assert.Contains(t, outliers[0].Error, "no extractable text")

	report, err = e.IngestFiles(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Outliers)

	writeFile(t, path, "Now There Is Text\n\nand a body.")
	report, err = e.IngestFiles(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)
	outliers, err = e.Outliers(ctx)
	require.NoError(t, err)
	assert.Empty(t, outliers)
}

func TestEngine_ForgetOutliers(t *testing.T) {
	ctx := context.Background()
	e, _ := openTestEngine(t, "")
	defer e.Close()

	dir := t.TempDir()
	a := filepath.Join(dir, "a.txt")
	b := filepath.Join(dir, "b.txt")
	writeFile(t, a, " ")
	writeFile(t, b, " ")
	_, err := e.IngestFiles(ctx, a, b)
	require.Error(t, err)

	require.NoError(t, e.ForgetOutliers(ctx, a))
	outliers, err := e.Outliers(ctx)
	require.NoError(t, err)
	require.Len(t, outliers, 1)
	assert.Equal(t, b, outliers[0].Path)

	require.NoError(t, e.ForgetOutliers(ctx))
	outliers, err = e.Outliers(ctx)
	require.NoError(t, err)
	assert.Empty(t, outliers)

	// Forgotten files are parsed again.
	_, err = e.IngestFiles(ctx, a)
	assert.ErrorIs(t, err, format.ErrNoText)
}

func TestEngine_IngestBibTeXFile(t *testing.T) {
	ctx := context.Background()
	e, _ := openTestEngine(t, "")
	defer e.Close()

	path := filepath.Join(t.TempDir(), "library.bib")
	writeFile(t, path, `@article{vaswani2017,
  title = {Attention Is All You Need},
  eprint = {1706.03762},
  abstract = {We propose the Transformer, based solely on attention.}
}
@book{sicp1985,
  title = {Structure and Interpretation of Computer Programs},
  publisher = {MIT Press},
  year = {1985}
}
`)
	report, err := e.IngestFiles(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Ingested)

	doc, err := e.Document(ctx, "1706.03762")
	require.NoError(t, err)
	assert.Equal(t, core.FormatBibTeX, doc.Format)
	assert.Equal(t, "Attention Is All You Need", doc.Metadata["title"])

	report, err = e.IngestFiles(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
}

func TestOpen_OptionErrors(t *testing.T) {
	_, err := Open(context.Background(), "", WithFormats(nil))
	assert.Error(t, err)
	_, err = Open(context.Background(), "", WithAIConfig(nil))
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.InMemory = true
	cfg.Search.Alpha = 0.5
	cfg.Graph.ConfirmAfter = 3
	cfg.Ingest.MaxChunkRunes = 200

	o := defaultOptions()
	for _, opt := range FromConfig(cfg) {
		require.NoError(t, opt(o))
	}
	assert.True(t, o.inMemory)
	assert.Len(t, o.searchOpts, 1)
	assert.Len(t, o.graphOpts, 1)
	assert.Len(t, o.ingestOpts, 1)
	assert.Equal(t, cfg.AIConfig().EmbeddingModel, o.aiConfig.EmbeddingModel)

	e, _ := openTestEngine(t, "", FromConfig(cfg)...)
	assert.NoError(t, e.Close())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// failingVectors refuses to delete vectors.
type failingVectors struct {
	storage.VectorRepository
}

func (failingVectors) DeleteVectors(context.Context, ...core.ID) error {
	return errors.New("disk full")
}

func TestEngine_FailedRemovalStaysExcluded(t *testing.T) {
	ctx := context.Background()
	e, _ := openTestEngine(t, "")
	defer e.Close()

	_, err := e.Ingest(ctx, testDocs()...)
	require.NoError(t, err)

	index := e.index
	broken, err := vector.NewAdapter(ctx, failingVectors{e.repos.Vectors})
	require.NoError(t, err)
	e.index = broken

	err = e.RemoveDocument(ctx, "p2")
	require.ErrorContains(t, err, "disk full")
	assert.True(t, e.isRemoving("p2"))

	result, err := e.Search(ctx, "transformers", 10)
	require.NoError(t, err)
	assert.Equal(t, []core.DocumentID{"p1"}, result.DocumentIDs())

	e.index = index
	require.NoError(t, e.RemoveDocument(ctx, "p2"))
	assert.False(t, e.isRemoving("p2"))
	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.Vectors)
}
