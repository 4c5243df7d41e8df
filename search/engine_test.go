package search

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skewballfox/papermill/ai/mock"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/metadata"
	"github.com/skewballfox/papermill/storage/badger"
	"github.com/skewballfox/papermill/vector"
)

type chunkSpec struct {
	text string
	vec  []float32
}

type fixture struct {
	repos    *badger.Repositories
	index    *vector.Adapter
	meta     *metadata.Index
	embedder *mock.MockEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repos.Close() })

	index, err := vector.NewAdapter(context.Background(), repos.Vectors)
	require.NoError(t, err)

	meta, err := metadata.NewIndex()
	require.NoError(t, err)
	require.NoError(t, meta.RegisterField("author", core.FieldList))
	require.NoError(t, meta.RegisterField("tags", core.FieldList))
	require.NoError(t, meta.RegisterField("date", core.FieldDate))

	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextFunc = func(context.Context, string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}
	return &fixture{repos: repos, index: index, meta: meta, embedder: embedder}
}

func (f *fixture) engine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := NewEngine(f.index, f.meta, f.repos.Documents, f.embedder, opts...)
	require.NoError(t, err)
	return e
}

func (f *fixture) add(t *testing.T, id core.DocumentID, meta map[string]any, specs ...chunkSpec) {
	t.Helper()
	ctx := context.Background()

	texts := make([]string, len(specs))
	for i, s := range specs {
		texts[i] = s.text
	}
	doc := &core.Document{ID: id, Format: core.FormatText, Text: strings.Join(texts, "\n\n"), Metadata: meta}

	items := make([]vector.Item, len(specs))
	offset := 0
	for i, s := range specs {
		c := core.Chunk{ID: core.ChunkID(id, offset), DocumentID: id, Start: offset, End: offset + len(s.text), Text: s.text}
		doc.Chunks = append(doc.Chunks, c)
		items[i] = vector.Item{ID: c.ID, Vector: s.vec, Payload: vector.Payload{DocumentID: id, Start: offset}}
		offset += len(s.text) + 2
	}

	require.NoError(t, f.repos.Documents.PutDocument(ctx, doc))
	require.NoError(t, f.index.Upsert(ctx, items...))
	require.NoError(t, f.meta.Put(doc))
}

func hitIDs(r *core.RankedResult) []core.ID {
	ids := make([]core.ID, len(r.Hits))
	for i, h := range r.Hits {
		ids[i] = h.ChunkID
	}
	return ids
}

func TestNewEngine(t *testing.T) {
	f := newFixture(t)

	_, err := NewEngine(nil, f.meta, f.repos.Documents, f.embedder)
	assert.Equal(t, ErrVectorIndexRequired, err)
	_, err = NewEngine(f.index, nil, f.repos.Documents, f.embedder)
	assert.Equal(t, ErrMetadataIndexRequired, err)
	_, err = NewEngine(f.index, f.meta, nil, f.embedder)
	assert.Equal(t, ErrChunkSourceRequired, err)
	_, err = NewEngine(f.index, f.meta, f.repos.Documents, nil)
	assert.Equal(t, ErrEmbedderRequired, err)

	_, err = NewEngine(f.index, f.meta, f.repos.Documents, f.embedder, WithAlpha(1.5))
	assert.Error(t, err)
	_, err = NewEngine(f.index, f.meta, f.repos.Documents, f.embedder, WithOverFetch(0))
	assert.Error(t, err)
	_, err = NewEngine(f.index, f.meta, f.repos.Documents, f.embedder, WithMaxRefetches(-1))
	assert.Error(t, err)
}

func TestSearch_EmptyIndex(t *testing.T) {
	f := newFixture(t)
	e := f.engine(t)

	_, err := e.SearchText(context.Background(), "anything", 5)
	var empty *core.EmptyIndexError
	require.ErrorAs(t, err, &empty)
	assert.Equal(t, 0, f.embedder.CallCount(), "no embedding for an empty index")
}

func TestSearch_FilterExcludesHigherSimilarity(t *testing.T) {
	f := newFixture(t)
	f.add(t, "A", map[string]any{"author": "Smith"},
		chunkSpec{"topic X basics", []float32{0.8, 0.6, 0}},
		chunkSpec{"more on topic X", []float32{0.6, 0.8, 0}},
	)
	f.add(t, "B", map[string]any{"author": "Jones"},
		chunkSpec{"topic X advanced", []float32{1, 0, 0}},
	)
	e := f.engine(t)

	result, err := e.SearchText(context.Background(), `"topic X" AND author:smith`, 2)
	require.NoError(t, err)
	require.Equal(t, []core.ID{core.ChunkID("A", 0), core.ChunkID("A", 16)}, hitIDs(result))

	first := result.Hits[0]
	assert.InDelta(t, 0.8, first.Explanation.Vector, 1e-6)
	assert.InDelta(t, 1.0, first.Explanation.Keyword, 1e-9)
	assert.Equal(t, []string{"topic", "x"}, first.Explanation.MatchedTerms)
	assert.InDelta(t, 0.7*0.8+0.3, first.Score, 1e-6)
	assert.GreaterOrEqual(t, result.Hits[0].Score, result.Hits[1].Score)
}

func TestSearch_KeywordFusion(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a", nil, chunkSpec{"unrelated words", []float32{0.9, 0.1, 0}})
	f.add(t, "b", map[string]any{"tags": "graphs"}, chunkSpec{"other words", []float32{0.8, 0.2, 0}})
	e := f.engine(t)

	// b matches through its tags; a lower alpha lets keywords outrank similarity.
	result, err := e.SearchText(context.Background(), "graphs alpha:0.5", 2)
	require.NoError(t, err)
	require.Len(t, result.Hits, 2)
	assert.Equal(t, core.DocumentID("b"), result.Hits[0].DocumentID)
	assert.Equal(t, 0.5, result.Hits[0].Explanation.Alpha)

	result, err = e.SearchText(context.Background(), "graphs alpha:1", 2)
	require.NoError(t, err)
	assert.Equal(t, core.DocumentID("a"), result.Hits[0].DocumentID)
}

func TestSearch_Refetch(t *testing.T) {
	f := newFixture(t)
	for _, id := range []core.DocumentID{"b1", "b2", "b3", "b4"} {
		f.add(t, id, map[string]any{"author": "jones"}, chunkSpec{"text", []float32{1, 0, 0}})
	}
	f.add(t, "a", map[string]any{"author": "smith"}, chunkSpec{"text", []float32{0, 1, 0}})

	t.Run("bounded refetches return short result", func(t *testing.T) {
		e := f.engine(t, WithOverFetch(1), WithMaxRefetches(2))
		result, err := e.SearchText(context.Background(), "text author:smith", 1)
		require.NoError(t, err)
		assert.Empty(t, result.Hits)
		assert.Equal(t, 2, result.Refetches)
		assert.Equal(t, 4, result.Fetched)
	})

	t.Run("refetch finds filtered candidate", func(t *testing.T) {
		e := f.engine(t, WithOverFetch(1), WithMaxRefetches(3))
		result, err := e.SearchText(context.Background(), "text author:smith", 1)
		require.NoError(t, err)
		require.Len(t, result.Hits, 1)
		assert.Equal(t, core.DocumentID("a"), result.Hits[0].DocumentID)
		assert.Equal(t, 3, result.Refetches)
	})

	t.Run("never pads", func(t *testing.T) {
		e := f.engine(t)
		result, err := e.SearchText(context.Background(), "text author:smith", 3)
		require.NoError(t, err)
		assert.Len(t, result.Hits, 1)
	})
}

func TestSearch_DeterministicTieBreak(t *testing.T) {
	f := newFixture(t)
	f.add(t, "c", nil, chunkSpec{"same", []float32{1, 0, 0}})
	f.add(t, "a", nil, chunkSpec{"same", []float32{1, 0, 0}}, chunkSpec{"same", []float32{1, 0, 0}})
	f.add(t, "b", nil, chunkSpec{"same", []float32{1, 0, 0}})
	e := f.engine(t)

	want := []core.ID{core.ChunkID("a", 0), core.ChunkID("a", 6), core.ChunkID("b", 0), core.ChunkID("c", 0)}
	for range 5 {
		result, err := e.SearchText(context.Background(), "same", 10)
		require.NoError(t, err)
		assert.Equal(t, want, hitIDs(result))
	}
}

func TestSearch_SimilarTo(t *testing.T) {
	f := newFixture(t)
	f.add(t, "seed", nil, chunkSpec{"s1", []float32{0, 1, 0}}, chunkSpec{"s2", []float32{0, 0.9, 0.1}})
	f.add(t, "near", nil, chunkSpec{"n", []float32{0, 1, 0}})
	f.add(t, "far", nil, chunkSpec{"f", []float32{1, 0, 0}})
	e := f.engine(t)

	result, err := e.SearchText(context.Background(), "similar_to:seed", 2)
	require.NoError(t, err)
	require.Len(t, result.Hits, 2)
	assert.Equal(t, core.DocumentID("near"), result.Hits[0].DocumentID)
	assert.Equal(t, core.DocumentID("far"), result.Hits[1].DocumentID)
	assert.Equal(t, 0, f.embedder.CallCount(), "seeded queries are not embedded")

	_, err = e.SearchText(context.Background(), "similar_to:missing", 2)
	assert.ErrorIs(t, err, ErrUnknownSeed)
}

func TestSearch_Exclude(t *testing.T) {
	f := newFixture(t)
	f.add(t, "keep", nil, chunkSpec{"x", []float32{0.5, 0.5, 0}})
	f.add(t, "gone", nil, chunkSpec{"x", []float32{1, 0, 0}})
	e := f.engine(t, WithExclude(func(id core.DocumentID) bool { return id == "gone" }))

	result, err := e.SearchText(context.Background(), "x", 5)
	require.NoError(t, err)
	require.Len(t, result.Hits, 1)
	assert.Equal(t, core.DocumentID("keep"), result.Hits[0].DocumentID)
}

func TestSearch_InputErrors(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a", nil, chunkSpec{"x", []float32{1, 0, 0}})
	e := f.engine(t)
	ctx := context.Background()

	_, err := e.SearchText(ctx, "x venue:icml", 5)
	assert.ErrorIs(t, err, core.ErrUnknownField)

	_, err = e.SearchText(ctx, "x OR y", 5)
	assert.ErrorIs(t, err, core.ErrSyntax)

	_, err = e.SearchText(ctx, "x", 0)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = e.Search(ctx, &core.QueryTree{
		Similarity: core.SimilarityClause{Text: "x"},
		Filters:    []core.Predicate{{Field: "date", Op: core.OpGt, Values: []string{"soon"}}},
	}, 5, 0)
	assert.ErrorIs(t, err, metadata.ErrInvalidValue)
	assert.Equal(t, 0, f.embedder.CallCount())

	result, err := e.SearchText(ctx, "x limit:1", 5)
	require.NoError(t, err)
	assert.Len(t, result.Hits, 1)
}

type recordingMonitor struct {
	noopMonitor
	stages  []string
	results []*core.RankedResult
}

func (m *recordingMonitor) Start(*core.QueryTree, int)         { m.stages = append(m.stages, "start") }
func (m *recordingMonitor) AfterFetch(int, []vector.Candidate) { m.stages = append(m.stages, "fetch") }
func (m *recordingMonitor) Refetch(int, int)                   { m.stages = append(m.stages, "refetch") }

func (m *recordingMonitor) Finish(result *core.RankedResult) {
	m.stages = append(m.stages, "finish")
	m.results = append(m.results, result)
}

func TestSearch_Monitor(t *testing.T) {
	f := newFixture(t)
	f.add(t, "a", nil, chunkSpec{"x", []float32{1, 0, 0}})
	mon := &recordingMonitor{}
	e := f.engine(t, WithMonitor(mon))

	_, err := e.SearchText(context.Background(), "x", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "fetch", "finish"}, mon.stages)
}

func TestSearch_MonitorFinishesFailedSearches(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.add(t, "a", nil, chunkSpec{"x", []float32{1, 0, 0}})
	mon := &recordingMonitor{}
	e := f.engine(t, WithMonitor(mon))

	_, err := e.Search(ctx, &core.QueryTree{
		Similarity: core.SimilarityClause{Text: "x"},
		Filters:    []core.Predicate{{Field: "date", Op: core.OpGt, Values: []string{"soon"}}},
	}, 5, 0)
	require.Error(t, err)
	assert.Equal(t, []string{"start", "finish"}, mon.stages)
	assert.Equal(t, []*core.RankedResult{nil}, mon.results)

	result, err := e.SearchText(ctx, "x", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "finish", "start", "fetch", "finish"}, mon.stages)
	assert.Same(t, result, mon.results[1])
}
