package graph

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/skewballfox/papermill/ai/mock"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// axisEmbedder maps each alias key to a unit vector along its axis. Keys
// sharing an axis are synonyms, keys on different axes are orthogonal.
func axisEmbedder(t *testing.T, axes map[string]int) *mock.MockEmbedder {
	t.Helper()
	dim := 0
	for _, a := range axes {
		dim = max(dim, a+1)
	}
	m := mock.NewMockEmbedder()
	m.EmbedTextsFunc = func(_ context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i, text := range texts {
			a, ok := axes[text]
			if !ok {
				return nil, fmt.Errorf("unexpected key %q", text)
			}
			out[i] = make([]float32, dim)
			out[i][a] = 1
		}
		return out, nil
	}
	return m
}

func newTestBuilder(t *testing.T, embedder *mock.MockEmbedder, opts ...Option) *Builder {
	t.Helper()
	var b *Builder
	var err error
	if embedder == nil {
		b, err = NewBuilder(nil, opts...)
	} else {
		b, err = NewBuilder(embedder, opts...)
	}
	require.NoError(t, err)
	return b
}

func rel(subject string, typ core.RelationType, object string, confidence float64) core.Relation {
	return core.Relation{Subject: subject, Type: typ, Object: object, Confidence: confidence}
}

func mustResolve(t *testing.T, b *Builder, label string) core.ConceptNode {
	t.Helper()
	n, ok := b.Resolve(label)
	require.True(t, ok, "label %q should resolve", label)
	return n
}

func TestBuilder_SynonymAliasesShareNode(t *testing.T) {
	ctx := context.Background()
	emb := axisEmbedder(t, map[string]int{"ml": 0, "machine learning": 0, "ai": 1})
	b := newTestBuilder(t, emb)

	_, err := b.Ingest(ctx, "d1", []core.Relation{rel("ML", "extends", "AI", 0.9)})
	require.NoError(t, err)
	affected, err := b.Ingest(ctx, "d2", []core.Relation{rel("Machine Learning", "extends", "AI", 0.85)})
	require.NoError(t, err)

	ml := mustResolve(t, b, "Machine Learning")
	assert.Equal(t, ml.ID, mustResolve(t, b, "ML").ID)
	assert.Equal(t, []string{"machine learning", "ml"}, ml.Aliases)
	assert.Equal(t, "ML", ml.Label)
	assert.Equal(t, core.NodeConfirmed, ml.State)
	assert.Equal(t, 2, ml.Events)

	ai := mustResolve(t, b, "ai")
	edges := b.Edges(ml.ID)
	require.Len(t, edges, 1)
	assert.Equal(t, core.EdgeKey{Source: ml.ID, Type: "extends", Target: ai.ID}, edges[0].Key)
	assert.InDelta(t, 1.75, edges[0].Weight, 1e-9)
	assert.Equal(t, 2, edges[0].Events)
	assert.Equal(t, []core.DocumentID{"d1", "d2"}, []core.DocumentID{edges[0].Provenance[0].DocumentID, edges[0].Provenance[1].DocumentID})

	assert.ElementsMatch(t, []core.NodeID{ml.ID, ai.ID}, affected.Nodes)
	assert.Equal(t, []core.EdgeKey{edges[0].Key}, affected.Edges)

	s := b.Stats()
	assert.Equal(t, 2, s.Nodes)
	assert.Equal(t, 1, s.Edges)
	assert.Equal(t, 3, s.Aliases)
	assert.Equal(t, 2, s.Events)
}

func TestBuilder_SeenKeysAreNotReembedded(t *testing.T) {
	ctx := context.Background()
	emb := axisEmbedder(t, map[string]int{"a": 0, "b": 1, "c": 2})
	b := newTestBuilder(t, emb)

	_, err := b.Ingest(ctx, "d1", []core.Relation{rel("a", "uses", "b", 0.5)})
	require.NoError(t, err)
	assert.Equal(t, 1, emb.CallCount())

	_, err = b.Ingest(ctx, "d2", []core.Relation{rel("A", "uses", "B", 0.5)})
	require.NoError(t, err)
	assert.Equal(t, 1, emb.CallCount())

	_, err = b.Ingest(ctx, "d3", []core.Relation{rel("a", "uses", "c", 0.5)})
	require.NoError(t, err)
	assert.Equal(t, 2, emb.CallCount())
}

func TestBuilder_IngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t, nil)
	rels := []core.Relation{
		rel("BERT", "uses", "Transformer", 0.7),
		rel("BERT", "evaluated_on", "GLUE", 0.6),
	}

	_, err := b.Ingest(ctx, "d1", rels)
	require.NoError(t, err)
	before := b.Stats()
	bert := mustResolve(t, b, "bert")
	edgesBefore := b.Edges(bert.ID)

	affected, err := b.Ingest(ctx, "d1", rels)
	require.NoError(t, err)
	assert.Empty(t, affected.Nodes)
	assert.Empty(t, affected.Edges)
	assert.Equal(t, before, b.Stats())
	assert.Equal(t, edgesBefore, b.Edges(bert.ID))
	assert.Equal(t, bert, mustResolve(t, b, "bert"))
}

func TestBuilder_RepeatedRelationInOneBatchCountsOnce(t *testing.T) {
	b := newTestBuilder(t, nil)
	_, err := b.Ingest(context.Background(), "d1", []core.Relation{
		rel("x", "cites", "y", 0.4),
		rel("X", "cites", "Y", 0.4),
	})
	require.NoError(t, err)

	edges := b.Edges(mustResolve(t, b, "x").ID)
	require.Len(t, edges, 1)
	assert.Equal(t, 1, edges[0].Events)
	assert.InDelta(t, 0.4, edges[0].Weight, 1e-9)
}

func TestBuilder_NodeStates(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t, nil)

	_, err := b.Ingest(ctx, "d1", []core.Relation{rel("alpha", "related_to", "beta", 0.5)})
	require.NoError(t, err)
	assert.Equal(t, core.NodePending, mustResolve(t, b, "alpha").State)
	assert.Equal(t, core.NodePending, mustResolve(t, b, "beta").State)

	_, err = b.Ingest(ctx, "d2", []core.Relation{rel("alpha", "related_to", "gamma", 0.5)})
	require.NoError(t, err)
	assert.Equal(t, core.NodeConfirmed, mustResolve(t, b, "alpha").State)
	assert.Equal(t, core.NodePending, mustResolve(t, b, "gamma").State)

	_, err = b.Ingest(ctx, "d3", []core.Relation{rel("delta", "related_to", "epsilon", 0.95)})
	require.NoError(t, err)
	assert.Equal(t, core.NodeConfirmed, mustResolve(t, b, "delta").State)
	assert.Equal(t, core.NodeConfirmed, mustResolve(t, b, "epsilon").State)

	s := b.Stats()
	assert.Equal(t, 2, s.Pending)
	assert.Equal(t, 3, s.Confirmed)
}

func TestBuilder_ConfirmOptions(t *testing.T) {
	b := newTestBuilder(t, nil, WithConfirmAfter(1))
	_, err := b.Ingest(context.Background(), "d1", []core.Relation{rel("a", "uses", "b", 0.1)})
	require.NoError(t, err)
	assert.Equal(t, core.NodeConfirmed, mustResolve(t, b, "a").State)

	_, err = NewBuilder(nil, WithConfirmAfter(0))
	assert.Error(t, err)
	_, err = NewBuilder(nil, WithSimilarityThreshold(1.5))
	assert.Error(t, err)
	_, err = NewBuilder(nil, WithHighConfidence(0))
	assert.Error(t, err)
}

func TestBuilder_SelfLoopsAreSkipped(t *testing.T) {
	b := newTestBuilder(t, nil)
	_, err := b.Ingest(context.Background(), "d1", []core.Relation{rel("Networks", "extends", "network", 0.9)})
	require.NoError(t, err)

	n := mustResolve(t, b, "network")
	assert.Empty(t, b.Edges(n.ID))
	assert.Equal(t, 1, n.Events)
	assert.Equal(t, 1, b.Stats().Nodes)
}

func TestBuilder_IngestRejectsInvalidInput(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t, nil)

	_, err := b.Ingest(ctx, "", []core.Relation{rel("a", "uses", "b", 0.5)})
	assert.ErrorIs(t, err, core.ErrEmptyDocumentID)

	_, err = b.Ingest(ctx, "d1", []core.Relation{rel("a", "uses", "", 0.5)})
	assert.Error(t, err)

	_, err = b.Ingest(ctx, "d1", []core.Relation{rel("a", "uses", "!!!", 0.5)})
	assert.ErrorIs(t, err, ErrEmptyLabel)

	assert.Zero(t, b.Stats().Nodes)

	affected, err := b.Ingest(ctx, "d1", nil)
	require.NoError(t, err)
	assert.Empty(t, affected.Nodes)
}

func TestBuilder_EmbedderErrorLeavesGraphUntouched(t *testing.T) {
	emb := mock.NewMockEmbedder()
	emb.EmbedTextsFunc = func(context.Context, []string) ([][]float32, error) {
		return nil, fmt.Errorf("embedding backend down")
	}
	b := newTestBuilder(t, emb)

	_, err := b.Ingest(context.Background(), "d1", []core.Relation{rel("a", "uses", "b", 0.5)})
	require.Error(t, err)
	assert.Zero(t, b.Stats().Nodes)
}

func mergeFixture(t *testing.T, opts ...Option) *Builder {
	t.Helper()
	ctx := context.Background()
	b := newTestBuilder(t, nil, opts...)
	_, err := b.Ingest(ctx, "a", []core.Relation{rel("BERT", "uses", "Transformer", 0.5)})
	require.NoError(t, err)
	_, err = b.Ingest(ctx, "b", []core.Relation{
		rel("RoBERTa", "uses", "Transformer", 0.4),
		rel("RoBERTa", "extends", "BERT", 0.6),
	})
	require.NoError(t, err)
	return b
}

func TestBuilder_Merge(t *testing.T) {
	ctx := context.Background()
	b := mergeFixture(t)
	bert := mustResolve(t, b, "bert")
	roberta := mustResolve(t, b, "roberta")
	transformer := mustResolve(t, b, "transformer")

	affected, err := b.Merge(ctx, bert.ID, roberta.ID)
	require.NoError(t, err)
	assert.Contains(t, affected.Nodes, bert.ID)
	assert.Contains(t, affected.Nodes, roberta.ID)

	kept := mustResolve(t, b, "RoBERTa")
	assert.Equal(t, bert.ID, kept.ID)
	assert.Equal(t, []string{"bert", "roberta"}, kept.Aliases)

	absorbed, ok := b.Node(roberta.ID)
	require.True(t, ok)
	assert.Equal(t, core.NodeMerged, absorbed.State)
	assert.Equal(t, bert.ID, absorbed.MergedInto)

	// The colliding uses-edge sums, the extends-edge became a self-loop.
	edges := b.Edges(bert.ID)
	require.Len(t, edges, 1)
	assert.Equal(t, core.EdgeKey{Source: bert.ID, Type: "uses", Target: transformer.ID}, edges[0].Key)
	assert.InDelta(t, 0.9, edges[0].Weight, 1e-9)
	assert.Equal(t, 2, edges[0].Events)

	s := b.Stats()
	assert.Equal(t, 1, s.Merged)
	assert.Equal(t, 1, s.Edges)
	assert.Len(t, b.Nodes(), 2)
}

func TestBuilder_MergeIsMonotonic(t *testing.T) {
	ctx := context.Background()
	b := mergeFixture(t)
	_, err := b.MergeLabels(ctx, "BERT", "RoBERTa")
	require.NoError(t, err)
	bert := mustResolve(t, b, "bert")

	_, err = b.Ingest(ctx, "c", []core.Relation{rel("RoBERTa", "uses", "Attention", 0.7)})
	require.NoError(t, err)

	attention := mustResolve(t, b, "attention")
	assert.Equal(t, bert.ID, mustResolve(t, b, "roberta").ID)
	assert.Contains(t, b.Edges(bert.ID), b.Edges(attention.ID)[0])
	assert.Equal(t, core.EdgeKey{Source: bert.ID, Type: "uses", Target: attention.ID}, b.Edges(attention.ID)[0].Key)
	assert.Equal(t, 1, b.Stats().Merged)
}

func TestBuilder_MergeEdgeCases(t *testing.T) {
	ctx := context.Background()
	b := mergeFixture(t)
	bert := mustResolve(t, b, "bert")
	roberta := mustResolve(t, b, "roberta")

	affected, err := b.Merge(ctx, bert.ID, bert.ID)
	require.NoError(t, err)
	assert.Empty(t, affected.Nodes)

	_, err = b.Merge(ctx, bert.ID, 999)
	assert.ErrorIs(t, err, ErrNodeNotFound)
	_, err = b.MergeLabels(ctx, "bert", "gpt")
	assert.ErrorIs(t, err, ErrNodeNotFound)

	_, err = b.Merge(ctx, bert.ID, roberta.ID)
	require.NoError(t, err)
	// Merging the forwarded pair again resolves to the same node.
	affected, err = b.Merge(ctx, roberta.ID, bert.ID)
	require.NoError(t, err)
	assert.Empty(t, affected.Nodes)
}

func TestBuilder_RemoveDocument(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t, nil)
	_, err := b.Ingest(ctx, "a", []core.Relation{rel("x", "cites", "y", 0.5)})
	require.NoError(t, err)
	_, err = b.Ingest(ctx, "b", []core.Relation{rel("x", "cites", "y", 0.3)})
	require.NoError(t, err)

	x := mustResolve(t, b, "x")
	edges := b.Edges(x.ID)
	require.Len(t, edges, 1)
	assert.InDelta(t, 0.8, edges[0].Weight, 1e-9)

	affected, err := b.RemoveDocument(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, affected.Nodes, 2)
	assert.Len(t, affected.Edges, 1)

	x = mustResolve(t, b, "x")
	assert.Equal(t, 1, x.Events)
	require.Len(t, x.Provenance, 1)
	assert.Equal(t, core.DocumentID("b"), x.Provenance[0].DocumentID)

	edges = b.Edges(x.ID)
	require.Len(t, edges, 1)
	assert.InDelta(t, 0.3, edges[0].Weight, 1e-9)
	assert.Equal(t, 1, edges[0].Events)
	assert.Equal(t, 1, b.Stats().Events)

	affected, err = b.RemoveDocument(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, affected.Nodes)

	// A re-ingested document contributes again.
	_, err = b.Ingest(ctx, "a", []core.Relation{rel("x", "cites", "y", 0.5)})
	require.NoError(t, err)
	assert.InDelta(t, 0.8, b.Edges(x.ID)[0].Weight, 1e-9)
}

func TestBuilder_Subgraph(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t, nil)
	_, err := b.Ingest(ctx, "d1", []core.Relation{
		rel("a", "uses", "b", 0.5),
		rel("b", "uses", "c", 0.5),
		rel("d", "extends", "c", 0.5),
	})
	require.NoError(t, err)

	labels := func(sg *core.Subgraph) []string {
		var out []string
		for _, n := range sg.Nodes {
			out = append(out, n.Key)
		}
		return out
	}

	sg, err := b.Subgraph("a", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, labels(sg))
	assert.Empty(t, sg.Edges)

	sg, err = b.Subgraph("b", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, labels(sg))
	assert.Len(t, sg.Edges, 2)

	sg, err = b.Subgraph("a", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, labels(sg))
	assert.Len(t, sg.Edges, 3)

	_, err = b.Subgraph("zeta", 1)
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestBuilder_LoadRestoresGraph(t *testing.T) {
	ctx := context.Background()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Backend.Close()

	emb := axisEmbedder(t, map[string]int{"bert": 0, "roberta": 1, "transformer": 2, "attention": 3})
	b := newTestBuilder(t, emb, WithRepository(repos.Graph))
	rels := []core.Relation{
		rel("BERT", "uses", "Transformer", 0.5),
		rel("RoBERTa", "uses", "Transformer", 0.4),
		rel("RoBERTa", "extends", "BERT", 0.6),
	}
	_, err = b.Ingest(ctx, "a", rels)
	require.NoError(t, err)
	_, err = b.MergeLabels(ctx, "bert", "roberta")
	require.NoError(t, err)
	_, err = b.Ingest(ctx, "b", []core.Relation{rel("BERT", "uses", "Attention", 0.9)})
	require.NoError(t, err)
	_, err = b.RemoveDocument(ctx, "b")
	require.NoError(t, err)

	loaded := newTestBuilder(t, emb, WithRepository(repos.Graph))
	require.NoError(t, loaded.Load(ctx))

	assert.Equal(t, b.Stats(), loaded.Stats())
	assert.Equal(t, b.Nodes(), loaded.Nodes())
	bert := mustResolve(t, loaded, "roberta")
	assert.Equal(t, b.Edges(bert.ID), loaded.Edges(bert.ID))

	// Applied events survive the reload.
	affected, err := loaded.Ingest(ctx, "a", rels)
	require.NoError(t, err)
	assert.Empty(t, affected.Nodes)

	// New nodes do not reuse persisted ids.
	emb.EmbedTextsFunc = axisEmbedder(t, map[string]int{"gpt": 4}).EmbedTextsFunc
	_, err = loaded.Ingest(ctx, "c", []core.Relation{rel("GPT", "related_to", "BERT", 0.5)})
	require.NoError(t, err)
	gpt := mustResolve(t, loaded, "gpt")
	for _, n := range b.Nodes() {
		assert.Greater(t, gpt.ID, n.ID)
	}
}

func TestBuilder_ConcurrentIngest(t *testing.T) {
	ctx := context.Background()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Backend.Close()
	b := newTestBuilder(t, nil, WithRepository(repos.Graph))

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			docID := core.DocumentID(fmt.Sprintf("doc-%d", i))
			_, errs[i] = b.Ingest(ctx, docID, []core.Relation{
				rel("shared", "related_to", fmt.Sprintf("topic %d", i), 0.5),
				rel(fmt.Sprintf("topic %d", i), "uses", fmt.Sprintf("tool %d", i), 0.5),
			})
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	s := b.Stats()
	assert.Equal(t, 1+2*workers, s.Nodes)
	assert.Equal(t, 2*workers, s.Edges)
	assert.Equal(t, 2*workers, s.Events)

	shared := mustResolve(t, b, "shared")
	assert.Equal(t, workers, shared.Events)
	assert.Equal(t, core.NodeConfirmed, shared.State)
	assert.Len(t, b.Edges(shared.ID), workers)

	loaded := newTestBuilder(t, nil, WithRepository(repos.Graph))
	require.NoError(t, loaded.Load(ctx))
	assert.Equal(t, s, loaded.Stats())
}

func TestBuilder_RemoveAfterMergeFoldsEndpoints(t *testing.T) {
	ctx := context.Background()
	b := newTestBuilder(t, nil)
	_, err := b.Ingest(ctx, "a", []core.Relation{rel("x", "uses", "y", 0.5)})
	require.NoError(t, err)
	_, err = b.Ingest(ctx, "b", []core.Relation{rel("x", "cites", "z", 0.5)})
	require.NoError(t, err)
	_, err = b.MergeLabels(ctx, "x", "y")
	require.NoError(t, err)
	assert.Equal(t, 3, mustResolve(t, b, "x").Events)

	_, err = b.RemoveDocument(ctx, "a")
	require.NoError(t, err)
	x := mustResolve(t, b, "x")
	assert.Equal(t, 1, x.Events)
	require.Len(t, x.Provenance, 1)
	assert.Equal(t, core.DocumentID("b"), x.Provenance[0].DocumentID)
}

func TestBuilder_ConcurrentMergeAndIngestPersistConsistently(t *testing.T) {
	ctx := context.Background()
	repos, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer repos.Backend.Close()
	b := newTestBuilder(t, nil, WithRepository(repos.Graph))

	const pairs = 10
	for i := range 2 * pairs {
		_, err := b.Ingest(ctx, core.DocumentID(fmt.Sprintf("seed-%d", i)), []core.Relation{
			rel("hub", "uses", fmt.Sprintf("c%d", i), 0.5),
			rel(fmt.Sprintf("c%d", i), "cites", "hub", 0.5),
			rel(fmt.Sprintf("c%d", i), "related_to", fmt.Sprintf("c%d", (i+1)%(2*pairs)), 0.5),
		})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2*pairs)
	for i := range pairs {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errs[i] = b.MergeLabels(ctx, fmt.Sprintf("c%d", 2*i), fmt.Sprintf("c%d", 2*i+1))
		}()
		go func() {
			defer wg.Done()
			for j := range 5 {
				docID := core.DocumentID(fmt.Sprintf("d-%d-%d", i, j))
				if _, err := b.Ingest(ctx, docID, []core.Relation{
					rel("hub", "uses", fmt.Sprintf("c%d", 2*i+1), 0.5),
					rel(fmt.Sprintf("c%d", 2*i+1), "extends", fmt.Sprintf("c%d", (2*i+2)%(2*pairs)), 0.5),
				}); err != nil {
					errs[pairs+i] = err
					return
				}
			}
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	loaded := newTestBuilder(t, nil, WithRepository(repos.Graph))
	require.NoError(t, loaded.Load(ctx))
	assert.Equal(t, b.Stats(), loaded.Stats())
	assert.Equal(t, b.Nodes(), loaded.Nodes())
	for _, n := range b.Nodes() {
		assert.Equal(t, b.Edges(n.ID), loaded.Edges(n.ID), "edges of %s", n.Key)
	}
	assert.Equal(t, pairs, b.Stats().Merged)
}
