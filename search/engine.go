package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/metadata"
	"github.com/skewballfox/papermill/query"
	"github.com/skewballfox/papermill/vector"
)

// Defaults for engine options.
const (
	DefaultAlpha        = 0.7
	DefaultOverFetch    = 4
	DefaultMaxRefetches = 2
)

// ChunkSource loads chunk text for scoring and display.
type ChunkSource interface {
	GetChunks(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error)
}

// Engine executes query trees against the vector and metadata indexes.
// It is safe for concurrent use.
type Engine struct {
	index    vector.Index
	meta     *metadata.Index
	chunks   ChunkSource
	embedder ai.Embedder
	logger   *slog.Logger

	alpha        float64
	overFetch    int
	maxRefetches int
	exclude      func(core.DocumentID) bool
	monitor      SearchMonitor
}

// Option configures an Engine.
type Option func(*Engine) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// WithAlpha sets the weight of the vector score in the fused score.
func WithAlpha(alpha float64) Option {
	return func(e *Engine) error {
		if alpha < 0 || alpha > 1 {
			return fmt.Errorf("alpha must be in [0,1], got %v", alpha)
		}
		e.alpha = alpha
		return nil
	}
}

// WithOverFetch sets the multiple of k requested from the vector index.
func WithOverFetch(factor int) Option {
	return func(e *Engine) error {
		if factor < 1 {
			return fmt.Errorf("over-fetch factor must be at least 1, got %d", factor)
		}
		e.overFetch = factor
		return nil
	}
}

// WithMaxRefetches bounds the re-fetches issued when filtering leaves fewer than k hits.
func WithMaxRefetches(n int) Option {
	return func(e *Engine) error {
		if n < 0 {
			return fmt.Errorf("max re-fetches must be non-negative, got %d", n)
		}
		e.maxRefetches = n
		return nil
	}
}

// WithExclude hides candidates of documents for which exclude returns true.
// The engine facade uses it to hide documents that are being deleted.
func WithExclude(exclude func(core.DocumentID) bool) Option {
	return func(e *Engine) error {
		e.exclude = exclude
		return nil
	}
}

// WithMonitor installs a monitor observing every search.
func WithMonitor(monitor SearchMonitor) Option {
	return func(e *Engine) error {
		e.monitor = monitor
		return nil
	}
}

// NewEngine creates a search engine.
func NewEngine(index vector.Index, meta *metadata.Index, chunks ChunkSource, embedder ai.Embedder, opts ...Option) (*Engine, error) {
	if index == nil {
		return nil, ErrVectorIndexRequired
	}
	if meta == nil {
		return nil, ErrMetadataIndexRequired
	}
	if chunks == nil {
		return nil, ErrChunkSourceRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	e := &Engine{
		index:        index,
		meta:         meta,
		chunks:       chunks,
		embedder:     embedder,
		logger:       slog.Default(),
		alpha:        DefaultAlpha,
		overFetch:    DefaultOverFetch,
		maxRefetches: DefaultMaxRefetches,
		monitor:      &noopMonitor{},
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.monitor == nil {
		e.monitor = &noopMonitor{}
	}
	e.logger = e.logger.With("component", "search")
	return e, nil
}

// SearchText parses dsl against the metadata schema and searches with the
// default candidate window.
func (e *Engine) SearchText(ctx context.Context, dsl string, k int) (*core.RankedResult, error) {
	tree, err := query.Parse(dsl, e.meta)
	if err != nil {
		return nil, err
	}
	return e.Search(ctx, tree, k, 0)
}

// Search executes tree and returns at most k hits ordered by fused score.
// topN is the initial candidate window; it is raised to k times the
// over-fetch factor when smaller. A limit hint in the tree replaces k.
//
// Search fails with *core.EmptyIndexError when the index holds no vectors. When
// filters leave fewer than k candidates after the bounded re-fetches, the
// short result is returned as is.
func (e *Engine) Search(ctx context.Context, tree *core.QueryTree, k, topN int) (result *core.RankedResult, err error) {
	if tree == nil {
		return nil, &core.SyntaxError{Msg: "empty query"}
	}
	if tree.Hints.Limit > 0 {
		k = tree.Hints.Limit
	}
	if k <= 0 {
		return nil, ErrInvalidK
	}
	e.monitor.Start(tree, k)
	defer func() { e.monitor.Finish(result) }()

	total, err := e.index.Count(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, &core.EmptyIndexError{}
	}

	// Input errors are reported before any collaborator is called.
	matcher, err := e.meta.Compile(tree.Filters)
	if err != nil {
		return nil, err
	}

	queryVec, err := e.resolve(ctx, tree.Similarity)
	if err != nil {
		return nil, err
	}

	alpha := e.alpha
	if tree.Hints.Alpha != nil {
		alpha = *tree.Hints.Alpha
	}

	topN = max(topN, k*e.overFetch, k)
	filter := e.candidateFilter(tree.Similarity.SeedID)

	var (
		survivors  []core.ID
		scores     map[core.ID]float32
		refetches  int
		candidates []vector.Candidate
	)
	for {
		candidates, err = e.index.Query(ctx, queryVec, topN, filter)
		if err != nil {
			return nil, err
		}
		e.monitor.AfterFetch(topN, candidates)

		ids := make([]core.ID, len(candidates))
		scores = make(map[core.ID]float32, len(candidates))
		for i, c := range candidates {
			ids[i] = c.ID
			scores[c.ID] = c.Score
		}
		survivors = e.meta.Select(matcher, ids)
		e.monitor.AfterFilter(survivors)

		exhausted := len(candidates) < topN || topN >= total
		if len(survivors) >= k || exhausted || refetches >= e.maxRefetches {
			break
		}
		refetches++
		topN *= 2
		e.logger.Debug("re-fetching candidates", "survivors", len(survivors), "k", k, "topN", topN, "attempt", refetches)
		e.monitor.Refetch(refetches, topN)
	}

	hits, err := e.fuse(ctx, tree, alpha, survivors, scores)
	if err != nil {
		return nil, err
	}
	e.monitor.AfterFusion(hits)

	slices.SortStableFunc(hits, func(a, b core.Hit) int {
		switch {
		case a.Less(&b):
			return -1
		case b.Less(&a):
			return 1
		}
		return 0
	})
	if len(hits) > k {
		hits = hits[:k]
	}

	return &core.RankedResult{Hits: hits, Fetched: topN, Refetches: refetches}, nil
}

// resolve turns the similarity clause into a query vector.
func (e *Engine) resolve(ctx context.Context, sim core.SimilarityClause) ([]float32, error) {
	if sim.SeedID == "" {
		vec, err := e.embedder.EmbedText(ctx, sim.Text)
		if err != nil {
			e.logger.Error("error generating embedding for query", "err", err)
			return nil, err
		}
		return vec, nil
	}

	ids := e.meta.Chunks(sim.SeedID)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSeed, sim.SeedID)
	}
	stored, err := e.index.Vectors(ctx, ids...)
	if err != nil {
		return nil, err
	}
	vecs := make([][]float32, 0, len(stored))
	for _, id := range ids {
		if v, ok := stored[id]; ok {
			vecs = append(vecs, v)
		}
	}
	centroid := vector.Centroid(vecs)
	if centroid == nil {
		return nil, fmt.Errorf("%w: %s has no stored vectors", ErrUnknownSeed, sim.SeedID)
	}
	return centroid, nil
}

// candidateFilter hides excluded documents and, for seeded queries, the
// seed document itself.
func (e *Engine) candidateFilter(seed core.DocumentID) vector.Filter {
	if e.exclude == nil && seed == "" {
		return nil
	}
	return func(_ core.ID, p vector.Payload) bool {
		if seed != "" && p.DocumentID == seed {
			return false
		}
		return e.exclude == nil || !e.exclude(p.DocumentID)
	}
}

func (e *Engine) fuse(ctx context.Context, tree *core.QueryTree, alpha float64, ids []core.ID, scores map[core.ID]float32) ([]core.Hit, error) {
	if len(ids) == 0 {
		return []core.Hit{}, nil
	}
	chunks, err := e.chunks.GetChunks(ctx, ids...)
	if err != nil {
		e.logger.Error("error retrieving chunks", "count", len(ids), "err", err)
		return nil, err
	}

	terms := queryTerms(tree.Similarity.Text)
	hits := make([]core.Hit, 0, len(chunks))
	for _, c := range chunks {
		attrs, _ := e.meta.Attributes(c.ID)
		kw, matched := keywordScore(terms, c.Text, attrs)
		vs := float64(scores[c.ID])
		hits = append(hits, core.Hit{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Start:      c.Start,
			Text:       c.Text,
			Score:      alpha*vs + (1-alpha)*kw,
			Explanation: core.ScoreExplanation{
				Vector:       vs,
				Keyword:      kw,
				Alpha:        alpha,
				MatchedTerms: matched,
			},
		})
	}
	return hits, nil
}
