package summarize

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"
	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/core"
)

// DefaultShortChunkRunes is the chunk length at or below which chunk text is
// used as its own summary.
const DefaultShortChunkRunes = 280

const (
	chunkPrompt      = "Summarize the passage in one or two sentences. Cite the passage id for every sentence."
	documentPrompt   = "Combine these passage summaries from a single document into one short summary. Cite the ids of the passages supporting each sentence."
	collectionPrompt = "Combine these document summaries into an overview. Cite the ids of the documents supporting each sentence."
)

// ChunkSource loads chunks. Chunks that no longer exist are omitted from the result.
type ChunkSource interface {
	GetChunks(ctx context.Context, ids ...core.ID) ([]*core.Chunk, error)
}

// Summarizer builds summary trees. It is safe for concurrent use.
type Summarizer struct {
	generator  ai.Generator
	chunks     ChunkSource
	pool       *ants.Pool
	logger     *slog.Logger
	shortRunes int
	pruneStale bool
	exclude    func(core.DocumentID) bool
}

// Option configures a Summarizer.
type Option func(*Summarizer) error

// WithShortChunkRunes sets the length at or below which a chunk is not sent
// to the generator. Zero sends every chunk.
func WithShortChunkRunes(n int) Option {
	return func(s *Summarizer) error {
		if n < 0 {
			return fmt.Errorf("short chunk length must not be negative, got %d", n)
		}
		s.shortRunes = n
		return nil
	}
}

// WithPoolSize sets how many generation calls may run at once.
// Default is runtime.NumCPU(), with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(s *Summarizer) error {
		if size < 1 {
			size = 1
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if s.pool != nil {
			s.pool.Release()
		}
		s.pool = pool
		return nil
	}
}

// WithPruneStale drops chunks that no longer exist instead of failing with
// a StaleCitationError. Staleness detected after generation always fails.
func WithPruneStale(prune bool) Option {
	return func(s *Summarizer) error {
		s.pruneStale = prune
		return nil
	}
}

// WithExclude treats every chunk of a document for which exclude returns
// true as stale. It is used to refuse citations into documents being removed.
func WithExclude(exclude func(core.DocumentID) bool) Option {
	return func(s *Summarizer) error {
		s.exclude = exclude
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Summarizer) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSummarizer creates a summarizer. Call Release when done.
func NewSummarizer(generator ai.Generator, chunks ChunkSource, opts ...Option) (*Summarizer, error) {
	if generator == nil {
		return nil, ErrGeneratorRequired
	}
	if chunks == nil {
		return nil, ErrChunkSourceRequired
	}

	pool, err := ants.NewPool(max(runtime.NumCPU(), 1))
	if err != nil {
		return nil, err
	}
	s := &Summarizer{
		generator:  generator,
		chunks:     chunks,
		pool:       pool,
		logger:     slog.Default(),
		shortRunes: DefaultShortChunkRunes,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Release()
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "summarizer")
	return s, nil
}

// Release stops the worker pool.
func (s *Summarizer) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Summarize builds the summary tree for in up to level. The roots of the
// returned tree are the nodes at level: chunk summaries in rank order,
// document summaries ordered by their best chunk rank then id, or a single
// collection summary. Empty input yields a tree without roots.
func (s *Summarizer) Summarize(ctx context.Context, in Input, level core.Level) (*core.SummaryTree, error) {
	if level < core.LevelChunk || level > core.LevelCollection {
		return nil, fmt.Errorf("%w: %d", ErrInvalidLevel, level)
	}
	tree := &core.SummaryTree{Level: level}
	refs := in.ordered()
	if len(refs) == 0 {
		return tree, nil
	}

	chunks, err := s.load(ctx, refs)
	if err != nil {
		return nil, err
	}

	leaves := make([]*core.SummaryNode, len(chunks))
	err = s.each(ctx, len(chunks), func(i int) error {
		node, err := s.summarizeChunk(ctx, in.Topic, chunks[i])
		leaves[i] = node
		return err
	})
	if err != nil {
		return nil, err
	}

	switch level {
	case core.LevelChunk:
		tree.Roots = leaves
	case core.LevelDocument:
		if tree.Roots, err = s.summarizeDocuments(ctx, in.Topic, chunks, leaves); err != nil {
			return nil, err
		}
	case core.LevelCollection:
		docs, err := s.summarizeDocuments(ctx, in.Topic, chunks, leaves)
		if err != nil {
			return nil, err
		}
		root, err := s.summarizeCollection(ctx, in.Topic, docs)
		if err != nil {
			return nil, err
		}
		tree.Roots = []*core.SummaryNode{root}
	}

	if stale, err := s.stale(ctx, chunks); err != nil {
		return nil, err
	} else if len(stale) > 0 {
		s.logger.Warn("cited chunks removed during summarization", "stale", len(stale))
		return nil, &core.StaleCitationError{Citations: stale}
	}

	s.logger.Debug("summary built", "level", level, "chunks", len(chunks), "roots", len(tree.Roots))
	return tree, nil
}

// load fetches the referenced chunks in rank order, pruning or rejecting
// the ones that are gone.
func (s *Summarizer) load(ctx context.Context, refs []ChunkRef) ([]*core.Chunk, error) {
	ids := make([]core.ID, len(refs))
	for i, r := range refs {
		ids[i] = r.ChunkID
	}
	found, err := s.chunks.GetChunks(ctx, ids...)
	if err != nil {
		s.logger.Error("error retrieving chunks", "count", len(ids), "err", err)
		return nil, err
	}
	byID := make(map[core.ID]*core.Chunk, len(found))
	for _, c := range found {
		byID[c.ID] = c
	}

	var stale []core.Citation
	chunks := make([]*core.Chunk, 0, len(refs))
	for _, r := range refs {
		c, ok := byID[r.ChunkID]
		if !ok || s.excluded(c.DocumentID) {
			stale = append(stale, core.Citation{DocumentID: r.DocumentID, ChunkID: r.ChunkID})
			continue
		}
		chunks = append(chunks, c)
	}

	if len(stale) > 0 {
		if !s.pruneStale || len(chunks) == 0 {
			return nil, &core.StaleCitationError{Citations: stale}
		}
		s.logger.Info("pruned stale chunks", "stale", len(stale), "remaining", len(chunks))
	}
	return chunks, nil
}

// stale lists the chunks that have disappeared since load.
func (s *Summarizer) stale(ctx context.Context, chunks []*core.Chunk) ([]core.Citation, error) {
	ids := make([]core.ID, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	found, err := s.chunks.GetChunks(ctx, ids...)
	if err != nil {
		return nil, err
	}
	present := make(map[core.ID]bool, len(found))
	for _, c := range found {
		present[c.ID] = true
	}
	var stale []core.Citation
	for _, c := range chunks {
		if !present[c.ID] || s.excluded(c.DocumentID) {
			stale = append(stale, chunkCitation(c))
		}
	}
	return stale, nil
}

func (s *Summarizer) excluded(id core.DocumentID) bool {
	return s.exclude != nil && s.exclude(id)
}

func (s *Summarizer) summarizeChunk(ctx context.Context, topic string, c *core.Chunk) (*core.SummaryNode, error) {
	cit := chunkCitation(c)
	text := strings.TrimSpace(c.Text)
	if utf8.RuneCountInString(text) <= s.shortRunes {
		return &core.SummaryNode{
			Level:     core.LevelChunk,
			Key:       cit.Key(),
			Text:      text,
			Segments:  []core.SummarySegment{{Text: text, Citations: []core.Citation{cit}}},
			Citations: []core.Citation{cit},
		}, nil
	}
	return s.generate(ctx, core.LevelChunk, cit.Key(), prompt(chunkPrompt, topic),
		[]ai.GroundingSpan{{ID: cit.Key(), Text: text}},
		map[string]core.Citation{cit.Key(): cit})
}

func (s *Summarizer) summarizeDocuments(ctx context.Context, topic string, chunks []*core.Chunk, leaves []*core.SummaryNode) ([]*core.SummaryNode, error) {
	type group struct {
		id       core.DocumentID
		bestRank int
		children []*core.SummaryNode
	}
	byDoc := make(map[core.DocumentID]*group)
	var groups []*group
	for i, c := range chunks {
		g, ok := byDoc[c.DocumentID]
		if !ok {
			g = &group{id: c.DocumentID, bestRank: i}
			byDoc[c.DocumentID] = g
			groups = append(groups, g)
		}
		g.children = append(g.children, leaves[i])
	}
	slices.SortStableFunc(groups, func(a, b *group) int {
		if c := cmp.Compare(a.bestRank, b.bestRank); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	docs := make([]*core.SummaryNode, len(groups))
	err := s.each(ctx, len(groups), func(i int) error {
		g := groups[i]
		spans, cites := childSpans(g.children, func(n *core.SummaryNode) core.Citation { return n.Citations[0] })
		node, err := s.generate(ctx, core.LevelDocument, string(g.id), prompt(documentPrompt, topic), spans, cites)
		if err != nil {
			return err
		}
		node.Children = g.children
		docs[i] = node
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *Summarizer) summarizeCollection(ctx context.Context, topic string, docs []*core.SummaryNode) (*core.SummaryNode, error) {
	spans, cites := childSpans(docs, func(n *core.SummaryNode) core.Citation {
		return core.Citation{DocumentID: core.DocumentID(n.Key)}
	})
	node, err := s.generate(ctx, core.LevelCollection, "collection", prompt(collectionPrompt, topic), spans, cites)
	if err != nil {
		return nil, err
	}
	node.Children = docs
	return node, nil
}

// childSpans turns child summaries into grounding spans keyed by the
// citation each child stands for.
func childSpans(children []*core.SummaryNode, citation func(*core.SummaryNode) core.Citation) ([]ai.GroundingSpan, map[string]core.Citation) {
	spans := make([]ai.GroundingSpan, len(children))
	cites := make(map[string]core.Citation, len(children))
	for i, n := range children {
		cit := citation(n)
		spans[i] = ai.GroundingSpan{ID: cit.Key(), Text: n.Text}
		cites[cit.Key()] = cit
	}
	return spans, cites
}

func (s *Summarizer) generate(ctx context.Context, level core.Level, key, prompt string, spans []ai.GroundingSpan, cites map[string]core.Citation) (*core.SummaryNode, error) {
	segments, err := s.generator.Generate(ctx, prompt, spans)
	if err != nil {
		s.logger.Error("error generating summary", "level", level, "key", key, "err", err)
		return nil, fmt.Errorf("generating %s summary %q: %w", level, key, err)
	}
	node, err := ground(level, key, segments, cites)
	if err != nil {
		s.logger.Warn("rejected ungrounded summary", "level", level, "key", key, "err", err)
		return nil, err
	}
	return node, nil
}

// ground checks that every segment cites at least one of the offered spans
// and assembles the summary node.
func ground(level core.Level, key string, segments []ai.Segment, cites map[string]core.Citation) (*core.SummaryNode, error) {
	if len(segments) == 0 {
		return nil, &core.IncompleteProvenanceError{Level: level, Key: key, Segment: -1, Reason: "generator returned no segments"}
	}

	node := &core.SummaryNode{Level: level, Key: key}
	seen := make(map[string]bool)
	texts := make([]string, 0, len(segments))
	for i, seg := range segments {
		if len(seg.CitationIDs) == 0 {
			return nil, &core.IncompleteProvenanceError{Level: level, Key: key, Segment: i, Reason: "segment has no citations"}
		}
		var segCites []core.Citation
		for _, id := range seg.CitationIDs {
			cit, ok := cites[id]
			if !ok || slices.Contains(segCites, cit) {
				continue
			}
			segCites = append(segCites, cit)
			if !seen[id] {
				seen[id] = true
				node.Citations = append(node.Citations, cit)
			}
		}
		if len(segCites) == 0 {
			return nil, &core.IncompleteProvenanceError{Level: level, Key: key, Segment: i,
				Reason: fmt.Sprintf("citations %v are not among the grounding spans", seg.CitationIDs)}
		}
		text := strings.TrimSpace(seg.Text)
		node.Segments = append(node.Segments, core.SummarySegment{Text: text, Citations: segCites})
		texts = append(texts, text)
	}
	node.Text = strings.Join(texts, " ")
	return node, nil
}

// each runs fn for 0..n-1 on the worker pool and returns the first error
// by index. A failing call does not cancel its siblings.
func (s *Summarizer) each(ctx context.Context, n int, fn func(i int) error) error {
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			errs[i] = fn(i)
		})
		if err != nil {
			wg.Done()
			errs[i] = err
		}
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func chunkCitation(c *core.Chunk) core.Citation {
	return core.Citation{DocumentID: c.DocumentID, ChunkID: c.ID}
}

func prompt(base, topic string) string {
	if topic == "" {
		return base
	}
	return base + " Focus on: " + topic + "."
}
