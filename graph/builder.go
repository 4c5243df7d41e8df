package graph

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/storage"
)

// Defaults for builder options.
const (
	DefaultSimilarityThreshold = 0.9
	DefaultConfirmAfter        = 2
	DefaultHighConfidence      = 0.8

	maxLockAttempts = 8
)

type aliasEntry struct {
	node   core.NodeID
	vector []float32
}

// Builder incrementally merges extracted relations into the concept graph.
// It is safe for concurrent use.
type Builder struct {
	embedder ai.Embedder
	repo     storage.GraphRepository
	logger   *slog.Logger

	threshold      float64
	confirmAfter   int
	highConfidence float64

	locks *keyedMutex

	mu        sync.RWMutex
	nodes     map[core.NodeID]*core.ConceptNode
	edges     map[core.EdgeKey]*core.ConceptEdge
	adjacency map[core.NodeID]map[core.EdgeKey]struct{}
	aliases   map[string]*aliasEntry
	events    map[core.ID]*storage.EventRecord
	docEvents map[core.DocumentID]map[core.ID]struct{}
	nextID    core.NodeID
}

// Option configures a Builder.
type Option func(*Builder) error

// WithSimilarityThreshold sets the cosine similarity above which an unseen
// alias joins an existing node.
func WithSimilarityThreshold(threshold float64) Option {
	return func(b *Builder) error {
		if threshold <= 0 || threshold > 1 {
			return fmt.Errorf("similarity threshold must be in (0,1], got %v", threshold)
		}
		b.threshold = threshold
		return nil
	}
}

// WithConfirmAfter sets the number of distinct events that confirm a node.
func WithConfirmAfter(n int) Option {
	return func(b *Builder) error {
		if n < 1 {
			return fmt.Errorf("confirm-after must be at least 1, got %d", n)
		}
		b.confirmAfter = n
		return nil
	}
}

// WithHighConfidence sets the event confidence that confirms a node on its own.
func WithHighConfidence(c float64) Option {
	return func(b *Builder) error {
		if c <= 0 || c > 1 {
			return fmt.Errorf("high confidence must be in (0,1], got %v", c)
		}
		b.highConfidence = c
		return nil
	}
}

// WithRepository persists every mutation to repo.
func WithRepository(repo storage.GraphRepository) Option {
	return func(b *Builder) error {
		b.repo = repo
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) error {
		b.logger = logger
		return nil
	}
}

// NewBuilder creates an empty builder. embedder may be nil, in which case
// aliases resolve by normalized label only.
func NewBuilder(embedder ai.Embedder, opts ...Option) (*Builder, error) {
	b := &Builder{
		embedder:       embedder,
		threshold:      DefaultSimilarityThreshold,
		confirmAfter:   DefaultConfirmAfter,
		highConfidence: DefaultHighConfidence,
		locks:          newKeyedMutex(),
		nodes:          make(map[core.NodeID]*core.ConceptNode),
		edges:          make(map[core.EdgeKey]*core.ConceptEdge),
		adjacency:      make(map[core.NodeID]map[core.EdgeKey]struct{}),
		aliases:        make(map[string]*aliasEntry),
		events:         make(map[core.ID]*storage.EventRecord),
		docEvents:      make(map[core.DocumentID]map[core.ID]struct{}),
		nextID:         1,
	}
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return nil, err
		}
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	b.logger = b.logger.With("component", "concept-graph")
	return b, nil
}

// Load replaces the in-memory graph with the repository contents.
func (b *Builder) Load(ctx context.Context) error {
	if b.repo == nil {
		return nil
	}
	g, err := b.repo.LoadGraph(ctx)
	if err != nil {
		return fmt.Errorf("loading concept graph: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nodes = make(map[core.NodeID]*core.ConceptNode, len(g.Nodes))
	b.edges = make(map[core.EdgeKey]*core.ConceptEdge, len(g.Edges))
	b.adjacency = make(map[core.NodeID]map[core.EdgeKey]struct{})
	b.aliases = make(map[string]*aliasEntry, len(g.Aliases))
	b.events = make(map[core.ID]*storage.EventRecord, len(g.Events))
	b.docEvents = make(map[core.DocumentID]map[core.ID]struct{})
	b.nextID = 1

	for _, n := range g.Nodes {
		b.nodes[n.ID] = n
		b.nextID = max(b.nextID, n.ID+1)
	}
	for _, e := range g.Edges {
		b.edges[e.Key] = e
		b.link(e.Key)
	}
	for _, a := range g.Aliases {
		b.aliases[a.Key] = &aliasEntry{node: a.Node, vector: a.Vector}
	}
	for _, ev := range g.Events {
		b.addEvent(ev)
	}

	b.logger.Info("concept graph loaded", "nodes", len(b.nodes), "edges", len(b.edges), "aliases", len(b.aliases), "events", len(b.events))
	return nil
}

func (b *Builder) persist(ctx context.Context, change *storage.GraphChange) error {
	if b.repo == nil || change.Empty() {
		return nil
	}
	if err := b.repo.SaveGraph(ctx, change); err != nil {
		b.logger.Error("error persisting concept graph change", "err", err)
		return fmt.Errorf("persisting concept graph: %w", err)
	}
	return nil
}

// forward follows merge forwarding to the live node. Callers hold b.mu.
func (b *Builder) forward(id core.NodeID) core.NodeID {
	for range len(b.nodes) + 1 {
		n, ok := b.nodes[id]
		if !ok || n.State != core.NodeMerged {
			return id
		}
		id = n.MergedInto
	}
	panic(fmt.Sprintf("concept graph: forwarding cycle at node %d", id))
}

func (b *Builder) link(key core.EdgeKey) {
	for _, id := range []core.NodeID{key.Source, key.Target} {
		adj, ok := b.adjacency[id]
		if !ok {
			adj = make(map[core.EdgeKey]struct{})
			b.adjacency[id] = adj
		}
		adj[key] = struct{}{}
	}
}

func (b *Builder) unlink(key core.EdgeKey) {
	for _, id := range []core.NodeID{key.Source, key.Target} {
		delete(b.adjacency[id], key)
		if len(b.adjacency[id]) == 0 {
			delete(b.adjacency, id)
		}
	}
}

func (b *Builder) addEvent(ev *storage.EventRecord) {
	b.events[ev.ID] = ev
	set, ok := b.docEvents[ev.Source.DocumentID]
	if !ok {
		set = make(map[core.ID]struct{})
		b.docEvents[ev.Source.DocumentID] = set
	}
	set[ev.ID] = struct{}{}
}

func (b *Builder) updateState(n *core.ConceptNode) {
	if n.State == core.NodePending && (n.Events >= b.confirmAfter || n.Confidence >= b.highConfidence) {
		n.State = core.NodeConfirmed
	}
}

func cloneNode(n *core.ConceptNode) *core.ConceptNode {
	c := *n
	c.Aliases = append([]string(nil), n.Aliases...)
	c.Provenance = append([]core.SourceRef(nil), n.Provenance...)
	return &c
}

func cloneEdge(e *core.ConceptEdge) *core.ConceptEdge {
	c := *e
	c.Provenance = append([]core.SourceRef(nil), e.Provenance...)
	return &c
}
