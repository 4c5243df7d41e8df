package graph

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/storage"
	"github.com/skewballfox/papermill/vector"
)

type preparedRelation struct {
	subject, object string
	typ             core.RelationType
	confidence      float64
	source          core.SourceRef
	fingerprint     core.ID
}

// batch is the normalized input of one Ingest call.
type batch struct {
	relations []preparedRelation
	keys      []string          // distinct alias keys in order of appearance
	labels    map[string]string // first surface form of each key
	vectors   map[string][]float32
}

// Ingest merges the relations extracted from a document into the graph and
// returns the nodes and edges it changed. Events already applied are ignored,
// so re-ingesting the same relations is a no-op.
func (b *Builder) Ingest(ctx context.Context, docID core.DocumentID, relations []core.Relation) (*core.Affected, error) {
	if docID == "" {
		return nil, core.ErrEmptyDocumentID
	}
	in, err := prepare(docID, relations)
	if err != nil {
		return nil, err
	}
	if len(in.relations) == 0 {
		return &core.Affected{}, nil
	}

	// Collaborator calls happen before any lock is taken.
	if in.vectors, err = b.embedUnseen(ctx, in.keys); err != nil {
		return nil, err
	}

	for range maxLockAttempts {
		set, reserved := b.plan(in)
		unlock := b.locks.lockAll(set.keys())

		affected, change, ok := b.commit(in, set, reserved)
		if !ok {
			unlock()
			b.logger.Debug("lock set changed under merge, retrying", "document", docID)
			continue
		}
		err := b.persist(ctx, change)
		unlock()
		if err != nil {
			return nil, err
		}
		if len(affected.Nodes)+len(affected.Edges) > 0 {
			b.logger.Debug("ingested relations", "document", docID, "relations", len(in.relations), "nodes", len(affected.Nodes), "edges", len(affected.Edges))
		}
		return affected, nil
	}
	return nil, fmt.Errorf("%w: ingest of %s", ErrContention, docID)
}

func (in *batch) add(key, label string) {
	if _, seen := in.labels[key]; !seen {
		in.labels[key] = label
		in.keys = append(in.keys, key)
	}
}

func prepare(docID core.DocumentID, relations []core.Relation) (*batch, error) {
	in := &batch{labels: make(map[string]string)}
	for i := range relations {
		rel := relations[i]
		if err := CheckRelation(&rel); err != nil {
			return nil, fmt.Errorf("relation %d: %w", i, err)
		}
		rel.Confidence = core.ClampConfidence(rel.Confidence)
		subject, object := Normalize(rel.Subject), Normalize(rel.Object)
		typ := core.NormalizeRelationType(string(rel.Type))
		in.add(subject, rel.Subject)
		in.add(object, rel.Object)
		source := core.SourceRef{DocumentID: docID, ChunkID: rel.ChunkID}
		in.relations = append(in.relations, preparedRelation{
			subject:     subject,
			object:      object,
			typ:         typ,
			confidence:  rel.Confidence,
			source:      source,
			fingerprint: fingerprint(source, subject, typ, object),
		})
	}
	return in, nil
}

// CheckRelation reports whether Ingest would accept rel: it must be a valid
// relation whose endpoints both normalize to a non-empty label.
func CheckRelation(rel *core.Relation) error {
	if err := core.ValidateRelation(rel); err != nil {
		return err
	}
	if Normalize(rel.Subject) == "" || Normalize(rel.Object) == "" {
		return ErrEmptyLabel
	}
	return nil
}

// fingerprint identifies an extraction event.
func fingerprint(src core.SourceRef, subject string, typ core.RelationType, object string) core.ID {
	return core.IDFromContent("event\x00" + string(src.DocumentID) + "\x00" + strconv.FormatUint(uint64(src.ChunkID), 10) +
		"\x00" + subject + "\x00" + string(typ) + "\x00" + object)
}

// embedUnseen embeds the keys that have no alias entry yet.
func (b *Builder) embedUnseen(ctx context.Context, keys []string) (map[string][]float32, error) {
	if b.embedder == nil {
		return nil, nil
	}
	b.mu.RLock()
	var unseen []string
	for _, key := range keys {
		if _, ok := b.aliases[key]; !ok {
			unseen = append(unseen, key)
		}
	}
	b.mu.RUnlock()
	if len(unseen) == 0 {
		return nil, nil
	}

	vecs, err := b.embedder.EmbedTexts(ctx, unseen)
	if err != nil {
		return nil, fmt.Errorf("embedding concept labels: %w", err)
	}
	if len(vecs) != len(unseen) {
		return nil, fmt.Errorf("embedding concept labels: got %d vectors for %d labels", len(vecs), len(unseen))
	}
	out := make(map[string][]float32, len(unseen))
	for i, key := range unseen {
		out[key] = vector.NormalizeVector(vecs[i])
	}
	return out, nil
}

// plan computes the locks an ingest needs and reserves ids for the nodes it
// may create.
func (b *Builder) plan(in *batch) (lockSet, []core.NodeID) {
	set := lockSet{}
	var fresh int

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, key := range in.keys {
		set.alias(key)
		if e, ok := b.aliases[key]; ok {
			set.node(uint64(b.forward(e.node)))
			continue
		}
		fresh++
		if id, ok := b.bestMatch(in.vectors[key]); ok {
			set.node(uint64(id))
		}
	}

	reserved := make([]core.NodeID, fresh)
	for i := range reserved {
		reserved[i] = b.nextID
		b.nextID++
		set.node(uint64(reserved[i]))
	}
	return set, reserved
}

// bestMatch returns the live node of the most similar alias at or above the
// threshold. Ties go to the smaller alias key. Callers hold b.mu.
func (b *Builder) bestMatch(vec []float32) (core.NodeID, bool) {
	if vec == nil {
		return 0, false
	}
	var (
		bestKey   string
		bestScore float32
		found     bool
	)
	for key, e := range b.aliases {
		if e.vector == nil {
			continue
		}
		score := vector.Cosine(vec, e.vector)
		if float64(score) < b.threshold {
			continue
		}
		if !found || score > bestScore || (score == bestScore && key < bestKey) {
			bestKey, bestScore, found = key, score, true
		}
	}
	if !found {
		return 0, false
	}
	return b.forward(b.aliases[bestKey].node), true
}

// commit applies the batch under the arena lock. It reports false, without
// mutating anything, when resolution reaches a node outside the lock set.
func (b *Builder) commit(in *batch, set lockSet, reserved []core.NodeID) (*core.Affected, *storage.GraphChange, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, key := range in.keys {
		var id core.NodeID
		if e, ok := b.aliases[key]; ok {
			id = b.forward(e.node)
		} else if match, ok := b.bestMatch(in.vectors[key]); ok {
			id = match
		} else {
			continue
		}
		if !set.hasNode(uint64(id)) {
			return nil, nil, false
		}
	}

	t := newTracker()
	resolved := make(map[string]core.NodeID, len(in.keys))
	resolve := func(key string) core.NodeID {
		if id, ok := resolved[key]; ok {
			return id
		}
		var id core.NodeID
		if e, ok := b.aliases[key]; ok {
			id = b.forward(e.node)
		} else if match, ok := b.bestMatch(in.vectors[key]); ok {
			id = match
			b.aliases[key] = &aliasEntry{node: id, vector: in.vectors[key]}
			n := b.nodes[id]
			n.Aliases = insertSorted(n.Aliases, key)
			t.alias(key, b.aliases[key])
			t.node(n)
		} else {
			id, reserved = reserved[0], reserved[1:]
			n := &core.ConceptNode{ID: id, Label: in.labels[key], Key: key, Aliases: []string{key}, State: core.NodePending}
			b.nodes[id] = n
			b.aliases[key] = &aliasEntry{node: id, vector: in.vectors[key]}
			t.alias(key, b.aliases[key])
			t.node(n)
		}
		resolved[key] = id
		return id
	}

	for _, rel := range in.relations {
		if _, done := b.events[rel.fingerprint]; done {
			continue
		}
		s, o := resolve(rel.subject), resolve(rel.object)

		b.touchNode(s, rel)
		t.node(b.nodes[s])
		if o != s {
			b.touchNode(o, rel)
			t.node(b.nodes[o])

			key := core.EdgeKey{Source: s, Type: rel.typ, Target: o}
			e, ok := b.edges[key]
			if !ok {
				e = &core.ConceptEdge{Key: key}
				b.edges[key] = e
				b.link(key)
			}
			e.Weight += rel.confidence
			e.Events++
			e.Provenance = addRef(e.Provenance, rel.source)
			t.edge(e)
		}

		ev := &storage.EventRecord{
			ID:         rel.fingerprint,
			Source:     rel.source,
			Subject:    s,
			Type:       rel.typ,
			Object:     o,
			Confidence: rel.confidence,
		}
		b.addEvent(ev)
		t.change.Events = append(t.change.Events, ev)
	}

	b.checkEndpoints(t)
	return t.affected(), t.snapshot(), true
}

func (b *Builder) touchNode(id core.NodeID, rel preparedRelation) {
	n := b.nodes[id]
	n.Events++
	n.Confidence = max(n.Confidence, rel.confidence)
	n.Provenance = addRef(n.Provenance, rel.source)
	b.updateState(n)
}

// checkEndpoints panics when a touched edge references a missing or merged
// node. Callers hold b.mu.
func (b *Builder) checkEndpoints(t *tracker) {
	for _, e := range t.edges {
		for _, id := range []core.NodeID{e.Key.Source, e.Key.Target} {
			n, ok := b.nodes[id]
			if !ok || n.State == core.NodeMerged {
				panic(fmt.Sprintf("concept graph: edge %s has dangling endpoint %d", e.Key, id))
			}
		}
	}
}

func addRef(refs []core.SourceRef, ref core.SourceRef) []core.SourceRef {
	i, found := slices.BinarySearchFunc(refs, ref, compareRefs)
	if found {
		return refs
	}
	return slices.Insert(refs, i, ref)
}

func compareRefs(a, b core.SourceRef) int {
	if c := cmp.Compare(a.DocumentID, b.DocumentID); c != 0 {
		return c
	}
	return cmp.Compare(a.ChunkID, b.ChunkID)
}

func insertSorted(keys []string, key string) []string {
	i, found := slices.BinarySearch(keys, key)
	if found {
		return keys
	}
	return slices.Insert(keys, i, key)
}

func compareEdgeKeys(a, b core.EdgeKey) int {
	if c := cmp.Compare(a.Source, b.Source); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Type, b.Type); c != 0 {
		return c
	}
	return cmp.Compare(a.Target, b.Target)
}

// tracker records the records a mutation touched.
type tracker struct {
	nodes   map[core.NodeID]*core.ConceptNode
	edges   map[core.EdgeKey]*core.ConceptEdge
	aliases map[string]*aliasEntry
	change  storage.GraphChange
}

func newTracker() *tracker {
	return &tracker{
		nodes:   make(map[core.NodeID]*core.ConceptNode),
		edges:   make(map[core.EdgeKey]*core.ConceptEdge),
		aliases: make(map[string]*aliasEntry),
	}
}

func (t *tracker) node(n *core.ConceptNode)        { t.nodes[n.ID] = n }
func (t *tracker) edge(e *core.ConceptEdge)        { t.edges[e.Key] = e }
func (t *tracker) alias(key string, e *aliasEntry) { t.aliases[key] = e }

func (t *tracker) deleteEdge(key core.EdgeKey) {
	delete(t.edges, key)
	t.change.DeletedEdges = append(t.change.DeletedEdges, key)
}

func (t *tracker) affected() *core.Affected {
	a := &core.Affected{
		Nodes: make([]core.NodeID, 0, len(t.nodes)),
		Edges: make([]core.EdgeKey, 0, len(t.edges)+len(t.change.DeletedEdges)),
	}
	for id := range t.nodes {
		a.Nodes = append(a.Nodes, id)
	}
	for key := range t.edges {
		a.Edges = append(a.Edges, key)
	}
	a.Edges = append(a.Edges, t.change.DeletedEdges...)
	slices.Sort(a.Nodes)
	slices.SortFunc(a.Edges, compareEdgeKeys)
	a.Edges = slices.Compact(a.Edges)
	return a
}

// snapshot copies the touched records for persistence. Callers hold b.mu.
func (t *tracker) snapshot() *storage.GraphChange {
	change := t.change
	for _, n := range t.nodes {
		change.Nodes = append(change.Nodes, cloneNode(n))
	}
	for _, e := range t.edges {
		change.Edges = append(change.Edges, cloneEdge(e))
	}
	for key, e := range t.aliases {
		change.Aliases = append(change.Aliases, &storage.AliasRecord{Key: key, Node: e.node, Vector: e.vector})
	}
	return &change
}
