package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/storage"
)

// Merge absorbs one node into another. The absorbed node's aliases,
// provenance and edges move to keep; edges that collide with an existing edge
// of keep add their weight to it, and edges that would become self-loops are
// dropped. The absorbed node is marked merged and forwards to keep. Merges
// cannot be undone.
func (b *Builder) Merge(ctx context.Context, keep, absorb core.NodeID) (*core.Affected, error) {
	for range maxLockAttempts {
		b.mu.RLock()
		k, a, err := b.mergePair(keep, absorb)
		if err != nil {
			b.mu.RUnlock()
			return nil, err
		}
		if k == a {
			b.mu.RUnlock()
			return &core.Affected{}, nil
		}
		set := lockSet{}
		set.node(uint64(k))
		set.node(uint64(a))
		for _, key := range b.directAliases(a) {
			set.alias(key)
		}
		for key := range b.adjacency[a] {
			set.node(uint64(key.Source))
			set.node(uint64(key.Target))
		}
		b.mu.RUnlock()

		unlock := b.locks.lockAll(set.keys())
		affected, change, ok := b.applyMerge(keep, absorb, k, a, set)
		if !ok {
			unlock()
			continue
		}
		err = b.persist(ctx, change)
		unlock()
		if err != nil {
			return nil, err
		}
		b.logger.Info("merged concepts", "keep", k, "absorbed", a, "edges", len(affected.Edges))
		return affected, nil
	}
	return nil, fmt.Errorf("%w: merge of %d into %d", ErrContention, absorb, keep)
}

// MergeLabels merges the node absorb resolves to into the node keep resolves to.
func (b *Builder) MergeLabels(ctx context.Context, keep, absorb string) (*core.Affected, error) {
	kn, ok := b.Resolve(keep)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, keep)
	}
	an, ok := b.Resolve(absorb)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, absorb)
	}
	return b.Merge(ctx, kn.ID, an.ID)
}

// mergePair resolves both ends of a merge. Callers hold b.mu.
func (b *Builder) mergePair(keep, absorb core.NodeID) (core.NodeID, core.NodeID, error) {
	if _, ok := b.nodes[keep]; !ok {
		return 0, 0, fmt.Errorf("%w: %d", ErrNodeNotFound, keep)
	}
	if _, ok := b.nodes[absorb]; !ok {
		return 0, 0, fmt.Errorf("%w: %d", ErrNodeNotFound, absorb)
	}
	return b.forward(keep), b.forward(absorb), nil
}

// directAliases lists the alias keys whose entry points at id itself.
// Callers hold b.mu.
func (b *Builder) directAliases(id core.NodeID) []string {
	var keys []string
	for key, e := range b.aliases {
		if e.node == id {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	return keys
}

func (b *Builder) applyMerge(keep, absorb, k, a core.NodeID, set lockSet) (*core.Affected, *storage.GraphChange, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ck, ca, err := b.mergePair(keep, absorb); err != nil || ck != k || ca != a {
		return nil, nil, false
	}
	direct := b.directAliases(a)
	for _, key := range direct {
		if !set.has("alias:" + key) {
			return nil, nil, false
		}
	}
	// Every rewritten edge must have both endpoints locked.
	for key := range b.adjacency[a] {
		if !set.hasNode(uint64(key.Source)) || !set.hasNode(uint64(key.Target)) {
			return nil, nil, false
		}
	}

	t := newTracker()
	kn, an := b.nodes[k], b.nodes[a]

	for _, key := range direct {
		e := b.aliases[key]
		e.node = k
		t.alias(key, e)
	}
	for _, key := range an.Aliases {
		kn.Aliases = insertSorted(kn.Aliases, key)
	}
	for _, ref := range an.Provenance {
		kn.Provenance = addRef(kn.Provenance, ref)
	}
	kn.Events += an.Events
	kn.Confidence = max(kn.Confidence, an.Confidence)
	b.updateState(kn)

	an.State = core.NodeMerged
	an.MergedInto = k
	t.node(kn)
	t.node(an)

	keys := make([]core.EdgeKey, 0, len(b.adjacency[a]))
	for key := range b.adjacency[a] {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, compareEdgeKeys)

	for _, key := range keys {
		e := b.edges[key]
		b.unlink(key)
		delete(b.edges, key)
		t.deleteEdge(key)

		moved := key
		if moved.Source == a {
			moved.Source = k
		}
		if moved.Target == a {
			moved.Target = k
		}
		if moved.Source == moved.Target {
			b.logger.Debug("dropping edge that became a self-loop", "edge", key)
			continue
		}
		if existing, ok := b.edges[moved]; ok {
			existing.Weight += e.Weight
			existing.Events += e.Events
			for _, ref := range e.Provenance {
				existing.Provenance = addRef(existing.Provenance, ref)
			}
			t.edge(existing)
			continue
		}
		e.Key = moved
		b.edges[moved] = e
		b.link(moved)
		t.edge(e)
	}

	b.checkEndpoints(t)
	return t.affected(), t.snapshot(), true
}
