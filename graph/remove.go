package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/storage"
)

// RemoveDocument withdraws every event extracted from a document: node and
// edge event counts and edge weights drop by the event's contribution and the
// document disappears from provenance. Nodes and edges themselves remain, as
// do merge decisions.
func (b *Builder) RemoveDocument(ctx context.Context, docID core.DocumentID) (*core.Affected, error) {
	for range maxLockAttempts {
		b.mu.RLock()
		events := b.documentEvents(docID)
		set := lockSet{}
		for _, ev := range events {
			set.node(uint64(b.forward(ev.Subject)))
			set.node(uint64(b.forward(ev.Object)))
		}
		b.mu.RUnlock()
		if len(events) == 0 {
			return &core.Affected{}, nil
		}

		unlock := b.locks.lockAll(set.keys())
		affected, change, ok := b.applyRemove(docID, set)
		if !ok {
			unlock()
			continue
		}
		err := b.persist(ctx, change)
		unlock()
		if err != nil {
			return nil, err
		}
		b.logger.Debug("removed document from concept graph", "document", docID, "nodes", len(affected.Nodes), "edges", len(affected.Edges))
		return affected, nil
	}
	return nil, fmt.Errorf("%w: removal of %s", ErrContention, docID)
}

// documentEvents returns a document's events ordered by id. Callers hold b.mu.
func (b *Builder) documentEvents(docID core.DocumentID) []*storage.EventRecord {
	ids := make([]core.ID, 0, len(b.docEvents[docID]))
	for id := range b.docEvents[docID] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	out := make([]*storage.EventRecord, len(ids))
	for i, id := range ids {
		out[i] = b.events[id]
	}
	return out
}

func (b *Builder) applyRemove(docID core.DocumentID, set lockSet) (*core.Affected, *storage.GraphChange, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	events := b.documentEvents(docID)
	for _, ev := range events {
		if !set.hasNode(uint64(b.forward(ev.Subject))) || !set.hasNode(uint64(b.forward(ev.Object))) {
			return nil, nil, false
		}
	}

	t := newTracker()
	for _, ev := range events {
		s, o := b.forward(ev.Subject), b.forward(ev.Object)
		// Ingest counted both endpoints of the event, even when a later
		// merge folded them into one node.
		b.withdrawNode(s, docID, t)
		if ev.Object != ev.Subject {
			b.withdrawNode(o, docID, t)
		}
		if o != s {
			if e, ok := b.edges[core.EdgeKey{Source: s, Type: ev.Type, Target: o}]; ok {
				e.Weight = max(e.Weight-ev.Confidence, 0)
				e.Events = max(e.Events-1, 0)
				e.Provenance = stripDocument(e.Provenance, docID)
				t.edge(e)
			}
		}
		delete(b.events, ev.ID)
		t.change.DeletedEvents = append(t.change.DeletedEvents, ev.ID)
	}
	delete(b.docEvents, docID)

	return t.affected(), t.snapshot(), true
}

func (b *Builder) withdrawNode(id core.NodeID, docID core.DocumentID, t *tracker) {
	n := b.nodes[id]
	n.Events = max(n.Events-1, 0)
	n.Provenance = stripDocument(n.Provenance, docID)
	t.node(n)
}

func stripDocument(refs []core.SourceRef, docID core.DocumentID) []core.SourceRef {
	return slices.DeleteFunc(refs, func(r core.SourceRef) bool { return r.DocumentID == docID })
}
