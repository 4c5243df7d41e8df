package graph

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/skewballfox/papermill/core"
)

// Stats summarizes the graph.
type Stats struct {
	Nodes     int
	Pending   int
	Confirmed int
	Merged    int
	Edges     int
	Aliases   int
	Events    int
}

// Resolve returns the live node a label resolves to, following merges.
func (b *Builder) Resolve(label string) (core.ConceptNode, bool) {
	key := Normalize(label)
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.aliases[key]
	if !ok {
		return core.ConceptNode{}, false
	}
	return *cloneNode(b.nodes[b.forward(e.node)]), true
}

// Node returns a node by id as stored, including merged nodes.
func (b *Builder) Node(id core.NodeID) (core.ConceptNode, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n, ok := b.nodes[id]
	if !ok {
		return core.ConceptNode{}, false
	}
	return *cloneNode(n), true
}

// Nodes returns the live (not merged) nodes ordered by id.
func (b *Builder) Nodes() []core.ConceptNode {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.ConceptNode, 0, len(b.nodes))
	for _, n := range b.nodes {
		if n.State != core.NodeMerged {
			out = append(out, *cloneNode(n))
		}
	}
	slices.SortFunc(out, func(x, y core.ConceptNode) int { return cmp.Compare(x.ID, y.ID) })
	return out
}

// Edges returns the edges touching the live node id forwards to.
func (b *Builder) Edges(id core.NodeID) []core.ConceptEdge {
	b.mu.RLock()
	defer b.mu.RUnlock()
	adj := b.adjacency[b.forward(id)]
	out := make([]core.ConceptEdge, 0, len(adj))
	for key := range adj {
		out = append(out, *cloneEdge(b.edges[key]))
	}
	slices.SortFunc(out, func(x, y core.ConceptEdge) int { return compareEdgeKeys(x.Key, y.Key) })
	return out
}

// Subgraph returns the nodes within depth hops of the node label resolves
// to, ignoring edge direction, and the edges among them.
func (b *Builder) Subgraph(label string, depth int) (*core.Subgraph, error) {
	key := Normalize(label)
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.aliases[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, label)
	}
	start := b.forward(e.node)

	visited := map[core.NodeID]bool{start: true}
	frontier := []core.NodeID{start}
	for range max(depth, 0) {
		var next []core.NodeID
		for _, id := range frontier {
			for ek := range b.adjacency[id] {
				for _, other := range []core.NodeID{ek.Source, ek.Target} {
					if !visited[other] {
						visited[other] = true
						next = append(next, other)
					}
				}
			}
		}
		frontier = next
	}

	sg := &core.Subgraph{}
	for id := range visited {
		sg.Nodes = append(sg.Nodes, *cloneNode(b.nodes[id]))
		for ek := range b.adjacency[id] {
			if ek.Source == id && visited[ek.Target] {
				sg.Edges = append(sg.Edges, *cloneEdge(b.edges[ek]))
			}
		}
	}
	slices.SortFunc(sg.Nodes, func(x, y core.ConceptNode) int { return cmp.Compare(x.ID, y.ID) })
	slices.SortFunc(sg.Edges, func(x, y core.ConceptEdge) int { return compareEdgeKeys(x.Key, y.Key) })
	return sg, nil
}

// Stats returns counts over the whole graph.
func (b *Builder) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Stats{Nodes: len(b.nodes), Edges: len(b.edges), Aliases: len(b.aliases), Events: len(b.events)}
	for _, n := range b.nodes {
		switch n.State {
		case core.NodePending:
			s.Pending++
		case core.NodeConfirmed:
			s.Confirmed++
		case core.NodeMerged:
			s.Merged++
		}
	}
	return s
}
