package summarize

import (
	"cmp"
	"slices"

	"github.com/skewballfox/papermill/core"
)

// ChunkRef is one chunk to summarize. A lower Rank is more relevant.
type ChunkRef struct {
	ChunkID    core.ID
	DocumentID core.DocumentID
	Rank       int
}

// Input is the material for one summary tree.
type Input struct {
	// Topic, when set, steers every generation prompt.
	Topic  string
	Chunks []ChunkRef
}

// FromRankedResult summarizes the hits of a search in result order.
func FromRankedResult(result *core.RankedResult) Input {
	var in Input
	if result == nil {
		return in
	}
	for i, h := range result.Hits {
		in.Chunks = append(in.Chunks, ChunkRef{ChunkID: h.ChunkID, DocumentID: h.DocumentID, Rank: i})
	}
	return in
}

// FromSubgraph summarizes the chunks that back a concept subgraph. Chunks
// are ranked by the summed weight of the edges they support, then by id.
// Document-level provenance without a chunk is not summarizable and is skipped.
func FromSubgraph(sg *core.Subgraph) Input {
	var in Input
	if sg == nil {
		return in
	}

	type scored struct {
		ref   core.SourceRef
		score float64
	}
	byChunk := make(map[core.ID]*scored)
	note := func(ref core.SourceRef, weight float64) {
		if ref.ChunkID == 0 {
			return
		}
		s, ok := byChunk[ref.ChunkID]
		if !ok {
			s = &scored{ref: ref}
			byChunk[ref.ChunkID] = s
		}
		s.score += weight
	}
	for _, e := range sg.Edges {
		for _, ref := range e.Provenance {
			note(ref, e.Weight)
		}
	}
	for _, n := range sg.Nodes {
		for _, ref := range n.Provenance {
			note(ref, 0)
		}
	}

	ranked := make([]*scored, 0, len(byChunk))
	for _, s := range byChunk {
		ranked = append(ranked, s)
	}
	slices.SortFunc(ranked, func(a, b *scored) int {
		if c := cmp.Compare(b.score, a.score); c != 0 {
			return c
		}
		return cmp.Compare(a.ref.ChunkID, b.ref.ChunkID)
	})
	for i, s := range ranked {
		in.Chunks = append(in.Chunks, ChunkRef{ChunkID: s.ref.ChunkID, DocumentID: s.ref.DocumentID, Rank: i})
	}
	return in
}

// ordered returns the refs by rank with duplicate chunks dropped.
func (in Input) ordered() []ChunkRef {
	refs := slices.Clone(in.Chunks)
	slices.SortStableFunc(refs, func(a, b ChunkRef) int { return cmp.Compare(a.Rank, b.Rank) })
	seen := make(map[core.ID]bool, len(refs))
	return slices.DeleteFunc(refs, func(r ChunkRef) bool {
		if seen[r.ChunkID] {
			return true
		}
		seen[r.ChunkID] = true
		return false
	})
}
