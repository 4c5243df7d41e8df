package core

// ScoreExplanation records the components that produced a fused score.
type ScoreExplanation struct {
	Vector       float64  // Raw similarity reported by the vector index
	Keyword      float64  // Fraction of query terms matched in text or metadata
	Alpha        float64  // Weight applied to the vector component
	MatchedTerms []string // Query terms that contributed to Keyword
}

// Hit is one ranked chunk.
type Hit struct {
	ChunkID     ID
	DocumentID  DocumentID
	Start       int
	Text        string
	Score       float64
	Explanation ScoreExplanation
}

// Less reports whether a ranks before b: higher score first, then document id,
// then chunk offset, then chunk id.
func (a *Hit) Less(b *Hit) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.DocumentID != b.DocumentID {
		return a.DocumentID < b.DocumentID
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return a.ChunkID < b.ChunkID
}

// RankedResult is an ordered result set. Slice order is rank order.
type RankedResult struct {
	Hits      []Hit
	Fetched   int // Candidates requested from the vector index on the last fetch
	Refetches int // Additional fetches issued because filters left fewer than k hits
}

// DocumentIDs returns the distinct documents in rank order.
func (r *RankedResult) DocumentIDs() []DocumentID {
	seen := make(map[DocumentID]bool)
	var ids []DocumentID
	for _, h := range r.Hits {
		if !seen[h.DocumentID] {
			seen[h.DocumentID] = true
			ids = append(ids, h.DocumentID)
		}
	}
	return ids
}
