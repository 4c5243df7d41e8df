package search

import (
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/vector"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
// Every Start is paired with one Finish; Finish gets a nil result when the
// search failed.
type SearchMonitor interface {
	Start(tree *core.QueryTree, k int)
	AfterFetch(topN int, candidates []vector.Candidate)
	AfterFilter(survivors []core.ID)
	Refetch(attempt, topN int)
	AfterFusion(hits []core.Hit)
	Finish(result *core.RankedResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ *core.QueryTree, _ int)         {}
func (n *noopMonitor) AfterFetch(_ int, _ []vector.Candidate) {}
func (n *noopMonitor) AfterFilter(_ []core.ID)                {}
func (n *noopMonitor) Refetch(_, _ int)                       {}
func (n *noopMonitor) AfterFusion(_ []core.Hit)               {}
func (n *noopMonitor) Finish(_ *core.RankedResult)            {}
