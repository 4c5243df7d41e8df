// Package summarize builds hierarchical, citation-checked summaries.
//
// A Summarizer takes a ranked set of chunks, from a search result or from the
// provenance of a concept subgraph, and aggregates bottom-up: chunk summaries,
// then one summary per document citing its chunks, then one collection
// summary citing the documents. Text generation is delegated to an
// ai.Generator; the Summarizer only keeps the books. Every generated segment
// must cite at least one of the spans it was given, and every cited chunk must
// still exist when the tree is returned.
//
// Basic usage:
//
//	s, err := summarize.NewSummarizer(provider.Generator(), repos.Documents)
//	if err != nil {
//		return err
//	}
//	defer s.Release()
//
//	tree, err := s.Summarize(ctx, summarize.FromRankedResult(result), core.LevelDocument)
package summarize
