// Package graph builds the concept graph from extracted relations.
//
// Nodes and edges live in an arena keyed by stable integer ids. A separate
// alias table maps normalized labels to node ids together with the label's
// embedding, which lets near-duplicate labels ("ML", "machine learning")
// resolve to one node. Merges are monotonic: an absorbed node keeps its
// record, is marked merged and forwards to the node that absorbed it.
//
// Mutations lock only the alias keys and nodes they touch, so ingests over
// disjoint concepts run in parallel while overlapping ones serialize. Every
// extraction event has a fingerprint; re-ingesting the same events changes
// nothing.
package graph
