// Package query parses the textual query language into a core.QueryTree.
//
// A query is free text optionally combined with directive clauses:
//
//	"attention mechanisms" AND author:vaswani AND date:gte:2017 AND tags:in:[nlp, vision]
//	similar_to:1706.03762 published_after:2020-01-01 alpha:0.5 limit:20
//
// Clauses are joined with AND, written explicitly or implied by adjacency.
// Parentheses group clauses but, since only conjunction is supported, they are
// flattened. OR and NOT are rejected. Parsing performs no I/O; the only outside
// input is the schema used to reject unknown fields.
package query
