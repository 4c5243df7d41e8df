// Package reembed refreshes derived data for documents that are already
// stored: chunk vectors after an embedding model change, and concept-graph
// relations after a relation extractor change.
//
// Both jobs walk the document store in batches and report progress to a
// writer. Collaborator calls are made once; retries and backoff come from the
// resilient provider the engine wraps around its collaborators.
package reembed
