// Package ingestion provides pipeline orchestration for indexing documents.
//
// The Pipeline type manages the ingestion workflow for documents, including:
//   - Splitting documents into chunks
//   - Generating chunk embeddings and upserting them into the vector index
//   - Indexing document metadata and persisting documents with their chunks
//   - Extracting relations from every chunk and merging them into the concept graph
//
// Documents are processed concurrently on a worker pool, and relation
// extraction fans out per chunk on a second pool. A document that is already
// stored is skipped, so ingesting the same files twice is a no-op.
package ingestion
