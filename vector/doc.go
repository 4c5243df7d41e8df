// Package vector is the contract between the engine and the k-nearest-neighbour
// store that holds chunk embeddings.
//
// Index is the narrow interface the query engine, graph builder and ingestion
// pipeline depend on. Adapter implements it on top of a storage.VectorRepository,
// enforcing a single dimensionality across the index and unit-length vectors so
// that repository dot products are cosine similarities.
package vector
