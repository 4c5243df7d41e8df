// Package metadata implements the metadata/filter index: a typed schema of
// document attributes, pluggable extractors that normalize raw metadata into
// typed values, and an in-memory index that evaluates filter predicates
// against chunk ids.
//
// Reads take a shared lock only, so concurrent searches never block each
// other. Puts and removals take the exclusive lock for the duration of one
// document.
package metadata
