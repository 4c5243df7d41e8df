package graph

import "errors"

var (
	// ErrEmptyLabel is returned when a relation endpoint normalizes to nothing.
	ErrEmptyLabel = errors.New("concept label is empty after normalization")

	// ErrNodeNotFound is returned for unknown node ids or labels.
	ErrNodeNotFound = errors.New("concept node not found")

	// ErrContention is returned when the set of nodes an operation must lock
	// keeps changing under concurrent merges.
	ErrContention = errors.New("concept graph contention")
)
