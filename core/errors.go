// Copyright 2025 The Papermill Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"errors"
	"fmt"
	"strings"
)

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrInvalidRelation indicates an extracted relation failed validation.
	ErrInvalidRelation = errors.New("invalid relation")

	// ErrEmptyDocumentID indicates the document ID field is empty.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrEmptyContent indicates a text field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrTruncatedRecord indicates an encoded record shorter than its
	// length prefixes claim.
	ErrTruncatedRecord = errors.New("truncated record")

	// ErrInvalidSpan indicates chunk offsets are out of order or out of range.
	ErrInvalidSpan = errors.New("invalid chunk span")
)

// Query, retrieval and provenance errors. The typed errors below unwrap to these.
var (
	ErrSyntax               = errors.New("syntax error")
	ErrUnknownField         = errors.New("unknown field")
	ErrEmptyIndex           = errors.New("vector index is empty")
	ErrDimensionMismatch    = errors.New("vector dimension mismatch")
	ErrIncompleteProvenance = errors.New("incomplete provenance")
	ErrStaleCitation        = errors.New("stale citation")
	ErrDocumentDeleted      = errors.New("document is being deleted")
)

// SyntaxError reports a malformed query.
type SyntaxError struct {
	Pos int // Byte offset in the query string
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at offset %d: %s", e.Pos, e.Msg)
}

func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// UnknownFieldError reports a filter on a field absent from the metadata schema.
type UnknownFieldError struct {
	Field string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown field %q", e.Field)
}

func (e *UnknownFieldError) Unwrap() error { return ErrUnknownField }

// EmptyIndexError reports a search against an index with no vectors.
type EmptyIndexError struct{}

func (e *EmptyIndexError) Error() string { return ErrEmptyIndex.Error() }

func (e *EmptyIndexError) Unwrap() error { return ErrEmptyIndex }

// DimensionMismatchError reports a vector whose length differs from the index dimension.
type DimensionMismatchError struct {
	Want, Got int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: want %d, got %d", e.Want, e.Got)
}

func (e *DimensionMismatchError) Unwrap() error { return ErrDimensionMismatch }

// IncompleteProvenanceError reports generated text that is not grounded in a citation.
type IncompleteProvenanceError struct {
	Level   Level
	Key     string // Summary node the segment belongs to
	Segment int    // Segment index, -1 when the output had no segments at all
	Reason  string
}

func (e *IncompleteProvenanceError) Error() string {
	return fmt.Sprintf("incomplete provenance in %s summary %q segment %d: %s", e.Level, e.Key, e.Segment, e.Reason)
}

func (e *IncompleteProvenanceError) Unwrap() error { return ErrIncompleteProvenance }

// StaleCitationError reports citations of chunks that no longer exist.
type StaleCitationError struct {
	Citations []Citation
}

func (e *StaleCitationError) Error() string {
	keys := make([]string, len(e.Citations))
	for i, c := range e.Citations {
		keys[i] = c.Key()
	}
	return fmt.Sprintf("stale citations: %s", strings.Join(keys, ", "))
}

func (e *StaleCitationError) Unwrap() error { return ErrStaleCitation }

// CollaboratorError identifies the external collaborator and operation that failed
// after the bounded retry policy was exhausted.
type CollaboratorError struct {
	Collaborator string
	Op           string
	Attempts     int
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s failed after %d attempt(s): %v", e.Collaborator, e.Op, e.Attempts, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }
