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
	"fmt"
	"math"
	"strings"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Text must not be empty
//   - Chunks must belong to the document, lie within Text and be ordered by offset
//
// NOT validated (populated by processors):
//   - Chunk vectors (checked against the index dimension on upsert)
//   - Chunks may be empty until the chunker runs
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if strings.TrimSpace(string(doc.ID)) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDocumentID)
	}

	if strings.TrimSpace(doc.Text) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	prevEnd := 0
	for i := range doc.Chunks {
		chunk := &doc.Chunks[i]
		if err := ValidateChunk(chunk); err != nil {
			return fmt.Errorf("%w: chunk %d: %w", ErrInvalidDocument, i, err)
		}
		if chunk.DocumentID != doc.ID {
			return fmt.Errorf("%w: chunk %d belongs to %q", ErrInvalidDocument, i, chunk.DocumentID)
		}
		if chunk.Start < prevEnd || chunk.End > len(doc.Text) {
			return fmt.Errorf("%w: chunk %d: %w", ErrInvalidDocument, i, ErrInvalidSpan)
		}
		prevEnd = chunk.End
	}

	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}
	if chunk.Text == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyContent)
	}
	if chunk.Start < 0 || chunk.End <= chunk.Start {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrInvalidSpan)
	}
	return nil
}

// ValidateRelation validates an extracted relation.
//
// Validation rules:
//   - Subject, Type and Object must not be empty
//   - Confidence must be a finite number
func ValidateRelation(rel *Relation) error {
	if rel == nil {
		return fmt.Errorf("%w: relation is nil", ErrInvalidRelation)
	}
	if strings.TrimSpace(rel.Subject) == "" || strings.TrimSpace(rel.Object) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRelation, ErrEmptyContent)
	}
	if NormalizeRelationType(string(rel.Type)) == "" {
		return fmt.Errorf("%w: relation type is empty", ErrInvalidRelation)
	}
	if math.IsNaN(rel.Confidence) || math.IsInf(rel.Confidence, 0) {
		return fmt.Errorf("%w: confidence is not finite", ErrInvalidRelation)
	}
	return nil
}

// ClampConfidence limits a confidence score to [0, 1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}
