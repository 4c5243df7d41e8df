package core

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateDocument(t *testing.T) {
	text := "first paragraph\n\nsecond paragraph"

	tests := []struct {
		name    string
		doc     *Document
		wantErr error
	}{
		{
			name:    "valid document without chunks",
			doc:     &Document{ID: "d1", Text: text},
			wantErr: nil,
		},
		{
			name: "valid document with chunks",
			doc: &Document{ID: "d1", Text: text, Chunks: []Chunk{
				{ID: 1, DocumentID: "d1", Start: 0, End: 15, Text: text[:15]},
				{ID: 2, DocumentID: "d1", Start: 17, End: len(text), Text: text[17:]},
			}},
			wantErr: nil,
		},
		{
			name:    "nil document",
			doc:     nil,
			wantErr: ErrInvalidDocument,
		},
		{
			name:    "empty id",
			doc:     &Document{Text: text},
			wantErr: ErrEmptyDocumentID,
		},
		{
			name:    "empty text",
			doc:     &Document{ID: "d1", Text: "   "},
			wantErr: ErrEmptyContent,
		},
		{
			name: "chunk from another document",
			doc: &Document{ID: "d1", Text: text, Chunks: []Chunk{
				{ID: 1, DocumentID: "d2", Start: 0, End: 5, Text: "first"},
			}},
			wantErr: ErrInvalidDocument,
		},
		{
			name: "chunk past end of text",
			doc: &Document{ID: "d1", Text: text, Chunks: []Chunk{
				{ID: 1, DocumentID: "d1", Start: 0, End: 500, Text: "first"},
			}},
			wantErr: ErrInvalidSpan,
		},
		{
			name: "overlapping chunks",
			doc: &Document{ID: "d1", Text: text, Chunks: []Chunk{
				{ID: 1, DocumentID: "d1", Start: 0, End: 10, Text: text[:10]},
				{ID: 2, DocumentID: "d1", Start: 5, End: 15, Text: text[5:15]},
			}},
			wantErr: ErrInvalidSpan,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "expected %v, got %v", tt.wantErr, err)
		})
	}
}

func TestValidateRelation(t *testing.T) {
	tests := []struct {
		name    string
		rel     *Relation
		wantErr bool
	}{
		{name: "valid", rel: &Relation{Subject: "ML", Type: "extends", Object: "AI", Confidence: 0.9}},
		{name: "nil", rel: nil, wantErr: true},
		{name: "empty subject", rel: &Relation{Subject: " ", Type: "extends", Object: "AI"}, wantErr: true},
		{name: "empty type", rel: &Relation{Subject: "ML", Type: "", Object: "AI"}, wantErr: true},
		{name: "nan confidence", rel: &Relation{Subject: "ML", Type: "uses", Object: "AI", Confidence: math.NaN()}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRelation(tt.rel)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidRelation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClampConfidence(t *testing.T) {
	assert.Equal(t, 0.0, ClampConfidence(-1))
	assert.Equal(t, 1.0, ClampConfidence(3))
	assert.Equal(t, 0.4, ClampConfidence(0.4))
}

func TestTypedErrors(t *testing.T) {
	var err error = &SyntaxError{Pos: 3, Msg: "unterminated quote"}
	assert.ErrorIs(t, err, ErrSyntax)
	var syn *SyntaxError
	assert.ErrorAs(t, err, &syn)
	assert.Equal(t, 3, syn.Pos)

	assert.ErrorIs(t, &UnknownFieldError{Field: "x"}, ErrUnknownField)
	assert.ErrorIs(t, &EmptyIndexError{}, ErrEmptyIndex)
	assert.ErrorIs(t, &DimensionMismatchError{Want: 3, Got: 2}, ErrDimensionMismatch)
	assert.ErrorIs(t, &IncompleteProvenanceError{Level: LevelDocument}, ErrIncompleteProvenance)
	assert.ErrorIs(t, &StaleCitationError{Citations: []Citation{{ChunkID: 1}}}, ErrStaleCitation)

	cause := errors.New("boom")
	collab := &CollaboratorError{Collaborator: "embedder", Op: "embed_text", Attempts: 3, Err: cause}
	assert.ErrorIs(t, collab, cause)
	assert.Contains(t, collab.Error(), "embedder embed_text")
}
