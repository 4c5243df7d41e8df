package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skewballfox/papermill/core"
)

type testSchema map[string]core.FieldType

func (s testSchema) FieldType(name string) (core.FieldType, bool) {
	ft, ok := s[name]
	return ft, ok
}

var schema = testSchema{
	"author": core.FieldList,
	"date":   core.FieldDate,
	"tags":   core.FieldList,
	"title":  core.FieldString,
	"format": core.FieldString,
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  core.QueryTree
	}{
		{
			name:  "free text",
			input: "graph neural networks",
			want:  core.QueryTree{Similarity: core.SimilarityClause{Text: "graph neural networks"}},
		},
		{
			name:  "phrase and filter",
			input: `"topic X" AND author:smith`,
			want: core.QueryTree{
				Similarity: core.SimilarityClause{Text: "topic X"},
				Filters:    []core.Predicate{{Field: "author", Op: core.OpEq, Values: []string{"smith"}}},
			},
		},
		{
			name:  "operator and timestamp value",
			input: "attention date:gte:2020-01-01T10:00:00Z",
			want: core.QueryTree{
				Similarity: core.SimilarityClause{Text: "attention"},
				Filters:    []core.Predicate{{Field: "date", Op: core.OpGte, Values: []string{"2020-01-01T10:00:00Z"}}},
			},
		},
		{
			name:  "quoted value",
			input: `x title:"Graph Notes: Part 1"`,
			want: core.QueryTree{
				Similarity: core.SimilarityClause{Text: "x"},
				Filters:    []core.Predicate{{Field: "title", Op: core.OpEq, Values: []string{"Graph Notes: Part 1"}}},
			},
		},
		{
			name:  "bracket list",
			input: `x tags:in:[nlp, "computer vision"]`,
			want: core.QueryTree{
				Similarity: core.SimilarityClause{Text: "x"},
				Filters:    []core.Predicate{{Field: "tags", Op: core.OpIn, Values: []string{"nlp", "computer vision"}}},
			},
		},
		{
			name:  "bare list",
			input: "x format:in:pdf,markdown",
			want: core.QueryTree{
				Similarity: core.SimilarityClause{Text: "x"},
				Filters:    []core.Predicate{{Field: "format", Op: core.OpIn, Values: []string{"pdf", "markdown"}}},
			},
		},
		{
			name:  "similar_to seeds without text",
			input: "similar_to:1706.03762 published_after:2019 published_before:2021-06",
			want: core.QueryTree{
				Similarity: core.SimilarityClause{SeedID: "1706.03762"},
				Filters: []core.Predicate{
					{Field: "date", Op: core.OpGt, Values: []string{"2019"}},
					{Field: "date", Op: core.OpLt, Values: []string{"2021-06"}},
				},
			},
		},
		{
			name:  "groups are flattened",
			input: "(transformers AND (author:vaswani AND tags:nlp))",
			want: core.QueryTree{
				Similarity: core.SimilarityClause{Text: "transformers"},
				Filters: []core.Predicate{
					{Field: "author", Op: core.OpEq, Values: []string{"vaswani"}},
					{Field: "tags", Op: core.OpEq, Values: []string{"nlp"}},
				},
			},
		},
		{
			name:  "field names are case-insensitive",
			input: "x Author:Smith",
			want: core.QueryTree{
				Similarity: core.SimilarityClause{Text: "x"},
				Filters:    []core.Predicate{{Field: "author", Op: core.OpEq, Values: []string{"Smith"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input, schema)
			require.NoError(t, err)
			assert.Equal(t, tt.want.Similarity, got.Similarity)
			assert.Equal(t, tt.want.Filters, got.Filters)
		})
	}
}

func TestParse_Hints(t *testing.T) {
	got, err := Parse("x alpha:0.25 limit:7", schema)
	require.NoError(t, err)
	require.NotNil(t, got.Hints.Alpha)
	assert.Equal(t, 0.25, *got.Hints.Alpha)
	assert.Equal(t, 7, got.Hints.Limit)
	assert.Empty(t, got.Filters)
}

func TestParse_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		pos   int
	}{
		{name: "empty", input: "", pos: 0},
		{name: "filters only", input: "author:smith", pos: 12},
		{name: "dangling AND", input: "x AND", pos: 2},
		{name: "leading AND", input: "AND x", pos: 0},
		{name: "double AND", input: "x AND AND y", pos: 6},
		{name: "OR", input: "x OR y", pos: 2},
		{name: "NOT", input: "x NOT y", pos: 2},
		{name: "unbalanced close", input: "x)", pos: 1},
		{name: "unbalanced open", input: "(x", pos: 0},
		{name: "AND before close", input: "(x AND)", pos: 3},
		{name: "empty group", input: "x ()", pos: 2},
		{name: "unterminated quote", input: `x "open`, pos: 2},
		{name: "unterminated list", input: "x tags:in:[a,b", pos: 10},
		{name: "malformed list", input: "x tags:in:a,,b", pos: 2},
		{name: "list without in", input: "x tags:[a,b]", pos: 2},
		{name: "missing value", input: "x author:", pos: 2},
		{name: "missing field", input: "x :value", pos: 2},
		{name: "bad date", input: "x published_after:someday", pos: 2},
		{name: "alpha range", input: "x alpha:1.5", pos: 2},
		{name: "limit", input: "x limit:0", pos: 2},
		{name: "repeated directive", input: "similar_to:a similar_to:b", pos: 13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input, schema)
			var syntax *core.SyntaxError
			require.ErrorAs(t, err, &syntax)
			assert.ErrorIs(t, err, core.ErrSyntax)
			assert.Equal(t, tt.pos, syntax.Pos)
		})
	}
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse("x venue:neurips", schema)
	var unknown *core.UnknownFieldError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "venue", unknown.Field)

	_, err = Parse("x published_after:2020", testSchema{})
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "date", unknown.Field)
}

func TestParse_Deterministic(t *testing.T) {
	input := `"topic X" AND author:smith tags:in:[a,b] alpha:0.3`
	first, err := Parse(input, schema)
	require.NoError(t, err)
	for range 10 {
		again, err := Parse(input, schema)
		require.NoError(t, err)
		assert.Equal(t, first.String(), again.String())
		assert.Equal(t, first, again)
	}
}
