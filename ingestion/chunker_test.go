package ingestion

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/skewballfox/papermill/core"
	"github.com/stretchr/testify/assert"
)

func spans(chunks []core.Chunk) [][2]int {
	out := make([][2]int, len(chunks))
	for i, c := range chunks {
		out[i] = [2]int{c.Start, c.End}
	}
	return out
}

func texts(chunks []core.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func TestChunker_Split(t *testing.T) {
	tests := []struct {
		name     string
		maxRunes int
		text     string
		want     []string
		spans    [][2]int
	}{
		{
			name:     "packs paragraphs",
			maxRunes: 20,
			text:     "Para one.\n\nPara two.\n\n\nPara three.",
			want:     []string{"Para one.\n\nPara two.", "Para three."},
			spans:    [][2]int{{0, 20}, {23, 34}},
		},
		{
			name:     "long paragraph cut at whitespace",
			maxRunes: 9,
			text:     "aaaa bbbb cccc",
			want:     []string{"aaaa bbbb", "cccc"},
			spans:    [][2]int{{0, 9}, {10, 14}},
		},
		{
			name:     "cut backs off to previous space",
			maxRunes: 7,
			text:     "aaaa bbbb cccc",
			want:     []string{"aaaa", "bbbb", "cccc"},
			spans:    [][2]int{{0, 4}, {5, 9}, {10, 14}},
		},
		{
			name:     "word longer than limit",
			maxRunes: 4,
			text:     "abcdefghij",
			want:     []string{"abcd", "efgh", "ij"},
			spans:    [][2]int{{0, 4}, {4, 8}, {8, 10}},
		},
		{
			name:     "surrounding whitespace trimmed",
			maxRunes: 100,
			text:     "\n\n   indented line\n  \n",
			want:     []string{"indented line"},
			spans:    [][2]int{{5, 18}},
		},
		{
			name:     "blank text",
			maxRunes: 100,
			text:     " \n\n\t",
			want:     []string{},
			spans:    [][2]int{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := &core.Document{ID: "doc", Text: tt.text}
			chunks := NewChunker(tt.maxRunes).Split(doc)
			assert.Equal(t, tt.want, texts(chunks))
			assert.Equal(t, tt.spans, spans(chunks))
		})
	}
}

func TestChunker_Invariants(t *testing.T) {
	var b strings.Builder
	for i := range 40 {
		b.WriteString(strings.Repeat("héllo wörld ", 10+i%7))
		if i%3 == 0 {
			b.WriteString("\n\n")
		} else {
			b.WriteString("\n")
		}
	}
	doc := &core.Document{ID: "doc-x", Text: b.String()}
	chunks := NewChunker(150).Split(doc)
	assert.NotEmpty(t, chunks)

	prevEnd := 0
	for _, c := range chunks {
		assert.Equal(t, doc.Text[c.Start:c.End], c.Text)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 150)
		assert.GreaterOrEqual(t, c.Start, prevEnd)
		assert.Equal(t, core.ChunkID("doc-x", c.Start), c.ID)
		assert.Equal(t, core.DocumentID("doc-x"), c.DocumentID)
		prevEnd = c.End
	}
	doc.Chunks = chunks
	assert.NoError(t, core.ValidateDocument(doc))
}

func TestNewChunker_Default(t *testing.T) {
	assert.Equal(t, DefaultMaxRunes, NewChunker(0).MaxRunes)
}
