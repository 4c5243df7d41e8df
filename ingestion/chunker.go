package ingestion

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/skewballfox/papermill/core"
)

// DefaultMaxRunes is the default upper bound on chunk length.
const DefaultMaxRunes = 1200

// Chunker splits document text into chunks. Paragraphs (separated by blank
// lines) are packed together up to MaxRunes; longer paragraphs are split at
// whitespace. Chunk offsets are byte offsets into the document text and each
// chunk's Text is exactly the slice they delimit.
type Chunker struct {
	MaxRunes int
}

// NewChunker creates a chunker. A non-positive maxRunes selects DefaultMaxRunes.
func NewChunker(maxRunes int) *Chunker {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxRunes
	}
	return &Chunker{MaxRunes: maxRunes}
}

// Split returns the chunks of doc in offset order.
func (c *Chunker) Split(doc *core.Document) []core.Chunk {
	text := doc.Text
	var spans [][2]int
	cur := [2]int{-1, -1}
	flush := func() {
		if cur[0] >= 0 {
			spans = append(spans, cur)
			cur = [2]int{-1, -1}
		}
	}

	for _, p := range paragraphs(text) {
		if utf8.RuneCountInString(text[p[0]:p[1]]) > c.MaxRunes {
			flush()
			spans = append(spans, splitLong(text, p[0], p[1], c.MaxRunes)...)
			continue
		}
		if cur[0] < 0 {
			cur = p
			continue
		}
		if utf8.RuneCountInString(text[cur[0]:p[1]]) <= c.MaxRunes {
			cur[1] = p[1]
			continue
		}
		flush()
		cur = p
	}
	flush()

	chunks := make([]core.Chunk, len(spans))
	for i, s := range spans {
		chunks[i] = core.Chunk{
			ID:         core.ChunkID(doc.ID, s[0]),
			DocumentID: doc.ID,
			Start:      s[0],
			End:        s[1],
			Text:       text[s[0]:s[1]],
		}
	}
	return chunks
}

// paragraphs returns the spans of runs of non-blank lines, trimmed of
// surrounding whitespace.
func paragraphs(text string) [][2]int {
	var out [][2]int
	start, end := -1, 0
	for pos := 0; pos < len(text); {
		lineEnd, next := len(text), len(text)
		if nl := strings.IndexByte(text[pos:], '\n'); nl >= 0 {
			lineEnd, next = pos+nl, pos+nl+1
		}
		line := text[pos:lineEnd]
		if strings.TrimSpace(line) == "" {
			if start >= 0 {
				out = append(out, [2]int{start, end})
				start = -1
			}
		} else {
			if start < 0 {
				start = pos + len(line) - len(strings.TrimLeftFunc(line, unicode.IsSpace))
			}
			end = pos + len(strings.TrimRightFunc(line, unicode.IsSpace))
		}
		pos = next
	}
	if start >= 0 {
		out = append(out, [2]int{start, end})
	}
	return out
}

// splitLong cuts text[start:end] into pieces of at most limit runes, preferring
// to cut at whitespace.
func splitLong(text string, start, end, limit int) [][2]int {
	var out [][2]int
	for start < end {
		for start < end {
			r, size := utf8.DecodeRuneInString(text[start:end])
			if !unicode.IsSpace(r) {
				break
			}
			start += size
		}
		if start >= end {
			break
		}

		cut, lastSpace := start, -1
		for n := 0; cut < end && n < limit; n++ {
			r, size := utf8.DecodeRuneInString(text[cut:end])
			if unicode.IsSpace(r) {
				lastSpace = cut
			}
			cut += size
		}
		if cut < end {
			if r, _ := utf8.DecodeRuneInString(text[cut:end]); !unicode.IsSpace(r) && lastSpace > start {
				cut = lastSpace
			}
		}

		pieceEnd := start + len(strings.TrimRightFunc(text[start:cut], unicode.IsSpace))
		out = append(out, [2]int{start, pieceEnd})
		start = cut
	}
	return out
}
