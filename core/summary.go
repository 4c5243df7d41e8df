package core

import (
	"strconv"
	"strings"
)

// Level is a summarization level.
type Level int

const (
	LevelChunk Level = iota + 1
	LevelDocument
	LevelCollection
)

func (l Level) String() string {
	switch l {
	case LevelChunk:
		return "chunk"
	case LevelDocument:
		return "document"
	case LevelCollection:
		return "collection"
	default:
		return "unknown"
	}
}

// ParseLevel parses a level name.
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "chunk":
		return LevelChunk, true
	case "document", "doc":
		return LevelDocument, true
	case "collection":
		return LevelCollection, true
	}
	return 0, false
}

// Citation references a chunk, or a whole document when ChunkID is zero.
type Citation struct {
	DocumentID DocumentID
	ChunkID    ID
}

// Key is the identifier handed to the text-generation collaborator for this citation.
func (c Citation) Key() string {
	if c.ChunkID != 0 {
		return "chunk:" + strconv.FormatUint(uint64(c.ChunkID), 10)
	}
	return "doc:" + string(c.DocumentID)
}

// SummarySegment is one generated passage and the citations grounding it.
type SummarySegment struct {
	Text      string
	Citations []Citation
}

// SummaryNode is one node of a summary tree. It is a snapshot: the chunks and
// documents it cites remain the source of truth.
type SummaryNode struct {
	Level     Level
	Key       string // Chunk citation key, document id or "collection"
	Text      string
	Segments  []SummarySegment
	Citations []Citation // Union of segment citations in first-cited order
	Children  []*SummaryNode
}

// SummaryTree holds the summary nodes at the requested level.
type SummaryTree struct {
	Level Level
	Roots []*SummaryNode
}
