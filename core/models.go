package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for chunks and other content-addressed entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID derives the identifier of the chunk starting at offset start within a document.
func ChunkID(docID DocumentID, start int) ID {
	return IDFromContent("chunk:" + string(docID) + ":" + strconv.Itoa(start))
}

// DocumentID identifies a document. It is assigned at ingestion and never changes.
type DocumentID string

// Format tags the source format a document was normalized from.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatPDF      Format = "pdf"
	FormatRecord   Format = "record"
	FormatBibTeX   Format = "bibtex"
)

// Document is a normalized source document. It is immutable once ingestion completes.
type Document struct {
	ID         DocumentID
	Format     Format
	Text       string
	Metadata   map[string]any // Raw metadata as delivered by the format handler
	Chunks     []Chunk
	InsertedAt time.Time
}

// ChunkIDs returns the ids of the document's chunks in offset order.
func (d *Document) ChunkIDs() []ID {
	ids := make([]ID, len(d.Chunks))
	for i := range d.Chunks {
		ids[i] = d.Chunks[i].ID
	}
	return ids
}

// Chunk is a contiguous text span of a document and the unit of embedding and citation.
type Chunk struct {
	ID         ID
	DocumentID DocumentID
	Start      int // Byte offset into Document.Text (inclusive)
	End        int // Byte offset into Document.Text (exclusive)
	Text       string
	Vector     []float32 `json:",omitempty"`
}
