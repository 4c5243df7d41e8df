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


package storage

import (
	"encoding/json"
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/skewballfox/papermill/core"
)

// MarshalID serializes an ID to bytes. Keys do not use this encoding; they
// are built big endian so badger iterates them in id order.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	return id, wrap(err)
}

// documentRecord is the stored form of a document. Chunks are stored as
// separate records and referenced by id. Metadata values are dynamically
// typed and kept as a JSON blob inside the record.
type documentRecord struct {
	ID         core.DocumentID
	Format     core.Format
	Text       string
	Metadata   string
	ChunkIDs   []core.ID
	InsertedAt int64 // Unix nanoseconds, 0 for the zero time
}

var chunkIDsMUS = core.NewSliceMUS[core.ID](core.IDMUS)

func (r *documentRecord) size() int {
	return core.DocumentIDMUS.Size(r.ID) + ord.String.Size(string(r.Format)) + ord.String.Size(r.Text) +
		ord.String.Size(r.Metadata) + chunkIDsMUS.Size(r.ChunkIDs) + varint.Int64.Size(r.InsertedAt)
}

func (r *documentRecord) marshal(bs []byte) (n int) {
	n = core.DocumentIDMUS.Marshal(r.ID, bs)
	n += ord.String.Marshal(string(r.Format), bs[n:])
	n += ord.String.Marshal(r.Text, bs[n:])
	n += ord.String.Marshal(r.Metadata, bs[n:])
	n += chunkIDsMUS.Marshal(r.ChunkIDs, bs[n:])
	return n + varint.Int64.Marshal(r.InsertedAt, bs[n:])
}

func (r *documentRecord) unmarshal(bs []byte) (err error) {
	var n int
	r.ID = decode[core.DocumentID](core.DocumentIDMUS, bs, &n, &err)
	r.Format = core.Format(decode[string](ord.String, bs, &n, &err))
	r.Text = decode[string](ord.String, bs, &n, &err)
	r.Metadata = decode[string](ord.String, bs, &n, &err)
	r.ChunkIDs = decode[[]core.ID](chunkIDsMUS, bs, &n, &err)
	r.InsertedAt = decode[int64](varint.Int64, bs, &n, &err)
	return err
}

// MarshalDocument serializes a Document without its chunks.
func MarshalDocument(doc *core.Document) ([]byte, error) {
	rec := documentRecord{
		ID:       doc.ID,
		Format:   doc.Format,
		Text:     doc.Text,
		ChunkIDs: doc.ChunkIDs(),
	}
	if doc.Metadata != nil {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
		}
		rec.Metadata = string(meta)
	}
	rec.InsertedAt = unixNano(doc.InsertedAt)
	buf := make([]byte, rec.size())
	rec.marshal(buf)
	return buf, nil
}

// UnmarshalDocument deserializes a Document. The returned chunk ids must be
// resolved by the caller.
func UnmarshalDocument(data []byte) (*core.Document, []core.ID, error) {
	var rec documentRecord
	if err := rec.unmarshal(data); err != nil {
		return nil, nil, wrap(err)
	}
	doc := &core.Document{
		ID:         rec.ID,
		Format:     rec.Format,
		Text:       rec.Text,
		InsertedAt: fromUnixNano(rec.InsertedAt),
	}
	if rec.Metadata != "" {
		if err := json.Unmarshal([]byte(rec.Metadata), &doc.Metadata); err != nil {
			return nil, nil, wrap(err)
		}
	}
	return doc, rec.ChunkIDs, nil
}

// MarshalChunk serializes a Chunk. The vector is dropped.
func MarshalChunk(chunk *core.Chunk) []byte {
	buf := make([]byte, core.ChunkMUS.Size(*chunk))
	core.ChunkMUS.Marshal(*chunk, buf)
	return buf
}

// UnmarshalChunk deserializes a Chunk.
func UnmarshalChunk(data []byte) (*core.Chunk, error) {
	chunk, _, err := core.ChunkMUS.Unmarshal(data)
	if err != nil {
		return nil, wrap(err)
	}
	return &chunk, nil
}

// MarshalVectorEntry serializes a VectorEntry.
func MarshalVectorEntry(e *VectorEntry) []byte {
	buf := make([]byte, VectorEntryMUS.Size(*e))
	VectorEntryMUS.Marshal(*e, buf)
	return buf
}

// UnmarshalVectorEntry deserializes a VectorEntry.
func UnmarshalVectorEntry(data []byte) (*VectorEntry, error) {
	e, _, err := VectorEntryMUS.Unmarshal(data)
	if err != nil {
		return nil, wrap(err)
	}
	return &e, nil
}

// MarshalNode serializes a ConceptNode.
func MarshalNode(node *core.ConceptNode) []byte {
	buf := make([]byte, core.ConceptNodeMUS.Size(*node))
	core.ConceptNodeMUS.Marshal(*node, buf)
	return buf
}

// UnmarshalNode deserializes a ConceptNode.
func UnmarshalNode(data []byte) (*core.ConceptNode, error) {
	node, _, err := core.ConceptNodeMUS.Unmarshal(data)
	if err != nil {
		return nil, wrap(err)
	}
	return &node, nil
}

// MarshalEdge serializes a ConceptEdge.
func MarshalEdge(edge *core.ConceptEdge) []byte {
	buf := make([]byte, core.ConceptEdgeMUS.Size(*edge))
	core.ConceptEdgeMUS.Marshal(*edge, buf)
	return buf
}

// UnmarshalEdge deserializes a ConceptEdge.
func UnmarshalEdge(data []byte) (*core.ConceptEdge, error) {
	edge, _, err := core.ConceptEdgeMUS.Unmarshal(data)
	if err != nil {
		return nil, wrap(err)
	}
	return &edge, nil
}

// MarshalAlias serializes an AliasRecord.
func MarshalAlias(alias *AliasRecord) []byte {
	buf := make([]byte, AliasRecordMUS.Size(*alias))
	AliasRecordMUS.Marshal(*alias, buf)
	return buf
}

// UnmarshalAlias deserializes an AliasRecord.
func UnmarshalAlias(data []byte) (*AliasRecord, error) {
	alias, _, err := AliasRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, wrap(err)
	}
	return &alias, nil
}

// MarshalEvent serializes an EventRecord.
func MarshalEvent(event *EventRecord) []byte {
	buf := make([]byte, EventRecordMUS.Size(*event))
	EventRecordMUS.Marshal(*event, buf)
	return buf
}

// UnmarshalEvent deserializes an EventRecord.
func UnmarshalEvent(data []byte) (*EventRecord, error) {
	event, _, err := EventRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, wrap(err)
	}
	return &event, nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSerializationFailed, err)
}

// MarshalOutlier serializes an OutlierRecord.
func MarshalOutlier(rec *OutlierRecord) []byte {
	buf := make([]byte, OutlierRecordMUS.Size(*rec))
	OutlierRecordMUS.Marshal(*rec, buf)
	return buf
}

// UnmarshalOutlier deserializes an OutlierRecord.
func UnmarshalOutlier(data []byte) (*OutlierRecord, error) {
	rec, _, err := OutlierRecordMUS.Unmarshal(data)
	if err != nil {
		return nil, wrap(err)
	}
	return &rec, nil
}
