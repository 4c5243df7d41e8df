package core

import (
	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// Serializers for the records kept in storage. Fields are written in
// declaration order; adding a field changes the format.
var (
	IDMUS           = idMUS{}
	NodeIDMUS       = nodeIDMUS{}
	DocumentIDMUS   = stringMUS[DocumentID]{}
	RelationTypeMUS = stringMUS[RelationType]{}
	SourceRefMUS    = sourceRefMUS{}
	EdgeKeyMUS      = edgeKeyMUS{}
	ChunkMUS        = chunkMUS{}
	ConceptNodeMUS  = conceptNodeMUS{}
	ConceptEdgeMUS  = conceptEdgeMUS{}
	StringsMUS      = NewSliceMUS[string](ord.String)
	SourceRefsMUS   = NewSliceMUS[SourceRef](SourceRefMUS)
	Float32sMUS     = NewSliceMUS[float32](raw.Float32)
)

// idMUS writes ids as 8 raw bytes; content hashes gain nothing from varints.
type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) int { return raw.Uint64.Marshal(uint64(v), bs) }

func (idMUS) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := raw.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idMUS) Size(v ID) int              { return raw.Uint64.Size(uint64(v)) }
func (idMUS) Skip(bs []byte) (int, error) { return raw.Uint64.Skip(bs) }

// nodeIDMUS uses varints: node ids are small sequential numbers.
type nodeIDMUS struct{}

func (nodeIDMUS) Marshal(v NodeID, bs []byte) int { return varint.Uint64.Marshal(uint64(v), bs) }

func (nodeIDMUS) Unmarshal(bs []byte) (NodeID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return NodeID(v), n, err
}

func (nodeIDMUS) Size(v NodeID) int           { return varint.Uint64.Size(uint64(v)) }
func (nodeIDMUS) Skip(bs []byte) (int, error) { return varint.Uint64.Skip(bs) }

type stringMUS[T ~string] struct{}

func (stringMUS[T]) Marshal(v T, bs []byte) int { return ord.String.Marshal(string(v), bs) }

func (stringMUS[T]) Unmarshal(bs []byte) (T, int, error) {
	v, n, err := ord.String.Unmarshal(bs)
	return T(v), n, err
}

func (stringMUS[T]) Size(v T) int                { return ord.String.Size(string(v)) }
func (stringMUS[T]) Skip(bs []byte) (int, error) { return ord.String.Skip(bs) }

// SliceMUS encodes a slice as a varint of len+1 followed by its elements.
// A zero prefix is a nil slice, so nil and empty slices both round-trip.
type SliceMUS[T any] struct {
	elem mus.Serializer[T]
}

// NewSliceMUS returns a slice serializer built on elem.
func NewSliceMUS[T any](elem mus.Serializer[T]) SliceMUS[T] {
	return SliceMUS[T]{elem: elem}
}

func (s SliceMUS[T]) Marshal(v []T, bs []byte) (n int) {
	if v == nil {
		return varint.Uint64.Marshal(0, bs)
	}
	n = varint.Uint64.Marshal(uint64(len(v))+1, bs)
	for _, e := range v {
		n += s.elem.Marshal(e, bs[n:])
	}
	return n
}

func (s SliceMUS[T]) Unmarshal(bs []byte) (v []T, n int, err error) {
	length, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil || length == 0 {
		return nil, n, err
	}
	length--
	// Every element takes at least one byte.
	if length > uint64(len(bs)-n) {
		return nil, n, ErrTruncatedRecord
	}
	v = make([]T, length)
	for i := range v {
		var m int
		v[i], m, err = s.elem.Unmarshal(bs[n:])
		n += m
		if err != nil {
			return nil, n, err
		}
	}
	return v, n, nil
}

func (s SliceMUS[T]) Size(v []T) (size int) {
	if v == nil {
		return varint.Uint64.Size(0)
	}
	size = varint.Uint64.Size(uint64(len(v)) + 1)
	for _, e := range v {
		size += s.elem.Size(e)
	}
	return size
}

func (s SliceMUS[T]) Skip(bs []byte) (n int, err error) {
	length, n, err := varint.Uint64.Unmarshal(bs)
	if err != nil || length == 0 {
		return n, err
	}
	for range length - 1 {
		var m int
		m, err = s.elem.Skip(bs[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// decode unmarshals the next field at *n unless an earlier field failed.
func decode[T any](u mus.Serializer[T], bs []byte, n *int, err *error) (v T) {
	if *err != nil {
		return v
	}
	var m int
	v, m, *err = u.Unmarshal(bs[*n:])
	*n += m
	return v
}

// skipAll skips fields in order.
func skipAll(bs []byte, fields ...interface {
	Skip(bs []byte) (n int, err error)
}) (n int, err error) {
	for _, f := range fields {
		var m int
		m, err = f.Skip(bs[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

type sourceRefMUS struct{}

func (sourceRefMUS) Marshal(v SourceRef, bs []byte) (n int) {
	n = DocumentIDMUS.Marshal(v.DocumentID, bs)
	return n + IDMUS.Marshal(v.ChunkID, bs[n:])
}

func (sourceRefMUS) Unmarshal(bs []byte) (v SourceRef, n int, err error) {
	v.DocumentID = decode[DocumentID](DocumentIDMUS, bs, &n, &err)
	v.ChunkID = decode[ID](IDMUS, bs, &n, &err)
	return v, n, err
}

func (sourceRefMUS) Size(v SourceRef) int {
	return DocumentIDMUS.Size(v.DocumentID) + IDMUS.Size(v.ChunkID)
}

func (sourceRefMUS) Skip(bs []byte) (int, error) {
	return skipAll(bs, DocumentIDMUS, IDMUS)
}

type edgeKeyMUS struct{}

func (edgeKeyMUS) Marshal(v EdgeKey, bs []byte) (n int) {
	n = NodeIDMUS.Marshal(v.Source, bs)
	n += RelationTypeMUS.Marshal(v.Type, bs[n:])
	return n + NodeIDMUS.Marshal(v.Target, bs[n:])
}

func (edgeKeyMUS) Unmarshal(bs []byte) (v EdgeKey, n int, err error) {
	v.Source = decode[NodeID](NodeIDMUS, bs, &n, &err)
	v.Type = decode[RelationType](RelationTypeMUS, bs, &n, &err)
	v.Target = decode[NodeID](NodeIDMUS, bs, &n, &err)
	return v, n, err
}

func (edgeKeyMUS) Size(v EdgeKey) int {
	return NodeIDMUS.Size(v.Source) + RelationTypeMUS.Size(v.Type) + NodeIDMUS.Size(v.Target)
}

func (edgeKeyMUS) Skip(bs []byte) (int, error) {
	return skipAll(bs, NodeIDMUS, RelationTypeMUS, NodeIDMUS)
}

// chunkMUS leaves out Chunk.Vector; vectors live in the vector store.
type chunkMUS struct{}

func (chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = IDMUS.Marshal(v.ID, bs)
	n += DocumentIDMUS.Marshal(v.DocumentID, bs[n:])
	n += varint.Int.Marshal(v.Start, bs[n:])
	n += varint.Int.Marshal(v.End, bs[n:])
	return n + ord.String.Marshal(v.Text, bs[n:])
}

func (chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	v.ID = decode[ID](IDMUS, bs, &n, &err)
	v.DocumentID = decode[DocumentID](DocumentIDMUS, bs, &n, &err)
	v.Start = decode[int](varint.Int, bs, &n, &err)
	v.End = decode[int](varint.Int, bs, &n, &err)
	v.Text = decode[string](ord.String, bs, &n, &err)
	return v, n, err
}

func (chunkMUS) Size(v Chunk) int {
	return IDMUS.Size(v.ID) + DocumentIDMUS.Size(v.DocumentID) +
		varint.Int.Size(v.Start) + varint.Int.Size(v.End) + ord.String.Size(v.Text)
}

func (chunkMUS) Skip(bs []byte) (int, error) {
	return skipAll(bs, IDMUS, DocumentIDMUS, varint.Int, varint.Int, ord.String)
}

type conceptNodeMUS struct{}

func (conceptNodeMUS) Marshal(v ConceptNode, bs []byte) (n int) {
	n = NodeIDMUS.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.Label, bs[n:])
	n += ord.String.Marshal(v.Key, bs[n:])
	n += StringsMUS.Marshal(v.Aliases, bs[n:])
	n += SourceRefsMUS.Marshal(v.Provenance, bs[n:])
	n += raw.Float64.Marshal(v.Confidence, bs[n:])
	n += varint.Int.Marshal(v.Events, bs[n:])
	n += varint.Int.Marshal(int(v.State), bs[n:])
	return n + NodeIDMUS.Marshal(v.MergedInto, bs[n:])
}

func (conceptNodeMUS) Unmarshal(bs []byte) (v ConceptNode, n int, err error) {
	v.ID = decode[NodeID](NodeIDMUS, bs, &n, &err)
	v.Label = decode[string](ord.String, bs, &n, &err)
	v.Key = decode[string](ord.String, bs, &n, &err)
	v.Aliases = decode[[]string](StringsMUS, bs, &n, &err)
	v.Provenance = decode[[]SourceRef](SourceRefsMUS, bs, &n, &err)
	v.Confidence = decode[float64](raw.Float64, bs, &n, &err)
	v.Events = decode[int](varint.Int, bs, &n, &err)
	v.State = NodeState(decode[int](varint.Int, bs, &n, &err))
	v.MergedInto = decode[NodeID](NodeIDMUS, bs, &n, &err)
	return v, n, err
}

func (conceptNodeMUS) Size(v ConceptNode) int {
	return NodeIDMUS.Size(v.ID) + ord.String.Size(v.Label) + ord.String.Size(v.Key) +
		StringsMUS.Size(v.Aliases) + SourceRefsMUS.Size(v.Provenance) +
		raw.Float64.Size(v.Confidence) + varint.Int.Size(v.Events) +
		varint.Int.Size(int(v.State)) + NodeIDMUS.Size(v.MergedInto)
}

func (conceptNodeMUS) Skip(bs []byte) (int, error) {
	return skipAll(bs, NodeIDMUS, ord.String, ord.String, StringsMUS, SourceRefsMUS,
		raw.Float64, varint.Int, varint.Int, NodeIDMUS)
}

type conceptEdgeMUS struct{}

func (conceptEdgeMUS) Marshal(v ConceptEdge, bs []byte) (n int) {
	n = EdgeKeyMUS.Marshal(v.Key, bs)
	n += raw.Float64.Marshal(v.Weight, bs[n:])
	n += SourceRefsMUS.Marshal(v.Provenance, bs[n:])
	return n + varint.Int.Marshal(v.Events, bs[n:])
}

func (conceptEdgeMUS) Unmarshal(bs []byte) (v ConceptEdge, n int, err error) {
	v.Key = decode[EdgeKey](EdgeKeyMUS, bs, &n, &err)
	v.Weight = decode[float64](raw.Float64, bs, &n, &err)
	v.Provenance = decode[[]SourceRef](SourceRefsMUS, bs, &n, &err)
	v.Events = decode[int](varint.Int, bs, &n, &err)
	return v, n, err
}

func (conceptEdgeMUS) Size(v ConceptEdge) int {
	return EdgeKeyMUS.Size(v.Key) + raw.Float64.Size(v.Weight) +
		SourceRefsMUS.Size(v.Provenance) + varint.Int.Size(v.Events)
}

func (conceptEdgeMUS) Skip(bs []byte) (int, error) {
	return skipAll(bs, EdgeKeyMUS, raw.Float64, SourceRefsMUS, varint.Int)
}
