package storage

import (
	"testing"
	"time"

	"github.com/skewballfox/papermill/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"zero ID", core.ID(0)},
		{"small ID", core.ID(42)},
		{"large ID", core.ID(18446744073709551615)},
		{"content-based ID", core.IDFromContent("test content")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := UnmarshalID(MarshalID(tt.id))
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}

	_, err := UnmarshalID([]byte{1, 2})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalDocument(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	doc := &core.Document{
		ID:       "2401.00001",
		Format:   core.FormatMarkdown,
		Text:     "hello world",
		Metadata: map[string]any{"title": "Hello", "year": 2024.0},
		Chunks: []core.Chunk{
			{ID: core.ChunkID("2401.00001", 0), DocumentID: "2401.00001", Start: 0, End: 5, Text: "hello"},
		},
		InsertedAt: now,
	}

	data, err := MarshalDocument(doc)
	require.NoError(t, err)

	decoded, chunkIDs, err := UnmarshalDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, decoded.ID)
	assert.Equal(t, doc.Format, decoded.Format)
	assert.Equal(t, doc.Text, decoded.Text)
	assert.Equal(t, doc.Metadata, decoded.Metadata)
	assert.True(t, now.Equal(decoded.InsertedAt))
	assert.Equal(t, []core.ID{core.ChunkID("2401.00001", 0)}, chunkIDs)
	assert.Empty(t, decoded.Chunks)

	_, _, err = UnmarshalDocument(data[:len(data)/2])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalDocumentWithoutMetadata(t *testing.T) {
	doc := &core.Document{ID: "bare", Format: core.FormatText, Text: "x"}

	data, err := MarshalDocument(doc)
	require.NoError(t, err)
	decoded, chunkIDs, err := UnmarshalDocument(data)
	require.NoError(t, err)
	assert.Nil(t, decoded.Metadata)
	assert.True(t, decoded.InsertedAt.IsZero())
	assert.Empty(t, chunkIDs)
}

func TestMarshalChunkDropsVector(t *testing.T) {
	chunk := &core.Chunk{ID: 7, DocumentID: "d", Start: 3, End: 9, Text: "abcdef", Vector: []float32{1, 2}}

	decoded, err := UnmarshalChunk(MarshalChunk(chunk))
	require.NoError(t, err)

	assert.Nil(t, decoded.Vector)
	assert.Equal(t, chunk.Text, decoded.Text)
	assert.Equal(t, chunk.End, decoded.End)
	assert.Len(t, chunk.Vector, 2, "input must not be modified")
}

func TestVectorEntryEncoding(t *testing.T) {
	entry := &VectorEntry{ID: 99, DocumentID: "doc-ü", Start: 1200, Vector: []float32{0.5, -0.25, 1}}

	data := MarshalVectorEntry(entry)
	decoded, err := UnmarshalVectorEntry(data)
	require.NoError(t, err)
	assert.Equal(t, entry, decoded)

	for _, cut := range []int{0, 10, 22, len(data) - 1} {
		_, err := UnmarshalVectorEntry(data[:cut])
		assert.ErrorIs(t, err, ErrSerializationFailed, "cut at %d", cut)
	}
}

func TestGraphRecordEncoding(t *testing.T) {
	node := &core.ConceptNode{
		ID:         3,
		Label:      "Transformers",
		Key:        "transformer",
		Aliases:    []string{"transformer"},
		Provenance: []core.SourceRef{{DocumentID: "d", ChunkID: 5}},
		Confidence: 0.9,
		Events:     2,
		State:      core.NodeConfirmed,
	}
	data := MarshalNode(node)
	decodedNode, err := UnmarshalNode(data)
	require.NoError(t, err)
	assert.Equal(t, node, decodedNode)

	edge := &core.ConceptEdge{
		Key:        core.EdgeKey{Source: 3, Type: core.RelationExtends, Target: 4},
		Weight:     1.7,
		Provenance: []core.SourceRef{{DocumentID: "d", ChunkID: 5}},
		Events:     2,
	}
	data = MarshalEdge(edge)
	decodedEdge, err := UnmarshalEdge(data)
	require.NoError(t, err)
	assert.Equal(t, edge, decodedEdge)

	alias := &AliasRecord{Key: "bert", Node: 3, Vector: []float32{0.1}}
	data = MarshalAlias(alias)
	decodedAlias, err := UnmarshalAlias(data)
	require.NoError(t, err)
	assert.Equal(t, alias, decodedAlias)

	event := &EventRecord{ID: 9, Source: core.SourceRef{DocumentID: "d", ChunkID: 5}, Subject: 3, Type: core.RelationUses, Object: 4, Confidence: 0.5}
	data = MarshalEvent(event)
	decodedEvent, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, event, decodedEvent)
}

func TestSliceFieldsKeepNil(t *testing.T) {
	withNil := &core.ConceptEdge{Key: core.EdgeKey{Source: 1, Type: core.RelationUses, Target: 2}}
	decoded, err := UnmarshalEdge(MarshalEdge(withNil))
	require.NoError(t, err)
	assert.Nil(t, decoded.Provenance)

	empty := &core.ConceptEdge{Key: withNil.Key, Provenance: []core.SourceRef{}}
	decoded, err = UnmarshalEdge(MarshalEdge(empty))
	require.NoError(t, err)
	assert.NotNil(t, decoded.Provenance)
	assert.Empty(t, decoded.Provenance)
}

func TestSliceLengthBeyondData(t *testing.T) {
	// An alias whose vector claims 100 floats but carries none.
	data := MarshalAlias(&AliasRecord{Key: "k", Node: 1})
	data[len(data)-1] = 101
	_, err := UnmarshalAlias(data)
	assert.ErrorIs(t, err, ErrSerializationFailed)
	assert.ErrorIs(t, err, core.ErrTruncatedRecord)
}

func TestGraphChangeEmpty(t *testing.T) {
	var nilChange *GraphChange
	assert.True(t, nilChange.Empty())
	assert.True(t, (&GraphChange{}).Empty())
	assert.False(t, (&GraphChange{Events: []*EventRecord{{ID: 1}}}).Empty())
	assert.False(t, (&GraphChange{DeletedEvents: []core.ID{1}}).Empty())
}
