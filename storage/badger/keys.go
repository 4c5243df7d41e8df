package badger

import (
	"encoding/binary"

	"github.com/skewballfox/papermill/core"
)

const (
	documentPrefix  = "doc:"
	chunkPrefix     = "chunk:"
	tombstonePrefix = "tomb:"
	vectorPrefix    = "vec:"
	nodePrefix      = "gnode:"
	edgePrefix      = "gedge:"
	aliasPrefix     = "galias:"
	eventPrefix     = "gevent:"
	outlierPrefix   = "outlier:"
)

func makeDocumentKey(id core.DocumentID) []byte {
	return append([]byte(documentPrefix), id...)
}

func makeTombstoneKey(id core.DocumentID) []byte {
	return append([]byte(tombstonePrefix), id...)
}

// makeIDKey builds prefix + 8 big-endian id bytes so keys sort by id.
func makeIDKey(prefix string, id uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], id)
	return buf
}

func makeChunkKey(id core.ID) []byte {
	return makeIDKey(chunkPrefix, uint64(id))
}

func makeVectorKey(id core.ID) []byte {
	return makeIDKey(vectorPrefix, uint64(id))
}

func makeNodeKey(id core.NodeID) []byte {
	return makeIDKey(nodePrefix, uint64(id))
}

func makeEventKey(fingerprint core.ID) []byte {
	return makeIDKey(eventPrefix, uint64(fingerprint))
}

// makeEdgeKey orders edges by source, then target, then relation type.
func makeEdgeKey(key core.EdgeKey) []byte {
	buf := make([]byte, len(edgePrefix)+16+len(key.Type))
	offset := copy(buf, edgePrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(key.Source))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(key.Target))
	offset += 8
	copy(buf[offset:], key.Type)
	return buf
}

func makeAliasKey(alias string) []byte {
	return append([]byte(aliasPrefix), alias...)
}

func makeOutlierKey(path string) []byte {
	return append([]byte(outlierPrefix), path...)
}
