package storage

import (
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/skewballfox/papermill/core"
)

var (
	VectorEntryMUS   = vectorEntryMUS{}
	AliasRecordMUS   = aliasRecordMUS{}
	EventRecordMUS   = eventRecordMUS{}
	OutlierRecordMUS = outlierRecordMUS{}
)

func decode[T any](u mus.Serializer[T], bs []byte, n *int, err *error) (v T) {
	if *err != nil {
		return v
	}
	var m int
	v, m, *err = u.Unmarshal(bs[*n:])
	*n += m
	return v
}

type vectorEntryMUS struct{}

func (vectorEntryMUS) Marshal(v VectorEntry, bs []byte) (n int) {
	n = core.IDMUS.Marshal(v.ID, bs)
	n += core.DocumentIDMUS.Marshal(v.DocumentID, bs[n:])
	n += varint.Int.Marshal(v.Start, bs[n:])
	return n + core.Float32sMUS.Marshal(v.Vector, bs[n:])
}

func (vectorEntryMUS) Unmarshal(bs []byte) (v VectorEntry, n int, err error) {
	v.ID = decode[core.ID](core.IDMUS, bs, &n, &err)
	v.DocumentID = decode[core.DocumentID](core.DocumentIDMUS, bs, &n, &err)
	v.Start = decode[int](varint.Int, bs, &n, &err)
	v.Vector = decode[[]float32](core.Float32sMUS, bs, &n, &err)
	return v, n, err
}

func (vectorEntryMUS) Size(v VectorEntry) int {
	return core.IDMUS.Size(v.ID) + core.DocumentIDMUS.Size(v.DocumentID) +
		varint.Int.Size(v.Start) + core.Float32sMUS.Size(v.Vector)
}

type aliasRecordMUS struct{}

func (aliasRecordMUS) Marshal(v AliasRecord, bs []byte) (n int) {
	n = ord.String.Marshal(v.Key, bs)
	n += core.NodeIDMUS.Marshal(v.Node, bs[n:])
	return n + core.Float32sMUS.Marshal(v.Vector, bs[n:])
}

func (aliasRecordMUS) Unmarshal(bs []byte) (v AliasRecord, n int, err error) {
	v.Key = decode[string](ord.String, bs, &n, &err)
	v.Node = decode[core.NodeID](core.NodeIDMUS, bs, &n, &err)
	v.Vector = decode[[]float32](core.Float32sMUS, bs, &n, &err)
	return v, n, err
}

func (aliasRecordMUS) Size(v AliasRecord) int {
	return ord.String.Size(v.Key) + core.NodeIDMUS.Size(v.Node) + core.Float32sMUS.Size(v.Vector)
}

type eventRecordMUS struct{}

func (eventRecordMUS) Marshal(v EventRecord, bs []byte) (n int) {
	n = core.IDMUS.Marshal(v.ID, bs)
	n += core.SourceRefMUS.Marshal(v.Source, bs[n:])
	n += core.NodeIDMUS.Marshal(v.Subject, bs[n:])
	n += core.RelationTypeMUS.Marshal(v.Type, bs[n:])
	n += core.NodeIDMUS.Marshal(v.Object, bs[n:])
	return n + raw.Float64.Marshal(v.Confidence, bs[n:])
}

func (eventRecordMUS) Unmarshal(bs []byte) (v EventRecord, n int, err error) {
	v.ID = decode[core.ID](core.IDMUS, bs, &n, &err)
	v.Source = decode[core.SourceRef](core.SourceRefMUS, bs, &n, &err)
	v.Subject = decode[core.NodeID](core.NodeIDMUS, bs, &n, &err)
	v.Type = decode[core.RelationType](core.RelationTypeMUS, bs, &n, &err)
	v.Object = decode[core.NodeID](core.NodeIDMUS, bs, &n, &err)
	v.Confidence = decode[float64](raw.Float64, bs, &n, &err)
	return v, n, err
}

func (eventRecordMUS) Size(v EventRecord) int {
	return core.IDMUS.Size(v.ID) + core.SourceRefMUS.Size(v.Source) +
		core.NodeIDMUS.Size(v.Subject) + core.RelationTypeMUS.Size(v.Type) +
		core.NodeIDMUS.Size(v.Object) + raw.Float64.Size(v.Confidence)
}

type outlierRecordMUS struct{}

func (outlierRecordMUS) Marshal(v OutlierRecord, bs []byte) (n int) {
	n = ord.String.Marshal(v.Path, bs)
	n += core.IDMUS.Marshal(v.Fingerprint, bs[n:])
	n += core.StringsMUS.Marshal(v.Formats, bs[n:])
	n += ord.String.Marshal(v.Error, bs[n:])
	return n + varint.Int64.Marshal(unixNano(v.RecordedAt), bs[n:])
}

func (outlierRecordMUS) Unmarshal(bs []byte) (v OutlierRecord, n int, err error) {
	v.Path = decode[string](ord.String, bs, &n, &err)
	v.Fingerprint = decode[core.ID](core.IDMUS, bs, &n, &err)
	v.Formats = decode[[]string](core.StringsMUS, bs, &n, &err)
	v.Error = decode[string](ord.String, bs, &n, &err)
	v.RecordedAt = fromUnixNano(decode[int64](varint.Int64, bs, &n, &err))
	return v, n, err
}

func (outlierRecordMUS) Size(v OutlierRecord) int {
	return ord.String.Size(v.Path) + core.IDMUS.Size(v.Fingerprint) + core.StringsMUS.Size(v.Formats) +
		ord.String.Size(v.Error) + varint.Int64.Size(unixNano(v.RecordedAt))
}

// unixNano maps the zero time to 0 so it survives a round trip.
func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}
