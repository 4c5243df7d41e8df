package core

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FieldType is the declared type of a metadata field.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldDate   FieldType = "date"
	FieldList   FieldType = "list"
	FieldBool   FieldType = "bool"
	FieldISBN   FieldType = "isbn"
)

// ValueKind identifies which member of a Value is populated.
type ValueKind int

const (
	KindString ValueKind = iota + 1
	KindNumber
	KindTime
	KindList
	KindBool
)

// Value is a typed metadata value produced by a field extractor.
type Value struct {
	Kind ValueKind
	Str  string
	Num  float64
	Time time.Time
	List []string
	Bool bool
}

func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func TimeValue(t time.Time) Value { return Value{Kind: KindTime, Time: t} }
func ListValue(items []string) Value { return Value{Kind: KindList, List: items} }
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Terms returns the textual content of the value, used for keyword matching.
func (v Value) Terms() []string {
	switch v.Kind {
	case KindString:
		return []string{v.Str}
	case KindList:
		return v.List
	default:
		return nil
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindTime:
		return v.Time.Format(time.RFC3339)
	case KindList:
		return "[" + strings.Join(v.List, ",") + "]"
	case KindBool:
		return strconv.FormatBool(v.Bool)
	default:
		return ""
	}
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

// ParseDate parses a date in one of the accepted layouts. Dates without a zone are UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
