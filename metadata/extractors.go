package metadata

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/skewballfox/papermill/core"
)

// Extractor converts a raw metadata value into a typed value.
type Extractor interface {
	Extract(raw any) (core.Value, error)
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc func(raw any) (core.Value, error)

// Extract calls f(raw).
func (f ExtractorFunc) Extract(raw any) (core.Value, error) { return f(raw) }

// DefaultExtractors returns the built-in extractor for every field type.
func DefaultExtractors() map[core.FieldType]Extractor {
	return map[core.FieldType]Extractor{
		core.FieldString: ExtractorFunc(extractString),
		core.FieldNumber: ExtractorFunc(extractNumber),
		core.FieldDate:   ExtractorFunc(extractDate),
		core.FieldList:   ExtractorFunc(extractList),
		core.FieldBool:   ExtractorFunc(extractBool),
		core.FieldISBN:   ExtractorFunc(extractISBN),
	}
}

func invalid(raw any, want string) error {
	return fmt.Errorf("%w: %v (%T) is not a %s", ErrInvalidValue, raw, raw, want)
}

func extractString(raw any) (core.Value, error) {
	switch v := raw.(type) {
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return core.Value{}, invalid(raw, "string")
		}
		return core.StringValue(s), nil
	case []string:
		return extractString(strings.Join(v, ", "))
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, fmt.Sprint(item))
		}
		return extractString(strings.Join(parts, ", "))
	case fmt.Stringer:
		return extractString(v.String())
	case float64, int, int64, json.Number, bool:
		return core.StringValue(fmt.Sprint(v)), nil
	}
	return core.Value{}, invalid(raw, "string")
}

func extractNumber(raw any) (core.Value, error) {
	switch v := raw.(type) {
	case float64:
		return core.NumberValue(v), nil
	case float32:
		return core.NumberValue(float64(v)), nil
	case int:
		return core.NumberValue(float64(v)), nil
	case int64:
		return core.NumberValue(float64(v)), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return core.Value{}, invalid(raw, "number")
		}
		return core.NumberValue(f), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return core.Value{}, invalid(raw, "number")
		}
		return core.NumberValue(f), nil
	}
	return core.Value{}, invalid(raw, "number")
}

func extractDate(raw any) (core.Value, error) {
	switch v := raw.(type) {
	case time.Time:
		return core.TimeValue(v.UTC()), nil
	case string:
		t, err := core.ParseDate(v)
		if err != nil {
			return core.Value{}, fmt.Errorf("%w: %w", ErrInvalidValue, err)
		}
		return core.TimeValue(t), nil
	case float64, int, int64:
		// A bare number is a year.
		n, _ := extractNumber(v)
		year := int(n.Num)
		if year < 1 || year > 9999 || float64(year) != n.Num {
			return core.Value{}, invalid(raw, "year")
		}
		return core.TimeValue(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)), nil
	}
	return core.Value{}, invalid(raw, "date")
}

// splitKeywords splits on the separators keyword fields use in practice.
func splitKeywords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ',' || r == '/'
	})
}

func extractList(raw any) (core.Value, error) {
	var items []string
	switch v := raw.(type) {
	case string:
		items = splitKeywords(v)
	case []string:
		items = v
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				s = fmt.Sprint(item)
			}
			items = append(items, s)
		}
	default:
		return core.Value{}, invalid(raw, "list")
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		item = normalizeTerm(item)
		if item != "" {
			out = append(out, item)
		}
	}
	slices.Sort(out)
	out = slices.Compact(out)
	if len(out) == 0 {
		return core.Value{}, invalid(raw, "list")
	}
	return core.ListValue(out), nil
}

func extractBool(raw any) (core.Value, error) {
	switch v := raw.(type) {
	case bool:
		return core.BoolValue(v), nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return core.Value{}, invalid(raw, "bool")
		}
		return core.BoolValue(b), nil
	}
	return core.Value{}, invalid(raw, "bool")
}

func extractISBN(raw any) (core.Value, error) {
	s, ok := raw.(string)
	if !ok {
		if n, isNum := raw.(float64); isNum {
			s = strconv.FormatFloat(n, 'f', 0, 64)
		} else {
			return core.Value{}, invalid(raw, "isbn")
		}
	}
	isbn, ok := NormalizeISBN(s)
	if !ok {
		return core.Value{}, invalid(raw, "isbn")
	}
	return core.StringValue(isbn), nil
}

// NormalizeISBN strips hyphens and spaces and validates the ISBN-10 or
// ISBN-13 check digit. The returned string is upper case.
func NormalizeISBN(s string) (string, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "ISBN")
	s = strings.TrimPrefix(s, ":")
	s = strings.Map(func(r rune) rune {
		if r == '-' || r == ' ' {
			return -1
		}
		return r
	}, s)

	switch len(s) {
	case 10:
		sum := 0
		for i, r := range s {
			var d int
			switch {
			case r >= '0' && r <= '9':
				d = int(r - '0')
			case r == 'X' && i == 9:
				d = 10
			default:
				return "", false
			}
			sum += (10 - i) * d
		}
		return s, sum%11 == 0
	case 13:
		sum := 0
		for i, r := range s {
			if r < '0' || r > '9' {
				return "", false
			}
			d := int(r - '0')
			if i%2 == 1 {
				d *= 3
			}
			sum += d
		}
		return s, sum%10 == 0
	}
	return "", false
}

func normalizeTerm(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
