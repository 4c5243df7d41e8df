package metadata

import (
	"fmt"
	"slices"
	"strings"

	"github.com/skewballfox/papermill/core"
)

// Matcher is a compiled, typed conjunction of predicates.
// A zero-predicate Matcher matches everything.
type Matcher struct {
	preds []compiledPredicate
}

type compiledPredicate struct {
	field  string
	op     core.Operator
	values []core.Value
}

// Len returns the number of predicates.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.preds)
}

// Match reports whether attrs satisfy every predicate. A missing attribute
// never matches.
func (m *Matcher) Match(attrs map[string]core.Value) bool {
	if m == nil {
		return true
	}
	for _, p := range m.preds {
		attr, ok := attrs[p.field]
		if !ok || !p.match(attr) {
			return false
		}
	}
	return true
}

func (p *compiledPredicate) match(attr core.Value) bool {
	if p.op == core.OpIn {
		return slices.ContainsFunc(p.values, func(v core.Value) bool {
			return compare(attr, core.OpEq, v)
		})
	}
	return compare(attr, p.op, p.values[0])
}

// compile turns predicates into a Matcher using the schema's field types.
func compile(schema *Schema, preds []core.Predicate) (*Matcher, error) {
	m := &Matcher{preds: make([]compiledPredicate, 0, len(preds))}
	for _, pred := range preds {
		field := NormalizeFieldName(pred.Field)
		ft, ok := schema.FieldType(field)
		if !ok {
			return nil, &core.UnknownFieldError{Field: pred.Field}
		}
		if len(pred.Values) == 0 || (pred.Op != core.OpIn && len(pred.Values) != 1) {
			return nil, fmt.Errorf("%w: %s expects %s", ErrInvalidValue, pred, arity(pred.Op))
		}

		cp := compiledPredicate{field: field, op: pred.Op, values: make([]core.Value, 0, len(pred.Values))}
		for _, raw := range pred.Values {
			v, err := queryValue(schema, field, ft, raw)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", pred, err)
			}
			cp.values = append(cp.values, v)
		}
		m.preds = append(m.preds, cp)
	}
	return m, nil
}

func arity(op core.Operator) string {
	if op == core.OpIn {
		return "at least one value"
	}
	return "exactly one value"
}

// queryValue parses a predicate operand. List fields compare element-wise,
// so their operand is a single normalized term rather than a list.
func queryValue(schema *Schema, field string, ft core.FieldType, raw string) (core.Value, error) {
	if ft == core.FieldList {
		term := normalizeTerm(raw)
		if term == "" {
			return core.Value{}, fmt.Errorf("%w: empty term", ErrInvalidValue)
		}
		return core.StringValue(term), nil
	}
	v, err := schema.Extract(field, raw)
	if err != nil {
		return core.Value{}, err
	}
	return v, nil
}

// compare applies op with attr on the left and q on the right.
func compare(attr core.Value, op core.Operator, q core.Value) bool {
	switch attr.Kind {
	case core.KindList:
		for _, item := range attr.List {
			if compare(core.StringValue(item), op, q) {
				return true
			}
		}
		return false
	case core.KindString:
		if q.Kind != core.KindString {
			return false
		}
		if op == core.OpEq {
			return strings.EqualFold(attr.Str, q.Str)
		}
		return ordered(strings.Compare(strings.ToLower(attr.Str), strings.ToLower(q.Str)), op)
	case core.KindNumber:
		if q.Kind != core.KindNumber {
			return false
		}
		switch {
		case attr.Num < q.Num:
			return ordered(-1, op)
		case attr.Num > q.Num:
			return ordered(1, op)
		}
		return ordered(0, op)
	case core.KindTime:
		if q.Kind != core.KindTime {
			return false
		}
		return ordered(attr.Time.Compare(q.Time), op)
	case core.KindBool:
		return op == core.OpEq && q.Kind == core.KindBool && attr.Bool == q.Bool
	}
	return false
}

// ordered maps a three-way comparison result onto op.
func ordered(cmp int, op core.Operator) bool {
	switch op {
	case core.OpEq:
		return cmp == 0
	case core.OpGt:
		return cmp > 0
	case core.OpLt:
		return cmp < 0
	case core.OpGte:
		return cmp >= 0
	case core.OpLte:
		return cmp <= 0
	}
	return false
}
