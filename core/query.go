package core

import (
	"strconv"
	"strings"
)

// Operator is a filter comparison operator.
type Operator string

const (
	OpEq  Operator = "eq"
	OpGt  Operator = "gt"
	OpLt  Operator = "lt"
	OpGte Operator = "gte"
	OpLte Operator = "lte"
	OpIn  Operator = "in"
)

// ParseOperator returns the operator named by s.
func ParseOperator(s string) (Operator, bool) {
	switch op := Operator(strings.ToLower(s)); op {
	case OpEq, OpGt, OpLt, OpGte, OpLte, OpIn:
		return op, true
	}
	return "", false
}

// Predicate is a single filter clause. Values hold the raw operand text; the
// metadata index converts them to typed values for the field.
type Predicate struct {
	Field  string
	Op     Operator
	Values []string
}

func (p Predicate) String() string {
	return p.Field + ":" + string(p.Op) + ":" + strings.Join(p.Values, ",")
}

// SimilarityClause is the part of a query resolved to a query vector.
// When SeedID is set the stored vectors of that document seed the search and
// Text only contributes to keyword scoring.
type SimilarityClause struct {
	Text   string
	SeedID DocumentID
}

// RankingHints carry optional per-query overrides of engine settings.
type RankingHints struct {
	Alpha *float64
	Limit int
}

// QueryTree is the parsed form of a query: one similarity clause and
// zero or more filters joined with AND semantics.
type QueryTree struct {
	Similarity SimilarityClause
	Filters    []Predicate
	Hints      RankingHints
}

// String renders the tree in a canonical form. Two trees are structurally
// identical exactly when their canonical forms are equal.
func (q *QueryTree) String() string {
	var b strings.Builder
	b.WriteString("text=")
	b.WriteString(strconv.Quote(q.Similarity.Text))
	if q.Similarity.SeedID != "" {
		b.WriteString(" seed=")
		b.WriteString(string(q.Similarity.SeedID))
	}
	for _, f := range q.Filters {
		b.WriteString(" AND ")
		b.WriteString(f.String())
	}
	if q.Hints.Alpha != nil {
		b.WriteString(" alpha=")
		b.WriteString(strconv.FormatFloat(*q.Hints.Alpha, 'g', -1, 64))
	}
	if q.Hints.Limit > 0 {
		b.WriteString(" limit=")
		b.WriteString(strconv.Itoa(q.Hints.Limit))
	}
	return b.String()
}
