package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/skewballfox/papermill/core"
)

// Schema resolves field names to their types. *metadata.Schema and
// *metadata.Index satisfy it.
type Schema interface {
	FieldType(name string) (core.FieldType, bool)
}

// Directive and hint names.
const (
	DirectiveSimilarTo       = "similar_to"
	DirectivePublishedAfter  = "published_after"
	DirectivePublishedBefore = "published_before"
	HintAlpha                = "alpha"
	HintLimit                = "limit"

	dateField = "date"
)

// Parse parses input into a query tree. It fails with *core.SyntaxError on
// malformed input and *core.UnknownFieldError when a filter names a field the
// schema does not know.
func Parse(input string, schema Schema) (*core.QueryTree, error) {
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{input: input, schema: schema, tree: &core.QueryTree{}}
	if err := p.parse(toks); err != nil {
		return nil, err
	}
	return p.tree, nil
}

type parser struct {
	input  string
	schema Schema
	tree   *core.QueryTree
	text   []string
	seen   map[string]bool
}

func (p *parser) parse(toks []token) error {
	depth := 0
	afterClause := false // last token closed a clause or group
	pendingAnd := -1     // position of an AND still waiting for its right operand
	openPos := []int{}

	for i, tok := range toks {
		switch tok.kind {
		case tokLParen:
			if i+1 < len(toks) && toks[i+1].kind == tokRParen {
				return &core.SyntaxError{Pos: tok.pos, Msg: "empty group"}
			}
			depth++
			openPos = append(openPos, tok.pos)
			afterClause = false
			continue
		case tokRParen:
			if depth == 0 {
				return &core.SyntaxError{Pos: tok.pos, Msg: "unbalanced ')'"}
			}
			if pendingAnd >= 0 {
				return &core.SyntaxError{Pos: pendingAnd, Msg: "AND without right operand"}
			}
			depth--
			openPos = openPos[:len(openPos)-1]
			afterClause = true
			continue
		}

		switch kw := tok.keyword(); kw {
		case "AND":
			if !afterClause {
				return &core.SyntaxError{Pos: tok.pos, Msg: "AND without left operand"}
			}
			pendingAnd = tok.pos
			afterClause = false
			continue
		case "OR", "NOT":
			return &core.SyntaxError{Pos: tok.pos, Msg: kw + " is not supported; clauses are joined with AND"}
		}

		if err := p.clause(tok); err != nil {
			return err
		}
		pendingAnd = -1
		afterClause = true
	}

	if pendingAnd >= 0 {
		return &core.SyntaxError{Pos: pendingAnd, Msg: "AND without right operand"}
	}
	if depth > 0 {
		return &core.SyntaxError{Pos: openPos[len(openPos)-1], Msg: "unbalanced '('"}
	}

	p.tree.Similarity.Text = strings.Join(p.text, " ")
	if p.tree.Similarity.Text == "" && p.tree.Similarity.SeedID == "" {
		return &core.SyntaxError{Pos: len(p.input), Msg: "query needs free text or " + DirectiveSimilarTo}
	}
	return nil
}

func (p *parser) clause(tok token) error {
	if tok.phrase() || len(tok.parts) == 1 {
		text := strings.TrimSpace(tok.parts[0].text)
		if text == "" {
			return &core.SyntaxError{Pos: tok.pos, Msg: "empty phrase"}
		}
		p.text = append(p.text, text)
		return nil
	}

	head := tok.parts[0]
	if head.quoted || head.text == "" {
		return &core.SyntaxError{Pos: tok.pos, Msg: "missing field name"}
	}
	name := strings.ToLower(head.text)
	rest := tok.parts[1:]

	switch name {
	case DirectiveSimilarTo:
		value, err := p.single(tok, name, rest)
		if err != nil {
			return err
		}
		p.tree.Similarity.SeedID = core.DocumentID(value)
		return nil
	case DirectivePublishedAfter, DirectivePublishedBefore:
		value, err := p.single(tok, name, rest)
		if err != nil {
			return err
		}
		if _, err := core.ParseDate(value); err != nil {
			return &core.SyntaxError{Pos: tok.pos, Msg: err.Error()}
		}
		op := core.OpGt
		if name == DirectivePublishedBefore {
			op = core.OpLt
		}
		return p.filter(dateField, op, []string{value})
	case HintAlpha:
		value, err := p.single(tok, name, rest)
		if err != nil {
			return err
		}
		alpha, err := strconv.ParseFloat(value, 64)
		if err != nil || alpha < 0 || alpha > 1 {
			return &core.SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("alpha must be a number in [0,1], got %q", value)}
		}
		p.tree.Hints.Alpha = &alpha
		return nil
	case HintLimit:
		value, err := p.single(tok, name, rest)
		if err != nil {
			return err
		}
		limit, err := strconv.Atoi(value)
		if err != nil || limit <= 0 {
			return &core.SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("limit must be a positive integer, got %q", value)}
		}
		p.tree.Hints.Limit = limit
		return nil
	}

	op := core.OpEq
	if len(rest) >= 2 {
		if parsed, ok := core.ParseOperator(rest[0].text); ok && !rest[0].quoted {
			op = parsed
			rest = rest[1:]
		}
	}
	value, quoted := joinParts(rest)
	if strings.TrimSpace(value) == "" {
		return &core.SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("missing value for %q", name)}
	}

	if op != core.OpIn {
		if !quoted && strings.HasPrefix(strings.TrimSpace(value), "[") {
			return &core.SyntaxError{Pos: tok.pos, Msg: "list values require the in operator"}
		}
		return p.filter(name, op, []string{strings.TrimSpace(value)})
	}

	values := []string{value}
	if !quoted {
		var ok bool
		if values, ok = splitList(value); !ok {
			return &core.SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("malformed list %q", value)}
		}
	}
	return p.filter(name, op, values)
}

// single returns the one value of a directive, rejecting repeats.
func (p *parser) single(tok token, name string, rest []part) (string, error) {
	if p.seen == nil {
		p.seen = make(map[string]bool)
	}
	if p.seen[name] {
		return "", &core.SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("%s given more than once", name)}
	}
	p.seen[name] = true

	value, _ := joinParts(rest)
	value = strings.TrimSpace(value)
	if value == "" {
		return "", &core.SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("missing value for %q", name)}
	}
	return value, nil
}

func (p *parser) filter(field string, op core.Operator, values []string) error {
	if p.schema == nil {
		return &core.UnknownFieldError{Field: field}
	}
	if _, ok := p.schema.FieldType(field); !ok {
		return &core.UnknownFieldError{Field: field}
	}
	p.tree.Filters = append(p.tree.Filters, core.Predicate{Field: field, Op: op, Values: values})
	return nil
}

// joinParts rejoins value segments split on colons, so timestamps survive.
func joinParts(parts []part) (string, bool) {
	texts := make([]string, len(parts))
	quoted := false
	for i, pt := range parts {
		texts[i] = pt.text
		quoted = quoted || pt.quoted
	}
	return strings.Join(texts, ":"), quoted
}
