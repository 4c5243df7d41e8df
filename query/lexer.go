package query

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/skewballfox/papermill/core"
)

type tokenKind int

const (
	tokWord tokenKind = iota
	tokLParen
	tokRParen
)

// part is one colon-separated segment of a word.
type part struct {
	text   string
	quoted bool
}

type token struct {
	kind  tokenKind
	pos   int
	raw   string
	parts []part
}

// phrase reports whether the token is a standalone quoted string.
func (t token) phrase() bool {
	return len(t.parts) == 1 && t.parts[0].quoted && strings.HasPrefix(t.raw, `"`)
}

// keyword returns the connective named by a bare word, or "".
func (t token) keyword() string {
	if len(t.parts) != 1 || t.parts[0].quoted {
		return ""
	}
	switch t.parts[0].text {
	case "AND", "OR", "NOT":
		return t.parts[0].text
	}
	return ""
}

func lex(input string) ([]token, error) {
	var toks []token
	for i := 0; i < len(input); {
		r, w := utf8.DecodeRuneInString(input[i:])
		switch {
		case unicode.IsSpace(r):
			i += w
		case r == '(':
			toks = append(toks, token{kind: tokLParen, pos: i, raw: "("})
			i++
		case r == ')':
			toks = append(toks, token{kind: tokRParen, pos: i, raw: ")"})
			i++
		default:
			tok, next, err := lexWord(input, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, tok)
			i = next
		}
	}
	return toks, nil
}

// lexWord reads a run of non-space characters, splitting it on colons that
// are outside quotes and brackets.
func lexWord(input string, start int) (token, int, error) {
	tok := token{kind: tokWord, pos: start}
	var cur strings.Builder
	quoted := false
	flush := func() {
		tok.parts = append(tok.parts, part{text: cur.String(), quoted: quoted})
		cur.Reset()
		quoted = false
	}

	i := start
loop:
	for i < len(input) {
		r, w := utf8.DecodeRuneInString(input[i:])
		switch {
		case unicode.IsSpace(r), r == '(', r == ')':
			break loop
		case r == '"':
			text, next, err := lexQuoted(input, i)
			if err != nil {
				return token{}, 0, err
			}
			cur.WriteString(text)
			quoted = true
			i = next
		case r == '[':
			end := strings.IndexByte(input[i:], ']')
			if end < 0 {
				return token{}, 0, &core.SyntaxError{Pos: i, Msg: "unterminated list"}
			}
			cur.WriteString(input[i : i+end+1])
			i += end + 1
		case r == ':':
			flush()
			i += w
		default:
			cur.WriteRune(r)
			i += w
		}
	}
	flush()
	tok.raw = input[start:i]
	return tok, i, nil
}

// lexQuoted reads a double-quoted string starting at start. Backslash
// escapes the next character.
func lexQuoted(input string, start int) (string, int, error) {
	var b strings.Builder
	for i := start + 1; i < len(input); {
		r, w := utf8.DecodeRuneInString(input[i:])
		switch r {
		case '\\':
			if i+w >= len(input) {
				return "", 0, &core.SyntaxError{Pos: i, Msg: "dangling escape"}
			}
			next, nw := utf8.DecodeRuneInString(input[i+w:])
			b.WriteRune(next)
			i += w + nw
		case '"':
			return b.String(), i + 1, nil
		default:
			b.WriteRune(r)
			i += w
		}
	}
	return "", 0, &core.SyntaxError{Pos: start, Msg: "unterminated quote"}
}

// splitList splits an `in` operand on commas outside quotes. Surrounding
// brackets are optional.
func splitList(s string) ([]string, bool) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return nil, false
		}
		s = s[1 : len(s)-1]
	}

	var items []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ',' && !inQuote:
			items = append(items, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, false
	}
	items = append(items, strings.TrimSpace(cur.String()))
	for _, it := range items {
		if it == "" {
			return nil, false
		}
	}
	return items, true
}
