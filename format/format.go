package format

import (
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/metadata"
)

// isbnScanBytes bounds how much leading text is searched for an ISBN.
const isbnScanBytes = 4096

var (
	arxivStem     = regexp.MustCompile(`^\d{4}\.\d{4,5}(v\d+)?$`)
	bibEntryStart = regexp.MustCompile(`^@[A-Za-z]+\s*\{`)
	isbnCandidate = regexp.MustCompile(`(?:97[89][- ]?)?\d{1,5}[- ]?\d+[- ]?\d+[- ]?[\dXx]\b`)
)

// metadataAliases folds the key spellings found in front matter and records
// onto the indexed field names.
var metadataAliases = map[string]string{
	"authors":          "author",
	"published_date":   "date",
	"publication_date": "date",
	"published":        "date",
	"keywords":         "tags",
	"abstract":         "description",
}

// Handler parses the raw bytes of a named file into documents. It fills
// Format, Text and Metadata; a handler for files holding several records
// also sets each document's ID. Remaining identifiers are derived by
// Table.ParseAll.
type Handler func(name string, raw []byte) ([]*core.Document, error)

// Single adapts a parser for one-document files to a Handler.
func Single(parse func(name string, raw []byte) (*core.Document, error)) Handler {
	return func(name string, raw []byte) ([]*core.Document, error) {
		doc, err := parse(name, raw)
		if err != nil {
			return nil, err
		}
		return []*core.Document{doc}, nil
	}
}

// Table maps formats to their handlers.
type Table map[core.Format]Handler

// Default returns the built-in handlers.
func Default() Table {
	return Table{
		core.FormatText:     Single(parseText),
		core.FormatMarkdown: Single(parseMarkdown),
		core.FormatPDF:      Single(parsePDF),
		core.FormatRecord:   Single(parseRecord),
		core.FormatBibTeX:   parseBibTeX,
	}
}

// Formats lists the formats the table handles.
func (t Table) Formats() []core.Format {
	out := make([]core.Format, 0, len(t))
	for f := range t {
		out = append(out, f)
	}
	return out
}

// Parse parses a file that must hold exactly one document.
func (t Table) Parse(name string, raw []byte) (*core.Document, error) {
	docs, err := t.ParseAll(name, raw)
	if err != nil {
		return nil, err
	}
	if len(docs) != 1 {
		return nil, fmt.Errorf("%w: %s holds %d records", ErrMultipleRecords, name, len(docs))
	}
	return docs[0], nil
}

// ParseAll detects the format of a file and parses it with the matching
// handler.
func (t Table) ParseAll(name string, raw []byte) ([]*core.Document, error) {
	f, err := Detect(name, raw)
	if err != nil {
		return nil, err
	}
	h, ok := t[f]
	if !ok {
		return nil, fmt.Errorf("%w: no handler for %s", ErrUnknownFormat, f)
	}
	docs, err := h(name, raw)
	if err == nil && len(docs) == 0 {
		err = ErrNoText
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s as %s: %w", name, f, err)
	}
	for _, doc := range docs {
		doc.Format = f
		finish(doc, name)
	}
	return docs, nil
}

// Detect picks a format by file extension, then by sniffing the content.
func Detect(name string, raw []byte) (core.Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".txt", ".text":
		return core.FormatText, nil
	case ".md", ".markdown":
		return core.FormatMarkdown, nil
	case ".pdf":
		return core.FormatPDF, nil
	case ".json":
		return core.FormatRecord, nil
	case ".bib", ".bibtex":
		return core.FormatBibTeX, nil
	}

	trimmed := bytes.TrimLeft(raw, " \t\r\n\ufeff")
	switch {
	case bytes.HasPrefix(raw, []byte("%PDF-")):
		return core.FormatPDF, nil
	case bytes.HasPrefix(trimmed, []byte("{")):
		return core.FormatRecord, nil
	case bibEntryStart.Match(trimmed):
		return core.FormatBibTeX, nil
	case bytes.HasPrefix(trimmed, []byte("---\n")), bytes.HasPrefix(trimmed, []byte("---\r\n")), bytes.HasPrefix(trimmed, []byte("# ")):
		return core.FormatMarkdown, nil
	case len(trimmed) > 0 && utf8.Valid(raw):
		return core.FormatText, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownFormat, name)
}

// finish normalizes metadata keys and derives the ISBN and, unless the
// handler set one, the document id.
func finish(doc *core.Document, name string) {
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	for from, to := range metadataAliases {
		if v, ok := doc.Metadata[from]; ok {
			if _, taken := doc.Metadata[to]; !taken {
				doc.Metadata[to] = v
			}
			delete(doc.Metadata, from)
		}
	}

	if doc.ID == "" {
		var arxiv bool
		doc.ID, arxiv = IDFor(name)
		if arxiv {
			doc.Metadata["arxiv_id"] = string(doc.ID)
		}
	}

	if _, ok := doc.Metadata["isbn"]; !ok {
		if isbn, ok := FindISBN(doc.Text); ok {
			doc.Metadata["isbn"] = isbn
		}
	}
}

// IDFor returns the id a file parsed under name receives: the file stem
// when it is an arXiv identifier, otherwise a UUID derived from name.
func IDFor(name string) (id core.DocumentID, arxiv bool) {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if arxivStem.MatchString(stem) {
		return core.DocumentID(stem), true
	}
	return core.DocumentID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()), false
}

// KnownID returns the id of the document a file will be stored under when it
// follows from the name alone, which holds for every single-document format.
func KnownID(name string) (core.DocumentID, bool) {
	f, err := Detect(name, nil)
	if err != nil || f == core.FormatBibTeX {
		return "", false
	}
	id, _ := IDFor(name)
	return id, true
}

// FindISBN returns the first valid ISBN in the opening text, normalized.
func FindISBN(text string) (string, bool) {
	if len(text) > isbnScanBytes {
		text = text[:isbnScanBytes]
	}
	for _, c := range isbnCandidate.FindAllString(text, -1) {
		if isbn, ok := metadata.NormalizeISBN(c); ok {
			return isbn, true
		}
	}
	return "", false
}

// titleFromText returns the first non-empty line when it is short enough to
// be a title.
func titleFromText(text string) string {
	for line := range strings.Lines(text) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) > 200 {
			return ""
		}
		return line
	}
	return ""
}
