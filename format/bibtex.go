package format

import (
	"bytes"
	"regexp"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/nickng/bibtex"
	"github.com/skewballfox/papermill/core"
)

var (
	braceRE    = regexp.MustCompile(`[{}]`)
	mathRE     = regexp.MustCompile(`\$[^$]*\$`)
	latexCmdRE = regexp.MustCompile(`\\[A-Za-z]+(?:\[[^\]]*\])?(?:\{[^}]*\})?`)
	citationRE = regexp.MustCompile(`\[[0-9,;\s]+\]|\\cite[t]?(?:\[[^\]]*\])?\{[^}]*\}\s*`)
	keywordSep = regexp.MustCompile(`[;,/\n]|\\n`)
)

var latexEscapes = strings.NewReplacer(`\&`, "&", `\%`, "%", `\_`, "_", `\#`, "#")

// venueFields are tried in order; the first non-empty one is the venue.
var venueFields = []string{"journal", "booktitle", "publisher", "archiveprefix", "series", "organization"}

// parseBibTeX turns every entry of a .bib file into a document whose text is
// the title followed by the abstract. Entries without either are skipped, as
// are repeated cite keys.
func parseBibTeX(_ string, raw []byte) ([]*core.Document, error) {
	bib, err := bibtex.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	var docs []*core.Document
	seen := make(map[string]bool, len(bib.Entries))
	for _, entry := range bib.Entries {
		if entry.CiteName == "" || seen[entry.CiteName] {
			continue
		}
		seen[entry.CiteName] = true
		if doc := bibEntryDocument(entry); doc != nil {
			docs = append(docs, doc)
		}
	}
	if len(docs) == 0 {
		return nil, ErrNoText
	}
	return docs, nil
}

func bibEntryDocument(entry *bibtex.BibEntry) *core.Document {
	fields := make(map[string]string, len(entry.Fields))
	for k, v := range entry.Fields {
		if v != nil {
			fields[strings.ToLower(strings.TrimSpace(k))] = v.String()
		}
	}

	title := cleanLaTeX(fields["title"])
	abstract := cleanLaTeX(fields["abstract"])
	text := strings.TrimSpace(title + "\n\n" + abstract)
	if text == "" {
		return nil
	}

	doc := &core.Document{
		ID:   core.DocumentID(uuid.NewSHA1(uuid.NameSpaceURL, []byte("bibtex:"+entry.CiteName)).String()),
		Text: text,
		Metadata: map[string]any{
			"citekey":    entry.CiteName,
			"entry_type": strings.ToLower(entry.Type),
		},
	}
	if eprint := strings.TrimSpace(fields["eprint"]); arxivStem.MatchString(eprint) {
		doc.ID = core.DocumentID(eprint)
		doc.Metadata["arxiv_id"] = eprint
	}
	if title != "" {
		doc.Metadata["title"] = title
	}
	if abstract != "" {
		doc.Metadata["description"] = abstract
	}
	for _, f := range venueFields {
		if v := cleanLaTeX(fields[f]); v != "" {
			doc.Metadata["venue"] = v
			break
		}
	}
	if authors := splitAuthors(fields["author"]); len(authors) > 0 {
		doc.Metadata["author"] = authors
	}
	if kw := splitKeywords(fields["keywords"]); len(kw) > 0 {
		doc.Metadata["tags"] = kw
	}
	if year := strings.TrimSpace(braceRE.ReplaceAllString(fields["year"], "")); year != "" {
		doc.Metadata["date"] = year
	}
	for _, f := range []string{"doi", "isbn", "url"} {
		if v := strings.TrimSpace(braceRE.ReplaceAllString(fields[f], "")); v != "" {
			doc.Metadata[f] = v
		}
	}
	return doc
}

// cleanLaTeX strips inline math, citations, LaTeX commands and braces,
// unescapes the common special characters and collapses whitespace.
// Citations go before commands so a \cite argument does not survive.
func cleanLaTeX(s string) string {
	if s == "" {
		return ""
	}
	s = mathRE.ReplaceAllString(s, " ")
	s = citationRE.ReplaceAllString(s, " ")
	s = latexCmdRE.ReplaceAllString(s, " ")
	s = braceRE.ReplaceAllString(s, "")
	s = latexEscapes.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// splitKeywords returns the sorted, lowercased, unique keywords of a
// keywords field. Underscores read as spaces.
func splitKeywords(s string) []string {
	s = strings.ReplaceAll(s, "_", " ")
	var out []string
	for _, part := range keywordSep.Split(s, -1) {
		if kw := strings.Join(strings.Fields(strings.ToLower(part)), " "); kw != "" {
			out = append(out, kw)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func splitAuthors(s string) []string {
	var out []string
	for _, a := range strings.Split(strings.Join(strings.Fields(s), " "), " and ") {
		if a = cleanLaTeX(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
