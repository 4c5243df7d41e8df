package format

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/skewballfox/papermill/core"
)

// parsePDF extracts the plain text layer. Scanned PDFs without text fail
// with ErrNoText.
func parsePDF(_ string, raw []byte) (doc *core.Document, err error) {
	// The reader panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	reader, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, reader); err != nil {
		return nil, fmt.Errorf("read extracted text: %w", err)
	}

	text := strings.TrimSpace(strings.ToValidUTF8(buf.String(), "\uFFFD"))
	if text == "" {
		return nil, ErrNoText
	}
	doc = &core.Document{Text: text, Metadata: map[string]any{"pages": r.NumPage()}}
	if title := titleFromText(text); title != "" {
		doc.Metadata["title"] = title
	}
	return doc, nil
}
