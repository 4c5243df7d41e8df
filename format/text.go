package format

import (
	"strings"

	"github.com/skewballfox/papermill/core"
)

func parseText(_ string, raw []byte) (*core.Document, error) {
	text := strings.TrimSpace(strings.ToValidUTF8(string(raw), "\uFFFD"))
	if text == "" {
		return nil, ErrNoText
	}
	doc := &core.Document{Text: text, Metadata: make(map[string]any)}
	if title := titleFromText(text); title != "" {
		doc.Metadata["title"] = title
	}
	return doc, nil
}
