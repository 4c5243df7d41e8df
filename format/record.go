package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/skewballfox/papermill/core"
)

// parseRecord reads a JSON book or paper record. The title and description
// (or abstract) make up the text; every other top-level key is metadata.
func parseRecord(_ string, raw []byte) (*core.Document, error) {
	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if meta == nil {
		return nil, ErrInvalidRecord
	}

	var parts []string
	for _, key := range []string{"title", "description", "abstract", "summary"} {
		if s, ok := meta[key].(string); ok && strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	if len(parts) == 0 {
		return nil, ErrNoText
	}
	return &core.Document{Text: strings.Join(parts, "\n\n"), Metadata: meta}, nil
}
