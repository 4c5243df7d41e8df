package format

import (
	"fmt"
	"strings"

	"github.com/skewballfox/papermill/core"
	"gopkg.in/yaml.v3"
)

// parseMarkdown reads optional YAML front matter into metadata. Without a
// title in the front matter, the first level-one heading is used.
func parseMarkdown(_ string, raw []byte) (*core.Document, error) {
	text := strings.ReplaceAll(string(raw), "\r\n", "\n")
	text = strings.TrimLeft(text, "\ufeff")

	meta := make(map[string]any)
	body := text
	if rest, ok := strings.CutPrefix(text, "---\n"); ok {
		front, after, found := strings.Cut(rest, "\n---")
		if found {
			if err := yaml.Unmarshal([]byte(front), &meta); err != nil {
				return nil, fmt.Errorf("front matter: %w", err)
			}
			if meta == nil {
				meta = make(map[string]any)
			}
			// Drop the rest of the closing delimiter line.
			if _, tail, ok := strings.Cut(after, "\n"); ok {
				body = tail
			} else {
				body = ""
			}
		}
	}

	body = strings.TrimSpace(body)
	if body == "" {
		return nil, ErrNoText
	}
	if _, ok := meta["title"]; !ok {
		if title := firstHeading(body); title != "" {
			meta["title"] = title
		}
	}
	return &core.Document{Text: body, Metadata: meta}, nil
}

func firstHeading(body string) string {
	for line := range strings.Lines(body) {
		if title, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(title)
		}
	}
	return ""
}
