package openai

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/core"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// RelationExtractor implements ai.RelationExtractor using OpenAI-compatible chat APIs.
type RelationExtractor struct {
	client        llms.Model
	minConfidence float64
	logger        *slog.Logger
}

var _ ai.RelationExtractor = (*RelationExtractor)(nil)

type relation struct {
	Subject    string  `json:"subject"`
	Relation   string  `json:"relation"`
	Object     string  `json:"object"`
	Confidence float64 `json:"confidence"`
}

type relationResponse struct {
	Relations []relation `json:"relations"`
}

func newRelationExtractor(config *ai.Config) (*RelationExtractor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := openai.New(
		openai.WithBaseURL(config.GeneratorHost),
		openai.WithToken(config.Token),
		openai.WithModel(config.GeneratorModel),
	)
	if err != nil {
		return nil, err
	}

	return &RelationExtractor{
		client:        client,
		minConfidence: config.MinConfidence,
		logger:        slog.Default().With("component", "openai-relations"),
	}, nil
}

// NewRelationExtractor creates a new relation extractor using the provided configuration.
//
// Returns ai.RelationExtractor interface to enforce abstraction.
func NewRelationExtractor(config *ai.Config) (ai.RelationExtractor, error) {
	return newRelationExtractor(config)
}

// ExtractRelations extracts relation tuples from text. Tuples below the
// configured confidence, or with an empty side, are dropped.
func (e *RelationExtractor) ExtractRelations(ctx context.Context, text string) ([]core.Relation, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return []core.Relation{}, nil
	}

	var result relationResponse
	if err := chatJSON(ctx, e.client, e.logger, buildRelationPrompt(), text, &result); err != nil {
		return nil, err
	}

	return filterRelations(result.Relations, e.minConfidence), nil
}

func filterRelations(raw []relation, minConfidence float64) []core.Relation {
	out := make([]core.Relation, 0, len(raw))
	for _, r := range raw {
		if math.IsNaN(r.Confidence) || r.Confidence < minConfidence {
			continue
		}
		rel := core.Relation{
			Subject:    strings.TrimSpace(r.Subject),
			Type:       core.NormalizeRelationType(r.Relation),
			Object:     strings.TrimSpace(r.Object),
			Confidence: core.ClampConfidence(r.Confidence),
		}
		if core.ValidateRelation(&rel) != nil {
			continue
		}
		out = append(out, rel)
	}

	slices.SortStableFunc(out, func(a, b core.Relation) int {
		switch {
		case a.Confidence > b.Confidence:
			return -1
		case a.Confidence < b.Confidence:
			return 1
		}
		return 0
	})
	return out
}
