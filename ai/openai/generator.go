package openai

import (
	"context"
	"log/slog"
	"strings"

	"github.com/skewballfox/papermill/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator using OpenAI-compatible chat APIs.
// The model is asked to cite source ids; the caller checks the citations.
type Generator struct {
	client llms.Model
	logger *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

type segment struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations"`
}

type generationResponse struct {
	Segments []segment `json:"segments"`
}

func newGenerator(config *ai.Config) (*Generator, error) {
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

	return &Generator{
		client: client,
		logger: slog.Default().With("component", "openai-generator"),
	}, nil
}

// NewGenerator creates a new grounded generator using the provided configuration.
//
// Returns ai.Generator interface to enforce abstraction.
func NewGenerator(config *ai.Config) (ai.Generator, error) {
	return newGenerator(config)
}

// Generate asks the model to answer prompt using only spans.
func (g *Generator) Generate(ctx context.Context, prompt string, spans []ai.GroundingSpan) ([]ai.Segment, error) {
	g.logger.Debug("generating grounded text", "spans", len(spans))

	var result generationResponse
	if err := chatJSON(ctx, g.client, g.logger, buildGenerationPrompt(spans), prompt, &result); err != nil {
		return nil, err
	}

	out := make([]ai.Segment, 0, len(result.Segments))
	for _, s := range result.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		citations := make([]string, 0, len(s.Citations))
		for _, c := range s.Citations {
			c = strings.Trim(strings.TrimSpace(c), "[]")
			if c != "" {
				citations = append(citations, c)
			}
		}
		out = append(out, ai.Segment{Text: text, CitationIDs: citations})
	}
	return out, nil
}
