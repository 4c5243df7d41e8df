package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skewballfox/papermill/ai"
	"github.com/tmc/langchaingo/llms"
)

const maxParseAttempts = 3

// chatJSON sends a system and user message in JSON mode and decodes the reply
// into v. Malformed replies are retried; transport errors are returned at once
// so the caller's retry policy decides what to do with them.
func chatJSON(ctx context.Context, client llms.Model, logger *slog.Logger, system, user string, v any) error {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user)},
		},
	}

	var lastErr error
	for attempt := 0; attempt < maxParseAttempts; attempt++ {
		response, err := client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return mapError(err)
		}
		if len(response.Choices) < 1 {
			lastErr = fmt.Errorf("%w: no choices returned", ai.ErrMalformedResponse)
			logger.Debug("no choices returned from model", "attempt", attempt+1)
			continue
		}

		if err := decodeJSON(response.Choices[0].Content, v); err != nil {
			lastErr = fmt.Errorf("%w: %w", ai.ErrMalformedResponse, err)
			logger.Warn("error parsing model response",
				"attempt", attempt+1,
				"response", response.Choices[0].Content,
				"err", err)
			continue
		}
		return nil
	}

	logger.Error("failed to parse model response after retries", "err", lastErr)
	return lastErr
}
