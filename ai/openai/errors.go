package openai

import (
	"fmt"

	"github.com/skewballfox/papermill/ai"
	"github.com/tmc/langchaingo/llms"
)

var errorMapper = llms.OpenAIErrorMapper()

// mapError classifies a client error into the ai package sentinels.
// Errors that are neither rate limits nor outages are returned mapped but
// otherwise untouched, which keeps context errors visible to errors.Is.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	mapped := errorMapper.WrapError(err)
	switch {
	case llms.IsRateLimitError(mapped), llms.IsQuotaExceededError(mapped):
		return fmt.Errorf("%w: %w", ai.ErrRateLimited, mapped)
	case llms.IsProviderUnavailableError(mapped):
		return fmt.Errorf("%w: %w", ai.ErrModelUnavailable, mapped)
	}
	return mapped
}
