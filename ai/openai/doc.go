// Package openai provides AI service implementations using OpenAI-compatible APIs.
//
// This package implements the ai.AIProvider interface using the langchaingo
// library to communicate with OpenAI or OpenAI-compatible services (such as
// Ollama, LocalAI, or vLLM).
//
// Chat responses are requested in JSON mode. Malformed JSON is repaired where
// possible and the call is retried up to three times before giving up with
// ai.ErrMalformedResponse. Transport errors are classified with langchaingo's
// error mapper so callers can tell retryable failures (ai.ErrRateLimited,
// ai.ErrModelUnavailable) from permanent ones.
//
// # Usage
//
//	config := ai.NewConfig(ai.WithHost("http://localhost:11434"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	relations, err := provider.RelationExtractor().ExtractRelations(ctx, chunkText)
package openai
