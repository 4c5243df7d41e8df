// Package ai provides abstractions for the model collaborators used by papermill.
//
// The engine depends on three interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - Generator: Produces summary segments that cite grounding spans
//   - RelationExtractor: Extracts (subject, relation, object) tuples from text
//
// AIProvider aggregates them for convenient initialization.
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/resilient: Wraps any provider with timeouts, retries, a circuit breaker and a concurrency cap
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors in ai/openai return interface types. Mock constructors
// return concrete types so tests can inject behavior and assert call counts.
//
//	provider, err := openai.NewProvider(ai.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	provider = resilient.Wrap(provider, resilient.DefaultConfig())
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "attention is all you need")
package ai
