// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Generator,
// ai.RelationExtractor and ai.AIProvider for use in unit tests. The mocks run
// without external services and behave deterministically.
//
// # Usage in Tests
//
//	mockProvider := mock.NewMockProviderWithServices(nil, nil, nil)
//	mockProvider.GetMockEmbedder().EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, ai.ErrRateLimited
//	}
//	count := mockProvider.GetMockEmbedder().CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns unit-length vectors derived from a hash of the text
//   - MockGenerator: Quotes the first sentence of every span and cites it
//   - MockRelationExtractor: Parses "<subject> <relation> <object>." sentences
package mock
