package mock

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/skewballfox/papermill/ai"
)

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, each span yields one segment quoting its first sentence and citing it.
	GenerateFunc func(ctx context.Context, prompt string, spans []ai.GroundingSpan) ([]ai.Segment, error)

	callCount atomic.Int64
}

var _ ai.Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a mock generator with default extractive behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

// Generate returns one cited segment per span unless GenerateFunc is set.
func (m *MockGenerator) Generate(ctx context.Context, prompt string, spans []ai.GroundingSpan) ([]ai.Segment, error) {
	m.callCount.Add(1)

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, spans)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	segments := make([]ai.Segment, 0, len(spans))
	for _, span := range spans {
		segments = append(segments, ai.Segment{
			Text:        FirstSentence(span.Text),
			CitationIDs: []string{span.ID},
		})
	}
	return segments, nil
}

// CallCount returns the number of times Generate was called.
func (m *MockGenerator) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom functions.
func (m *MockGenerator) Reset() {
	m.callCount.Store(0)
	m.GenerateFunc = nil
}

// FirstSentence returns text up to and including its first sentence terminator.
func FirstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		return text[:i+1]
	}
	return text
}
