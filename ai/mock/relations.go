package mock

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/skewballfox/papermill/ai"
	"github.com/skewballfox/papermill/core"
)

// MockRelationExtractor is a test double for ai.RelationExtractor.
type MockRelationExtractor struct {
	// ExtractRelationsFunc is called by ExtractRelations if set.
	// If nil, sentences of the form "<subject> <relation> <object>." are parsed,
	// where relation is one of ai.RelationTypes written with spaces.
	ExtractRelationsFunc func(ctx context.Context, text string) ([]core.Relation, error)

	// Confidence is assigned to relations found by the default behavior.
	// Zero means 0.9.
	Confidence float64

	callCount atomic.Int64
}

var _ ai.RelationExtractor = (*MockRelationExtractor)(nil)

// NewMockRelationExtractor creates a mock relation extractor with default behavior.
func NewMockRelationExtractor() *MockRelationExtractor {
	return &MockRelationExtractor{}
}

// ExtractRelations extracts relations from simple declarative sentences.
func (m *MockRelationExtractor) ExtractRelations(ctx context.Context, text string) ([]core.Relation, error) {
	m.callCount.Add(1)

	if m.ExtractRelationsFunc != nil {
		return m.ExtractRelationsFunc(ctx, text)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	confidence := m.Confidence
	if confidence == 0 {
		confidence = 0.9
	}

	relations := []core.Relation{}
	sentences := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	for _, sentence := range sentences {
		sentence = " " + strings.Join(strings.Fields(sentence), " ") + " "
		for _, rt := range ai.RelationTypes {
			verb := " " + strings.ReplaceAll(string(rt), "_", " ") + " "
			i := strings.Index(sentence, verb)
			if i < 0 {
				continue
			}
			subject := strings.TrimSpace(sentence[:i])
			object := strings.TrimSpace(sentence[i+len(verb):])
			if subject == "" || object == "" {
				continue
			}
			relations = append(relations, core.Relation{
				Subject:    subject,
				Type:       rt,
				Object:     object,
				Confidence: confidence,
			})
			break
		}
	}
	return relations, nil
}

// CallCount returns the number of times ExtractRelations was called.
func (m *MockRelationExtractor) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom functions.
func (m *MockRelationExtractor) Reset() {
	m.callCount.Store(0)
	m.ExtractRelationsFunc = nil
}
