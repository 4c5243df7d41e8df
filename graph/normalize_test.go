package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Machine Learning", "machine learning"},
		{"  machine\tlearning ", "machine learning"},
		{"Graph-Neural_Networks", "graph neural network"},
		{"Transformers!", "transformer"},
		{"Policies", "policy"},
		{"classes", "class"},
		{"analysis", "analysis"},
		{"corpus", "corpus"},
		{"ML", "ml"},
		{"GPT-4", "gpt 4"},
		{"...", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}
