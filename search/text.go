package search

import (
	"strings"

	"github.com/skewballfox/papermill/core"
)

// Stop words to filter out when scoring keyword matches
var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "be": true, "is": true, "are": true,
	"was": true, "to": true, "of": true, "and": true, "in": true, "that": true,
	"have": true, "it": true, "for": true, "not": true, "on": true, "with": true,
	"as": true, "you": true, "do": true, "at": true, "this": true, "but": true,
	"by": true, "from": true, "or": true, "we": true, "our": true, "which": true,
}

// tokenizeAndFilter splits text into words, lowercases, trims punctuation, and removes stop words
func tokenizeAndFilter(text string) []string {
	words := strings.Fields(text)
	filtered := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.ToLower(strings.Trim(word, ".,!?;:'\"-()[]{}"))
		if cleaned != "" && !stopWords[cleaned] {
			filtered = append(filtered, cleaned)
		}
	}

	return filtered
}

// queryTerms returns the distinct filtered terms of the query text in order.
func queryTerms(text string) []string {
	terms := tokenizeAndFilter(text)
	seen := make(map[string]bool, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// keywordScore returns the fraction of terms found in the chunk text or in
// the string and list attributes of its document, and the matched terms.
func keywordScore(terms []string, text string, attrs map[string]core.Value) (float64, []string) {
	if len(terms) == 0 {
		return 0, nil
	}

	words := make(map[string]bool)
	for _, w := range tokenizeAndFilter(text) {
		words[w] = true
	}
	for _, v := range attrs {
		for _, term := range v.Terms() {
			for _, w := range tokenizeAndFilter(term) {
				words[w] = true
			}
		}
	}

	var matched []string
	for _, t := range terms {
		if words[t] {
			matched = append(matched, t)
		}
	}
	return float64(len(matched)) / float64(len(terms)), matched
}
