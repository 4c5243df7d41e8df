package openai

import (
	"fmt"
	"strings"

	"github.com/skewballfox/papermill/ai"
)

const relationPromptTemplate = `Extract the relations stated in the given text and return them as JSON.

Output ONLY valid JSON. Do not include any preamble, explanation, greeting, or acknowledgment.
Start your response directly with the opening brace { and end with the closing brace }.
The JSON must have this shape:

{"relations":[{"subject":"...","relation":"...","object":"...","confidence":0.0}]}

Rules:
- subject and object are concepts named in the text: lowercase, 1-4 words, singular form.
- relation should be one of: %s. Use another short snake_case verb only when none fits.
- confidence is a number from 0 (guess) to 1 (stated explicitly).
- Include only relations that are explicitly stated or clearly implied by the text. Do not hallucinate.
- If no relations can be identified, return {"relations":[]}.

Example:
Input: "BERT builds on the transformer architecture and is evaluated on GLUE."
Output:
{"relations":[
  {"subject":"bert","relation":"extends","object":"transformer","confidence":0.9},
  {"subject":"bert","relation":"evaluates","object":"glue","confidence":0.8}
]}`

const generationPromptTemplate = `You write summaries that are strictly grounded in the numbered sources below.

Output ONLY valid JSON with this shape:

{"segments":[{"text":"...","citations":["<source id>"]}]}

Rules:
- Every segment must cite at least one source id taken verbatim from the list.
- Never cite an id that is not in the list. Never state facts the sources do not support.
- Keep each segment to one or two sentences.

Sources:
%s`

func buildRelationPrompt() string {
	types := make([]string, len(ai.RelationTypes))
	for i, t := range ai.RelationTypes {
		types[i] = string(t)
	}
	return fmt.Sprintf(relationPromptTemplate, strings.Join(types, ", "))
}

func buildGenerationPrompt(spans []ai.GroundingSpan) string {
	var sb strings.Builder
	for _, span := range spans {
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", span.ID, strings.TrimSpace(span.Text))
	}
	return fmt.Sprintf(generationPromptTemplate, sb.String())
}
