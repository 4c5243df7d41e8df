// Copyright 2025 The Papermill Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package openai

import (
	"encoding/json"
	"regexp"
	"strings"
)

// unquotedKey matches an object key that lost its opening quote, as in
// `, relation":` or `{subject":`.
var unquotedKey = regexp.MustCompile(`([{,]\s*)([A-Za-z][A-Za-z_ ]*)":`)

// decodeJSON strips markdown code fences from a model response, repairs
// common key-quoting mistakes and unmarshals the result into v.
func decodeJSON(response string, v any) error {
	text := strings.TrimSpace(response)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	return json.Unmarshal([]byte(repairJSON(text)), v)
}

// repairJSON restores missing opening quotes before object keys. Valid JSON
// passes through unchanged.
func repairJSON(s string) string {
	return unquotedKey.ReplaceAllStringFunc(s, func(m string) string {
		parts := unquotedKey.FindStringSubmatch(m)
		return parts[1] + `"` + strings.TrimSpace(parts[2]) + `":`
	})
}
