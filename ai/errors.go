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


package ai

import "errors"

var (
	// ErrRateLimited is returned when a collaborator rejects a call because of
	// rate or quota limits. It is retryable.
	ErrRateLimited = errors.New("rate limited")

	// ErrModelUnavailable is returned when the model or provider cannot serve
	// the call right now. It is retryable.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrMalformedResponse is returned when a model response cannot be parsed.
	ErrMalformedResponse = errors.New("malformed model response")
)

// IsRetryable reports whether err is a collaborator failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrModelUnavailable)
}
