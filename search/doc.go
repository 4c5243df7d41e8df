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


// Package search implements hybrid retrieval over the chunk index.
//
// The Engine executes a parsed query tree in stages:
//   - resolve the similarity clause to a query vector, by embedding the free
//     text or by averaging the stored vectors of a seed document
//   - over-fetch nearest neighbours from the vector index
//   - discard candidates whose document fails the metadata filters, re-fetching
//     with a larger window when too few survive
//   - fuse vector similarity with a keyword score, alpha*vector + (1-alpha)*keyword
//   - order by fused score with a stable tie-break and truncate to k
//
// Each hit carries the components of its score so ranking can be explained.
package search
