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


// Package storage provides the storage abstraction layer for papermill.
//
// This package defines repository interfaces that decouple storage implementation
// from the retrieval engine. The badger sub-package implements them on BadgerDB,
// either on disk or fully in memory for tests.
//
// # Architecture
//
//   - DocumentRepository: Documents, their chunks and removal tombstones
//   - VectorRepository: Chunk vectors and brute-force cosine similarity
//   - GraphRepository: Concept nodes, edges, aliases and extraction events
//
// Records are encoded as JSON, except vectors and ids which use a compact
// big-endian binary form.
//
// # Usage
//
//	repos, err := badger.Open("/path/to/db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repos.Close()
//
// Use in tests with in-memory storage:
//
//	repos, err := badger.NewMemoryRepositories()
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support. Pass context.Background() for operations
// without specific timeout requirements.
package storage
