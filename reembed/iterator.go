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


package reembed

import (
	"context"
	"slices"

	"github.com/skewballfox/papermill/core"
	"github.com/skewballfox/papermill/storage"
)

const (
	// DefaultBatchSize is the default number of chunks handed to fn in each batch
	DefaultBatchSize = 100
)

// ChunkIterator iterates over all stored chunks in batches.
type ChunkIterator struct {
	repo      storage.DocumentRepository
	batchSize int
}

// NewChunkIterator creates a new chunk iterator.
// batchSize: number of chunks per batch (non-positive selects DefaultBatchSize)
func NewChunkIterator(repo storage.DocumentRepository, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &ChunkIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// Count returns the number of stored chunks.
func (it *ChunkIterator) Count(ctx context.Context) (int, error) {
	n := 0
	err := it.repo.ForEachChunk(ctx, func(*core.Chunk) error {
		n++
		return nil
	})
	return n, err
}

// ForEach calls fn for each batch of chunks in storage key order. Chunks
// are read before the first call so no read transaction stays open while
// fn runs. Iteration stops on first error from fn or when all chunks are
// processed. Context cancellation is checked between batches.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]*core.Chunk) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var chunks []*core.Chunk
	err := it.repo.ForEachChunk(ctx, func(c *core.Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		return err
	}

	for batch := range slices.Chunk(chunks, it.batchSize) {
		if err := fn(batch); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
