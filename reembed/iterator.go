// Copyright 2025 Poiesic Systems
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

	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
)

const (
	// DefaultBatchSize is the default number of entries handed to fn at once.
	DefaultBatchSize = 100
)

// EntryIterator walks an index in insertion order and groups its entries into batches.
type EntryIterator struct {
	index     storage.Index
	batchSize int
}

// NewEntryIterator creates an iterator over index.
// A batchSize below 1 selects DefaultBatchSize.
func NewEntryIterator(index storage.Index, batchSize int) *EntryIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &EntryIterator{
		index:     index,
		batchSize: batchSize,
	}
}

// ForEach calls fn with consecutive batches of entries. The final batch may be
// short. Iteration stops at the first error from fn and when ctx is done.
// fn owns the batch slice it receives.
func (it *EntryIterator) ForEach(ctx context.Context, fn func([]core.IndexEntry) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := make([]core.IndexEntry, 0, it.batchSize)
	err := it.index.Scan(ctx, func(e core.IndexEntry) error {
		batch = append(batch, e)
		if len(batch) < it.batchSize {
			return nil
		}
		full := batch
		batch = make([]core.IndexEntry, 0, it.batchSize)
		if err := fn(full); err != nil {
			return err
		}
		return ctx.Err()
	})
	if err != nil {
		return err
	}

	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}
