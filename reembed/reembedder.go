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
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
)

// Config holds configuration for a rebuild.
type Config struct {
	// BatchSize is the number of entries embedded per request
	BatchSize int

	// ReportInterval is how often to report progress (number of entries)
	ReportInterval int

	// MaxRetries is the maximum number of attempts per batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: DefaultBatchSize,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Result summarizes a completed rebuild.
type Result struct {
	Entries  int
	Images   int
	Batches  int
	Duration time.Duration
}

// Reembedder copies every entry of a source index into a target index with
// vectors from a new embedder.
type Reembedder struct {
	source    storage.Index
	target    storage.Index
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *EntryIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder. A nil config selects DefaultConfig.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(source, target storage.Index, embedder ai.Embedder, config *Config, progress io.Writer) (*Reembedder, error) {
	if source == nil || target == nil {
		return nil, ErrIndexRequired
	}
	if source == target {
		return nil, ErrSameIndex
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		source:    source,
		target:    target,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(target, embedder, config.MaxRetries, config.RetryDelay),
		iterator:  NewEntryIterator(source, config.BatchSize),
		logger:    slog.Default().With("component", "reembedder"),
	}, nil
}

// Run rebuilds the target from the source. The target must be empty. On error
// the target holds the batches completed so far and should be discarded.
func (r *Reembedder) Run(ctx context.Context) (*Result, error) {
	srcStats, err := r.source.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read source stats: %w", err)
	}
	dstStats, err := r.target.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read target stats: %w", err)
	}
	if dstStats.Entries > 0 {
		return nil, fmt.Errorf("%w: %d entries", ErrTargetNotEmpty, dstStats.Entries)
	}

	if srcStats.Entries == 0 {
		fmt.Fprintf(r.progress, "No entries found in source index (0 entries)\n")
		return &Result{}, nil
	}

	fmt.Fprintf(r.progress, "Starting rebuild of %d entries from %d documents (batch size: %d)\n",
		srcStats.Entries, srcStats.Documents, r.iterator.batchSize)

	tracker := NewProgressTracker(r.progress, srcStats.Entries, r.config.ReportInterval)
	tracker.Start()

	keys := make(map[core.PageKey]struct{})
	err = r.iterator.ForEach(ctx, func(entries []core.IndexEntry) error {
		if err := r.processor.Process(ctx, entries); err != nil {
			return fmt.Errorf("failed to process batch: %w", err)
		}
		for i := range entries {
			for _, k := range entries[i].Chunk.Keys() {
				keys[k] = struct{}{}
			}
		}
		tracker.BatchDone(len(entries))
		return nil
	})
	tracker.Finish()
	if err != nil {
		items, batches := tracker.Done()
		r.logger.Error("rebuild failed", "entries", items, "batches", batches, "err", err)
		return nil, err
	}

	images, err := r.copyImages(ctx, keys)
	if err != nil {
		return nil, err
	}

	items, batches := tracker.Done()
	result := &Result{
		Entries:  items,
		Images:   images,
		Batches:  batches,
		Duration: tracker.Elapsed(),
	}

	fmt.Fprintf(r.progress, "Rebuild complete. Processed %d entries and %d images in %v (%.1f entries/sec)\n",
		result.Entries, result.Images, result.Duration.Round(time.Millisecond),
		float64(result.Entries)/max(result.Duration.Seconds(), 1e-9))
	return result, nil
}

func (r *Reembedder) copyImages(ctx context.Context, keys map[core.PageKey]struct{}) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	list := make([]core.PageKey, 0, len(keys))
	for k := range keys {
		list = append(list, k)
	}

	refs, err := r.source.ImagesFor(ctx, list)
	if err != nil {
		return 0, fmt.Errorf("failed to read source images: %w", err)
	}
	if len(refs) == 0 {
		return 0, nil
	}
	if err := r.target.AddImages(ctx, refs...); err != nil {
		return 0, fmt.Errorf("failed to add images: %w", err)
	}
	return len(refs), nil
}
