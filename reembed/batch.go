package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
)

// BatchProcessor embeds the text of a batch of entries with a new model and
// adds the resulting entries to the target index.
type BatchProcessor struct {
	target         storage.Index
	embedder       ai.Embedder
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewBatchProcessor creates a new batch processor.
// maxRetries: maximum number of attempts for each embedding call
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(target storage.Index, embedder ai.Embedder, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		target:         target,
		embedder:       embedder,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// Process re-embeds entries and writes them to the target. The input entries
// are not modified.
func (bp *BatchProcessor) Process(ctx context.Context, entries []core.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	texts := make([]string, len(entries))
	for i := range entries {
		texts[i] = entries[i].Chunk.Text
	}

	var embeddings [][]float32
	err := ai.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(entries) {
		return fmt.Errorf("%w: expected %d vectors, got %d", core.ErrEmbeddingService, len(entries), len(embeddings))
	}

	out := make([]core.IndexEntry, len(entries))
	for i := range entries {
		out[i] = core.IndexEntry{
			Chunk:    entries[i].Chunk,
			Vector:   embeddings[i],
			Metadata: entries[i].Metadata,
		}
	}

	if err := bp.target.Add(ctx, out...); err != nil {
		return fmt.Errorf("failed to add entries: %w", err)
	}
	return nil
}
