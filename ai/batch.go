package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docqa/core"
	"golang.org/x/time/rate"
)

// BatchEmbedder splits large inputs into fixed-size batches and sends them to
// the wrapped Embedder on a bounded worker pool. Submissions block while the
// pool is saturated, so excess batches queue instead of failing.
//
// A call either returns one vector per input text, in input order, or an error.
type BatchEmbedder struct {
	inner     Embedder
	batchSize int
	pool      *ants.Pool
	limiter   *rate.Limiter
	logger    *slog.Logger
}

var _ Embedder = (*BatchEmbedder)(nil)

// NewBatchEmbedder wraps inner using the embedding settings from config. Close must be called to release the worker pool.
func NewBatchEmbedder(inner Embedder, config *Config) (*BatchEmbedder, error) {
	if inner == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		return nil, ErrConfigRequired
	}
	if config.EmbeddingBatchSize < 1 || config.MaxConcurrentEmbeddings < 1 {
		return nil, fmt.Errorf("%w: batch size and concurrency must be positive", core.ErrInvalidConfiguration)
	}

	pool, err := ants.NewPool(config.MaxConcurrentEmbeddings)
	if err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		burst := max(int(config.RequestsPerSecond), 1)
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst)
	}

	return &BatchEmbedder{
		inner:     inner,
		batchSize: config.EmbeddingBatchSize,
		pool:      pool,
		limiter:   limiter,
		logger:    slog.Default().With("component", "batch-embedder"),
	}, nil
}

// EmbedText embeds a single text.
func (b *BatchEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := b.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedTexts embeds texts in batches of at most the configured batch size.
func (b *BatchEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	numBatches := (len(texts) + b.batchSize - 1) / b.batchSize
	errs := make([]error, numBatches)

	var wg sync.WaitGroup
	for i := 0; i < numBatches; i++ {
		start := i * b.batchSize
		end := min(start+b.batchSize, len(texts))

		wg.Add(1)
		err := b.pool.Submit(func() {
			defer wg.Done()
			errs[i] = b.embedBatch(ctx, texts[start:end], results[start:end])
		})
		if err != nil {
			wg.Done()
			errs[i] = fmt.Errorf("%w: %w", core.ErrEmbeddingService, err)
			break
		}
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			b.logger.Error("embedding batch failed", "batch", i, "batches", numBatches, "err", err)
			return nil, err
		}
	}
	return results, nil
}

func (b *BatchEmbedder) embedBatch(ctx context.Context, texts []string, out [][]float32) error {
	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: %w", core.ErrEmbeddingService, err)
		}
	}

	vectors, err := b.inner.EmbedTexts(ctx, texts)
	if err != nil {
		return wrapEmbeddingError(err)
	}
	if len(vectors) != len(texts) {
		return fmt.Errorf("%w: got %d vectors for %d texts", core.ErrEmbeddingService, len(vectors), len(texts))
	}
	for i, v := range vectors {
		if len(v) == 0 {
			return fmt.Errorf("%w: empty vector for input %d", core.ErrEmbeddingService, i)
		}
	}
	copy(out, vectors)
	return nil
}

// Close releases the worker pool. Calls after Close fail.
func (b *BatchEmbedder) Close() error {
	b.pool.Release()
	return nil
}

func wrapEmbeddingError(err error) error {
	if errors.Is(err, core.ErrEmbeddingService) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrEmbeddingService, err)
}
