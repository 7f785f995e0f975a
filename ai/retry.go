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


package ai

import (
	"context"
	"log/slog"
	"time"
)

// RetryWithBackoff retries an operation with exponential backoff.
// maxAttempts: maximum number of attempts (must be > 0)
// baseDelay: base delay between retries (doubles on each retry)
// Returns the error from the last attempt if all attempts fail.
func RetryWithBackoff(ctx context.Context, operation func() error, maxAttempts int, baseDelay time.Duration) error {
	if maxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}

	var lastErr error
	delay := baseDelay
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = operation()
		if lastErr == nil {
			if attempt > 1 {
				slog.Debug("operation succeeded after retry", "attempt", attempt)
			}
			return nil
		}

		if attempt == maxAttempts {
			break
		}
		slog.Debug("operation failed, will retry", "attempt", attempt, "maxAttempts", maxAttempts, "delay", delay, "error", lastErr)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}

	return lastErr
}

// RetryingEmbedder retries failed embedding calls with exponential backoff.
// Each call is all-or-nothing, so a retried batch never yields partial output.
type RetryingEmbedder struct {
	inner       Embedder
	maxAttempts int
	baseDelay   time.Duration
}

var _ Embedder = (*RetryingEmbedder)(nil)

// NewRetryingEmbedder wraps inner so each call is attempted up to maxAttempts times.
func NewRetryingEmbedder(inner Embedder, maxAttempts int, baseDelay time.Duration) (*RetryingEmbedder, error) {
	if inner == nil {
		return nil, ErrEmbedderRequired
	}
	if maxAttempts <= 0 {
		return nil, ErrInvalidMaxAttempts
	}
	return &RetryingEmbedder{inner: inner, maxAttempts: maxAttempts, baseDelay: baseDelay}, nil
}

// EmbedText embeds a single text, retrying on failure.
func (r *RetryingEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var vector []float32
	err := RetryWithBackoff(ctx, func() error {
		v, err := r.inner.EmbedText(ctx, text)
		if err != nil {
			return err
		}
		vector = v
		return nil
	}, r.maxAttempts, r.baseDelay)
	return vector, err
}

// EmbedTexts embeds a batch of texts, retrying the whole batch on failure.
func (r *RetryingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := RetryWithBackoff(ctx, func() error {
		v, err := r.inner.EmbedTexts(ctx, texts)
		if err != nil {
			return err
		}
		vectors = v
		return nil
	}, r.maxAttempts, r.baseDelay)
	return vectors, err
}
