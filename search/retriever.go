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


package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
)

// DefaultTopK is the number of chunks retrieved when no k is configured.
const DefaultTopK = 10

// Retriever answers questions with the most similar indexed chunks and the
// images found on the same pages.
type Retriever struct {
	index     storage.Index
	embedder  ai.Embedder
	topK      int
	threshold float32
	logger    *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithTopK sets the default number of chunks returned by Retrieve.
func WithTopK(k int) Option {
	return func(r *Retriever) error {
		if k < 1 {
			return fmt.Errorf("%w: top k must be at least 1, got %d", core.ErrInvalidConfiguration, k)
		}
		r.topK = k
		return nil
	}
}

// WithScoreThreshold drops chunks scoring below minScore. Zero disables the threshold.
func WithScoreThreshold(minScore float32) Option {
	return func(r *Retriever) error {
		if minScore < -1 || minScore > 1 {
			return fmt.Errorf("%w: score threshold must be within [-1, 1], got %v", core.ErrInvalidConfiguration, minScore)
		}
		r.threshold = minScore
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a retriever over index using embedder for questions.
// The embedder must be the one the index was built with.
func NewRetriever(index storage.Index, embedder ai.Embedder, opts ...Option) (*Retriever, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	r := &Retriever{
		index:    index,
		embedder: embedder,
		topK:     DefaultTopK,
		logger:   slog.Default().With("component", "retriever"),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// TopK returns the configured default k.
func (r *Retriever) TopK() int {
	return r.topK
}

// Retrieve returns the configured number of chunks for question.
func (r *Retriever) Retrieve(ctx context.Context, question string) (*core.RetrievalResult, error) {
	return r.RetrieveWithMonitor(ctx, question, r.topK, nil)
}

// RetrieveK returns up to k chunks for question.
func (r *Retriever) RetrieveK(ctx context.Context, question string, k int) (*core.RetrievalResult, error) {
	return r.RetrieveWithMonitor(ctx, question, k, nil)
}

// RetrieveWithMonitor retrieves up to k chunks for question, reporting each
// stage to monitor. Chunks are ordered by descending score; images are those
// whose document and page equal those of a returned chunk, ordered by
// document, page and index.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, question string, k int, monitor RetrievalMonitor) (*core.RetrievalResult, error) {
	// Use noop monitor if none provided
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	// validated before any upstream call
	if err := core.ValidateQuestion(question); err != nil {
		return nil, err
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be at least 1, got %d", core.ErrInvalidQuery, k)
	}
	question = strings.TrimSpace(question)
	monitor.Start(question, k)

	stats, err := r.index.Stats(ctx)
	if err != nil {
		return nil, err
	}
	if stats.Entries == 0 {
		return nil, core.ErrNothingIndexed
	}

	vector, err := r.embedder.EmbedText(ctx, question)
	if err != nil {
		r.logger.Error("error generating embedding for question", "err", err)
		return nil, wrapEmbeddingError(err)
	}
	monitor.AfterEmbedding(len(vector))

	chunks, err := r.index.Search(ctx, vector, k)
	if err != nil {
		r.logger.Error("error searching index", "err", err)
		return nil, err
	}
	monitor.AfterSearch(chunks)

	if r.threshold != 0 {
		kept := chunks[:0]
		for _, c := range chunks {
			if c.Score >= r.threshold {
				kept = append(kept, c)
			}
		}
		monitor.AfterThreshold(len(kept), len(chunks)-len(kept))
		chunks = kept
	}

	keys := make([]core.PageKey, 0, len(chunks))
	for i := range chunks {
		keys = append(keys, chunks[i].Chunk.Keys()...)
	}
	images, err := r.index.ImagesFor(ctx, keys)
	if err != nil {
		r.logger.Error("error collecting images", "err", err)
		return nil, err
	}
	monitor.AfterImageJoin(images)

	result := &core.RetrievalResult{
		Question: question,
		Chunks:   chunks,
		Images:   images,
	}
	r.logger.Debug("retrieved", "chunks", len(chunks), "images", len(images))
	monitor.Finish(result)
	return result, nil
}

func wrapEmbeddingError(err error) error {
	if errors.Is(err, core.ErrEmbeddingService) {
		return err
	}
	return fmt.Errorf("%w: %w", core.ErrEmbeddingService, err)
}
