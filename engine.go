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


package docqa

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/ai/openai"
	"github.com/poiesic/docqa/answer"
	"github.com/poiesic/docqa/chunk"
	"github.com/poiesic/docqa/config"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/extract"
	"github.com/poiesic/docqa/imagestore"
	"github.com/poiesic/docqa/ingestion"
	"github.com/poiesic/docqa/search"
	"github.com/poiesic/docqa/storage"
	"github.com/poiesic/docqa/storage/memory"

	_ "github.com/poiesic/docqa/storage/badger"
	_ "github.com/poiesic/docqa/storage/sqlite"
)

// Engine wires the pipeline together from a configuration. Every stage shares
// one index and one AI provider.
type Engine struct {
	cfg       *config.Config
	index     storage.Index
	provider  ai.AIProvider
	images    *imagestore.Store
	pipeline  *ingestion.Pipeline
	retriever *search.Retriever
	synth     *answer.Synthesizer
	logger    *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*engineOptions)

type engineOptions struct {
	apiKey   string
	provider ai.AIProvider
	index    storage.Index
	logger   *slog.Logger
}

// WithAPIKey sets the bearer token for the OpenAI-compatible provider.
func WithAPIKey(key string) EngineOption {
	return func(o *engineOptions) {
		o.apiKey = key
	}
}

// WithProvider uses provider instead of building one from the configuration.
// The engine takes ownership and closes it.
func WithProvider(provider ai.AIProvider) EngineOption {
	return func(o *engineOptions) {
		o.provider = provider
	}
}

// WithIndex uses index instead of opening the configured backend.
// The engine takes ownership and closes it.
func WithIndex(index storage.Index) EngineOption {
	return func(o *engineOptions) {
		o.index = index
	}
}

// WithLogger sets the logger handed to every stage.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// NewEngine builds an engine from cfg. A nil cfg selects config.Default.
// Opening a corrupt persisted index fails with core.ErrCorruptIndex.
func NewEngine(cfg *config.Config, opts ...EngineOption) (_ *Engine, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &engineOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	e := &Engine{
		cfg:      cfg,
		provider: options.provider,
		index:    options.index,
		logger:   options.logger.With("component", "engine"),
	}
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	if e.provider == nil {
		aiCfg := cfg.AIConfig(options.apiKey)
		if e.provider, err = openai.NewProvider(aiCfg); err != nil {
			return nil, err
		}
	}

	if e.index == nil {
		if e.index, err = storage.Open(cfg.Index); err != nil {
			return nil, err
		}
	}

	var extractOpts []extract.Option
	extractOpts = append(extractOpts, extract.WithLogger(options.logger.With("component", "extractor")))
	if cfg.Images.Enabled {
		e.images, err = imagestore.New(cfg.Images.Dir,
			imagestore.WithMaxDimension(cfg.Images.MaxDimension),
			imagestore.WithLogger(options.logger.With("component", "imagestore")))
		if err != nil {
			return nil, err
		}
		extractOpts = append(extractOpts, extract.WithImageSink(e.images))
	}
	extractor, err := extract.New(cfg.Extract.Strategies, extractOpts...)
	if err != nil {
		return nil, err
	}

	chunker, err := chunk.NewChunker(
		chunk.WithChunkSize(cfg.Chunking.Size),
		chunk.WithOverlap(cfg.Chunking.Overlap),
		chunk.WithTolerance(cfg.Chunking.Tolerance),
		chunk.WithLogger(options.logger.With("component", "chunker")),
	)
	if err != nil {
		return nil, err
	}

	embedder := e.provider.Embedder()
	e.pipeline, err = ingestion.NewPipeline(e.index, extractor, chunker, embedder,
		ingestion.WithPoolSize(cfg.Processing.Workers),
		ingestion.WithLogger(options.logger.With("component", "ingestion")),
	)
	if err != nil {
		return nil, err
	}

	e.retriever, err = search.NewRetriever(e.index, embedder,
		search.WithTopK(cfg.Retrieval.K),
		search.WithScoreThreshold(cfg.Retrieval.ScoreThreshold),
		search.WithLogger(options.logger.With("component", "retriever")),
	)
	if err != nil {
		return nil, err
	}

	e.synth, err = answer.NewSynthesizer(e.provider.Completer(),
		answer.WithMaxContextChars(cfg.Synthesis.MaxContextChars),
		answer.WithLogger(options.logger.With("component", "synthesizer")),
	)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("engine ready",
		"backend", cfg.Index.Backend,
		"index_path", cfg.Index.Path,
		"images", cfg.Images.Enabled,
		"extensions", extractor.Extensions())
	return e, nil
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Index returns the vector index.
func (e *Engine) Index() storage.Index {
	return e.index
}

// Images returns the image store, or nil when image storage is disabled.
func (e *Engine) Images() *imagestore.Store {
	return e.images
}

// Pipeline returns the ingestion pipeline.
func (e *Engine) Pipeline() *ingestion.Pipeline {
	return e.pipeline
}

// Embedder returns the embedding service of the provider.
func (e *Engine) Embedder() ai.Embedder {
	return e.provider.Embedder()
}

// IngestDirectory ingests every supported file below dir. An empty dir
// selects the configured input directory.
func (e *Engine) IngestDirectory(ctx context.Context, dir string) (*ingestion.Report, error) {
	if dir == "" {
		dir = e.cfg.InputDir
	}
	return e.pipeline.IngestDirectory(ctx, dir)
}

// IngestFiles ingests the given files in order.
func (e *Engine) IngestFiles(ctx context.Context, paths []string) (*ingestion.Report, error) {
	return e.pipeline.IngestFiles(ctx, paths)
}

// Watcher returns a watcher that ingests changes below dir. An empty dir
// selects the configured input directory.
func (e *Engine) Watcher(dir string, opts ...ingestion.WatcherOption) *ingestion.Watcher {
	if dir == "" {
		dir = e.cfg.InputDir
	}
	return ingestion.NewWatcher(e.pipeline, dir, opts...)
}

// Retrieve returns the k chunks most similar to question and their images.
// A k of zero selects the configured default.
func (e *Engine) Retrieve(ctx context.Context, question string, k int) (*core.RetrievalResult, error) {
	if k == 0 {
		return e.retriever.Retrieve(ctx, question)
	}
	return e.retriever.RetrieveK(ctx, question, k)
}

// Ask retrieves context for question and synthesizes an answer from it.
func (e *Engine) Ask(ctx context.Context, question string, k int) (*core.Answer, error) {
	result, err := e.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}
	return e.synth.Synthesize(ctx, result)
}

// Stats returns index statistics.
func (e *Engine) Stats(ctx context.Context) (storage.Stats, error) {
	return e.index.Stats(ctx)
}

// Persist writes the in-memory index to its configured snapshot file.
// Persistent backends write through on every Add, so this is a no-op for them.
func (e *Engine) Persist(ctx context.Context) error {
	if e.cfg.Index.Backend != memory.BackendName || e.cfg.Index.Path == "" {
		return nil
	}
	if err := e.index.Persist(ctx, e.cfg.Index.Path); err != nil {
		return err
	}
	e.logger.Info("index persisted", "path", e.cfg.Index.Path)
	return nil
}

// Close releases everything the engine opened.
func (e *Engine) Close() error {
	var errs []error
	if e.pipeline != nil {
		e.pipeline.Release()
	}
	if e.index != nil {
		if err := e.index.Close(); err != nil {
			e.logger.Error("error closing index", "err", err)
			errs = append(errs, err)
		}
	}
	if e.provider != nil {
		if err := e.provider.Close(); err != nil {
			e.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
