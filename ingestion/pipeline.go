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


package ingestion

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
)

// Pipeline orchestrates the ingestion of source files into an index.
type Pipeline struct {
	index     storage.Index
	extractor Extractor
	pool      *ants.Pool
	proc      processor
	progress  func(DocumentResult)
	logger    *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the number of documents processed concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithProgress registers a function called once per document, in input order,
// after the document has been committed or has failed.
func WithProgress(fn func(DocumentResult)) Option {
	return func(p *Pipeline) error {
		p.progress = fn
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline writing to index.
func NewPipeline(
	index storage.Index,
	extractor Extractor,
	chunker Chunker,
	embedder ai.Embedder,
	opts ...Option,
) (*Pipeline, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if chunker == nil {
		return nil, ErrChunkerRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	poolSize := max(runtime.NumCPU()/2, 1)
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		index:     index,
		extractor: extractor,
		pool:      pool,
		logger:    slog.Default().With("component", "ingestion"),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	p.proc = &documentProcessor{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		logger:    p.logger,
	}
	return p, nil
}

// IngestDirectory ingests every supported file under dir, recursing into
// subdirectories and skipping hidden files and directories. Files are taken in
// lexical path order.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) (*Report, error) {
	paths, err := p.SupportedFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		p.logger.Warn("no supported files found", "dir", dir)
	}
	return p.IngestFiles(ctx, paths)
}

// SupportedFiles lists the files under dir that the extractor supports.
func (p *Pipeline) SupportedFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr == nil && rel != "." && isHidden(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && p.extractor.Supports(filepath.Ext(path)) {
			paths = append(paths, path)
		}
		return nil
	})
	return paths, err
}

// IngestFiles ingests paths. Documents are prepared concurrently on the worker
// pool and committed to the index in the order given. A document that fails is
// recorded in the report and does not stop the others; the returned error is
// reserved for failures of the run itself.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string) (*Report, error) {
	report := &Report{
		RunID:     uuid.NewString(),
		Started:   time.Now().UTC(),
		Documents: make([]DocumentResult, len(paths)),
	}
	logger := p.logger.With("run", report.RunID)
	logger.Info("ingestion started", "documents", len(paths))

	gate := newTurnstile(len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		report.Documents[i].Path = path

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			p.ingestOne(ctx, i, gate, &report.Documents[i], logger)
		})
		if err != nil {
			wg.Done()
			// nothing waits on the remaining slots once submission stops
			for j := i; j < len(paths); j++ {
				report.Documents[j].Path = paths[j]
				report.Documents[j].Err = err
				gate.pass(j)
			}
			wg.Wait()
			report.Finished = time.Now().UTC()
			return report, fmt.Errorf("submitting %s: %w", path, err)
		}
	}
	wg.Wait()

	report.Finished = time.Now().UTC()
	logger.Info("ingestion finished",
		"documents", len(paths),
		"succeeded", report.Succeeded(),
		"skipped", report.Skipped(),
		"failed", len(report.Failed()),
		"chunks", report.Chunks(),
		"images", report.Images(),
		"duration", report.Duration())
	return report, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, i int, gate *turnstile, res *DocumentResult, logger *slog.Logger) {
	start := time.Now()
	// Documents are keyed by path and the index is append-only, so a path
	// that is already indexed is left alone even when the file has changed.
	indexed, err := p.index.HasDocument(ctx, res.Path)
	var prepared *preparedDocument
	if err == nil && !indexed {
		prepared, err = p.proc.process(ctx, res.Path)
	}

	gate.wait(i)
	defer gate.pass(i)

	if err == nil {
		err = ctx.Err()
	}
	if err == nil && !indexed {
		err = p.commit(ctx, prepared)
	}

	res.Duration = time.Since(start)
	switch {
	case err != nil:
		res.Err = err
		logger.Error("document failed", "document", res.Path, "err", err)
	case indexed:
		res.Skipped = true
		logger.Warn("document already indexed; rebuild the index to pick up changes",
			"document", res.Path)
	default:
		res.Pages = len(prepared.doc.Pages)
		res.Chunks = len(prepared.entries)
		res.Images = len(prepared.images)
		res.UnreadablePages = prepared.doc.Unreadable
		if len(res.UnreadablePages) > 0 {
			logger.Warn("document indexed with unreadable pages",
				"document", res.Path,
				"unreadable", core.PageList(res.UnreadablePages))
		}
		logger.Info("document indexed",
			"document", res.Path,
			"pages", res.Pages,
			"chunks", res.Chunks,
			"images", res.Images,
			"duration", res.Duration)
	}
	if p.progress != nil {
		p.progress(*res)
	}
}

// commit writes a prepared document. Entries go first so a document's images
// are only visible once its text is searchable.
func (p *Pipeline) commit(ctx context.Context, prepared *preparedDocument) error {
	if len(prepared.entries) > 0 {
		if err := p.index.Add(ctx, prepared.entries...); err != nil {
			return err
		}
	}
	if len(prepared.images) > 0 {
		if err := p.index.AddImages(ctx, prepared.images...); err != nil {
			return fmt.Errorf("recording images: %w", err)
		}
	}
	return nil
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
