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
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/poiesic/docqa/ai"
	"github.com/poiesic/docqa/core"
)

// Extractor turns a file into a SourceDocument.
type Extractor interface {
	// Supports reports whether files with the extension can be extracted.
	Supports(ext string) bool

	// Extract reads the file at path using the strategy for ext.
	Extract(ctx context.Context, path, ext string) (*core.SourceDocument, error)
}

// Chunker splits a document into retrieval chunks.
type Chunker interface {
	Chunk(doc *core.SourceDocument) []core.Chunk
}

// processor is an internal interface for preparing one document for the index.
// It does not touch the index, so documents can be prepared concurrently.
type processor interface {
	process(ctx context.Context, path string) (*preparedDocument, error)
}

// preparedDocument is everything a document contributes to the index.
type preparedDocument struct {
	doc     *core.SourceDocument
	entries []core.IndexEntry
	images  []core.ImageRef
}

// documentProcessor turns one file into index entries.
type documentProcessor struct {
	extractor Extractor
	chunker   Chunker
	embedder  ai.Embedder
	logger    *slog.Logger
}

var _ processor = (*documentProcessor)(nil)

func (dp *documentProcessor) process(ctx context.Context, path string) (*preparedDocument, error) {
	doc, err := dp.extractor.Extract(ctx, path, filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	prepared := &preparedDocument{doc: doc}
	for _, page := range doc.Pages {
		prepared.images = append(prepared.images, page.Images...)
	}

	chunks := dp.chunker.Chunk(doc)
	if len(chunks) == 0 {
		dp.logger.Warn("document has no text", "document", path, "pages", len(doc.Pages))
		return prepared, nil
	}

	texts := make([]string, len(chunks))
	for i := range chunks {
		texts[i] = chunks[i].Text
	}

	dp.logger.Debug("generating embeddings for chunks", "document", path, "chunks", len(chunks))
	vectors, err := dp.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: expected %d vectors, received %d",
			core.ErrEmbeddingService, len(chunks), len(vectors))
	}

	prepared.entries = make([]core.IndexEntry, len(chunks))
	for i := range chunks {
		prepared.entries[i] = core.IndexEntry{
			Chunk:    chunks[i],
			Vector:   vectors[i],
			Metadata: entryMetadata(doc, &chunks[i]),
		}
	}
	return prepared, nil
}

func entryMetadata(doc *core.SourceDocument, c *core.Chunk) map[string]string {
	meta := map[string]string{
		core.MetaSource: doc.Name,
		core.MetaPage:   core.PageList(c.Pages),
	}
	if doc.ReportID != "" {
		meta[core.MetaReportID] = doc.ReportID
	}
	return meta
}

// isHidden reports whether any element of a path relative to the input root
// starts with a dot.
func isHidden(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if len(part) > 1 && strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return false
}
