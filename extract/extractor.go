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


package extract

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/imagestore"
)

// Strategy names accepted in the extension map.
const (
	StrategyPDF       = "pdf"
	StrategyPDFToText = "pdftotext"
	StrategyDocx      = "docx"
	StrategyText      = "text"
)

// DefaultStrategies maps the supported extensions to their default strategy.
func DefaultStrategies() map[string]string {
	return map[string]string{
		".pdf":  StrategyPDF,
		".docx": StrategyDocx,
		".txt":  StrategyText,
		".md":   StrategyText,
	}
}

// ImageSink receives images found while extracting. ref arrives with its
// document, page and index set; the sink records where the bytes went.
//
// A failed save does not fail the document. Strategies log the error and
// keep the ref with an empty Path, so the image is still listed with its
// page and dimensions.
type ImageSink interface {
	Save(ref *core.ImageRef, img image.Image) error
	SaveEncoded(ref *core.ImageRef, data []byte) error
}

var _ ImageSink = (*imagestore.Store)(nil)

// Strategy reads one kind of file into doc.Pages.
// images is nil when image extraction is disabled.
type Strategy interface {
	Extract(ctx context.Context, doc *core.SourceDocument, images ImageSink) error
}

// Extractor selects a Strategy by file extension and runs it.
type Extractor struct {
	byExt  map[string]Strategy
	images ImageSink
	runner CommandRunner
	logger *slog.Logger
}

// Option is a functional option for configuring an Extractor.
type Option func(*Extractor) error

// WithImageSink enables image extraction into sink.
func WithImageSink(sink ImageSink) Option {
	return func(e *Extractor) error {
		e.images = sink
		return nil
	}
}

// WithCommandRunner replaces the runner used by the pdftotext strategy.
func WithCommandRunner(runner CommandRunner) Option {
	return func(e *Extractor) error {
		e.runner = runner
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extractor) error {
		e.logger = logger
		return nil
	}
}

// New builds an Extractor from an extension to strategy-name map.
// A nil or empty map selects DefaultStrategies. Unknown names fail with
// core.ErrInvalidConfiguration.
func New(strategies map[string]string, opts ...Option) (*Extractor, error) {
	e := &Extractor{
		byExt:  make(map[string]Strategy),
		runner: execRunner{},
		logger: slog.Default().With("component", "extractor"),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}

	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	for ext, name := range strategies {
		s, err := e.newStrategy(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w: %q for %q", core.ErrInvalidConfiguration, ErrUnknownStrategy, name, ext)
		}
		e.byExt[normalizeExt(ext)] = s
	}
	return e, nil
}

func (e *Extractor) newStrategy(name string) (Strategy, error) {
	switch name {
	case StrategyPDF:
		return &PDF{logger: e.logger.With("strategy", name)}, nil
	case StrategyPDFToText:
		return &PDFToText{runner: e.runner}, nil
	case StrategyDocx:
		return &Docx{logger: e.logger.With("strategy", name)}, nil
	case StrategyText:
		return &Text{}, nil
	}
	return nil, ErrUnknownStrategy
}

// Extensions returns the supported extensions, sorted.
func (e *Extractor) Extensions() []string {
	return slices.Sorted(maps.Keys(e.byExt))
}

// Supports reports whether a strategy handles ext.
func (e *Extractor) Supports(ext string) bool {
	_, ok := e.byExt[normalizeExt(ext)]
	return ok
}

// Extract reads path with the strategy for ext. An empty ext is taken from
// the file name. Pages come back in source order, numbered from 1.
func (e *Extractor) Extract(ctx context.Context, path, ext string) (*core.SourceDocument, error) {
	if ext == "" {
		ext = filepath.Ext(path)
	}
	strategy, ok := e.byExt[normalizeExt(ext)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrCorruptDocument, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", core.ErrCorruptDocument, path)
	}

	doc := &core.SourceDocument{
		ID:       path,
		Name:     filepath.Base(path),
		ReportID: imagestore.ReportID(path),
	}
	var sink ImageSink
	if e.images != nil {
		sink = &docSink{doc: doc, sink: e.images}
	}

	if err := strategy.Extract(ctx, doc, sink); err != nil {
		e.logger.Warn("extraction failed", "document", path, "err", err)
		return nil, err
	}
	for i := range doc.Pages {
		doc.Pages[i].Number = i + 1
		for j := range doc.Pages[i].Images {
			ref := &doc.Pages[i].Images[j]
			ref.DocumentID = doc.ID
			ref.ReportID = doc.ReportID
			ref.Page = i + 1
		}
	}

	e.logger.Debug("extracted document", "document", path, "pages", len(doc.Pages), "images", doc.ImageCount())
	return doc, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// docSink stamps document identity onto refs before handing them to the
// configured sink.
type docSink struct {
	doc  *core.SourceDocument
	sink ImageSink
}

func (d *docSink) stamp(ref *core.ImageRef) {
	ref.DocumentID = d.doc.ID
	ref.ReportID = d.doc.ReportID
}

func (d *docSink) Save(ref *core.ImageRef, img image.Image) error {
	d.stamp(ref)
	return d.sink.Save(ref, img)
}

func (d *docSink) SaveEncoded(ref *core.ImageRef, data []byte) error {
	d.stamp(ref)
	return d.sink.SaveEncoded(ref, data)
}
