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


package chunk

import (
	"log/slog"
	"strings"
	"unicode"

	"github.com/poiesic/docqa/core"
)

const (
	// DefaultChunkSize is the maximum chunk length in characters.
	DefaultChunkSize = 1000

	// DefaultOverlap is the number of characters shared by consecutive chunks.
	DefaultOverlap = 200
)

// Chunker splits page text into overlapping, bounded windows.
// A Chunker is immutable after construction and safe for concurrent use.
type Chunker struct {
	size      int
	overlap   int
	tolerance int
	logger    *slog.Logger
}

// Option is a functional option for configuring a Chunker.
type Option func(*Chunker) error

// WithChunkSize sets the maximum chunk length in characters.
func WithChunkSize(n int) Option {
	return func(c *Chunker) error {
		if n < 1 {
			return ErrInvalidChunkSize
		}
		c.size = n
		return nil
	}
}

// WithOverlap sets the number of characters shared by consecutive chunks.
func WithOverlap(n int) Option {
	return func(c *Chunker) error {
		c.overlap = n
		return nil
	}
}

// WithTolerance sets how far before the size limit a break may be taken.
// Zero selects the default of a tenth of the chunk size.
func WithTolerance(n int) Option {
	return func(c *Chunker) error {
		if n < 0 {
			return ErrInvalidTolerance
		}
		c.tolerance = n
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Chunker) error {
		c.logger = logger
		return nil
	}
}

// NewChunker creates a chunker. Without options it uses DefaultChunkSize and
// DefaultOverlap. Overlap must satisfy 0 <= overlap < size.
func NewChunker(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		size:    DefaultChunkSize,
		overlap: DefaultOverlap,
		logger:  slog.Default().With("component", "chunker"),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if c.overlap < 0 || c.overlap >= c.size {
		return nil, ErrInvalidOverlap
	}
	if c.tolerance == 0 {
		c.tolerance = c.size / 10
	}
	c.tolerance = min(c.tolerance, c.size)
	return c, nil
}

// Size returns the configured chunk size.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits every page of doc in page order. Seq numbers run across the
// whole document starting at zero.
func (c *Chunker) Chunk(doc *core.SourceDocument) []core.Chunk {
	var chunks []core.Chunk
	for _, page := range doc.Pages {
		chunks = append(chunks, c.ChunkPage(doc.ID, page, len(chunks))...)
	}
	c.logger.Debug("chunked document", "document", doc.ID, "pages", len(doc.Pages), "chunks", len(chunks))
	return chunks
}

// ChunkPage splits a single page. firstSeq is the Seq assigned to the first
// chunk. Empty or whitespace-only pages produce no chunks.
func (c *Chunker) ChunkPage(documentID string, page core.Page, firstSeq int) []core.Chunk {
	spans := c.Spans(page.Text)
	if len(spans) == 0 {
		return nil
	}

	runes := []rune(page.Text)
	chunks := make([]core.Chunk, len(spans))
	for i, s := range spans {
		text := string(runes[s.Start:s.End])
		chunks[i] = core.Chunk{
			ID:         core.ChunkID(documentID, page.Number, s.Start, s.End, text),
			DocumentID: documentID,
			Pages:      []int{page.Number},
			Start:      s.Start,
			End:        s.End,
			Seq:        firstSeq + i,
			Text:       text,
		}
	}
	return chunks
}

// Span is a half-open rune range [Start, End) within a text.
type Span struct {
	Start int
	End   int
}

// Spans computes chunk boundaries for text.
func (c *Chunker) Spans(text string) []Span {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	n := len(runes)

	var spans []Span
	start := 0
	for {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.breakBefore(runes, start, end)
		}
		spans = append(spans, Span{Start: start, End: end})
		if end == n {
			return spans
		}
		start = end - c.overlap
	}
}

// breakBefore returns the preferred cut position in (start+overlap, limit].
// The lower bound guarantees the next window starts after this one.
func (c *Chunker) breakBefore(runes []rune, start, limit int) int {
	lo := max(limit-c.tolerance, start+c.overlap+1)
	for _, isBreak := range breakLadder {
		for p := limit; p >= lo; p-- {
			if isBreak(runes, p) {
				return p
			}
		}
	}
	return limit
}

// breakLadder lists cut predicates from most to least preferred. A cut at p
// ends the chunk with runes[p-1].
var breakLadder = []func(runes []rune, p int) bool{
	// paragraph
	func(r []rune, p int) bool { return p >= 2 && r[p-1] == '\n' && r[p-2] == '\n' },
	// line
	func(r []rune, p int) bool { return p >= 1 && r[p-1] == '\n' },
	// sentence
	func(r []rune, p int) bool {
		return p >= 2 && unicode.IsSpace(r[p-1]) && strings.ContainsRune(".!?", r[p-2])
	},
	// word
	func(r []rune, p int) bool { return p >= 1 && unicode.IsSpace(r[p-1]) },
}
