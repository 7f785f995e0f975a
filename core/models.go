package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ChunkID derives the identifier of a chunk from its location and text.
// Re-ingesting an unchanged document yields the same IDs; edited text at the
// same location does not.
func ChunkID(documentID string, page, start, end int, text string) ID {
	return IDFromContent(fmt.Sprintf("%s#%d:%d-%d\x00%s", documentID, page, start, end, text))
}

// SourceDocument is a file read once at ingestion time.
type SourceDocument struct {
	ID       string // File path as given to the extractor
	Name     string // Base file name
	ReportID string // Report identifier parsed from the file name, if any
	Pages    []Page

	// Unreadable lists the numbers of pages kept with empty text because
	// their content could not be read.
	Unreadable []int
}

// ImageCount returns the number of images across all pages.
func (d *SourceDocument) ImageCount() int {
	n := 0
	for i := range d.Pages {
		n += len(d.Pages[i].Images)
	}
	return n
}

// Page is a single page of a SourceDocument. Numbers start at 1.
type Page struct {
	Number int
	Text   string
	Images []ImageRef
}

// ImageRef describes an image extracted from a page.
// Width and Height are the original pixel dimensions even when the stored copy was resized.
type ImageRef struct {
	DocumentID string
	Page       int
	Index      int    // Position of the image on its page
	Width      int
	Height     int
	Path       string // Relative to the image directory; empty when bytes were not stored
	Format     string
	ReportID   string
}

// Key returns the (document, page) join key of the image.
func (r *ImageRef) Key() PageKey {
	return PageKey{DocumentID: r.DocumentID, Page: r.Page}
}

// Chunk is a bounded span of page text used as the atomic retrieval unit.
type Chunk struct {
	ID         ID
	DocumentID string
	Pages      []int
	Start      int // Rune offset of the first character in the page text
	End        int // Rune offset one past the last character
	Seq        int // Ordinal of the chunk within its document
	Text       string
}

// Keys returns the (document, page) pairs covered by the chunk.
func (c *Chunk) Keys() []PageKey {
	keys := make([]PageKey, len(c.Pages))
	for i, p := range c.Pages {
		keys[i] = PageKey{DocumentID: c.DocumentID, Page: p}
	}
	return keys
}

// IndexEntry is the unit stored in a vector index.
type IndexEntry struct {
	Chunk    Chunk
	Vector   []float32
	Metadata map[string]string
}

// PageKey identifies a page within a document.
type PageKey struct {
	DocumentID string
	Page       int
}

// ScoredChunk is a chunk returned from a similarity search.
type ScoredChunk struct {
	Chunk    Chunk
	Metadata map[string]string
	Score    float32
}

// RetrievalResult holds the top chunks for a question, descending by score,
// plus the images co-located with them.
type RetrievalResult struct {
	Question string
	Chunks   []ScoredChunk
	Images   []ImageRef
}

// Citation is the metadata of a chunk that was placed in an answer prompt.
type Citation struct {
	ChunkID    ID
	DocumentID string
	Pages      []int
	Score      float32
	Snippet    string
}

// Answer is the synthesized response to a question.
type Answer struct {
	Question  string
	Text      string
	Citations []Citation
	Images    []ImageRef
}

// Metadata keys attached to index entries.
const (
	MetaSource   = "source"
	MetaReportID = "report_id"
	MetaPage     = "page_number"
)

// DocumentName returns the base name used when presenting a document ID.
func DocumentName(documentID string) string {
	return filepath.Base(documentID)
}

// PageList formats page numbers for display, e.g. "3" or "3-4".
func PageList(pages []int) string {
	switch len(pages) {
	case 0:
		return ""
	case 1:
		return fmt.Sprint(pages[0])
	}
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = fmt.Sprint(p)
	}
	if pages[len(pages)-1]-pages[0] == len(pages)-1 {
		return parts[0] + "-" + parts[len(parts)-1]
	}
	return strings.Join(parts, ",")
}
