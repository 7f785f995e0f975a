package storage

import (
	"context"

	"github.com/poiesic/docqa/core"
)

// Index stores embedded chunks and the images extracted alongside them and answers
// nearest-neighbour queries over the chunk vectors.
// Implementations must be thread-safe and support concurrent access; writes are
// serialised and each Add becomes visible to readers as a unit.
type Index interface {
	// Add inserts entries in order. Vectors are normalised before they are stored.
	// Every vector must match the dimension of the index (or of the first entry for an
	// empty index); on mismatch ErrDimensionMismatch is returned and nothing is inserted.
	// Entries whose chunk ID is already present are skipped.
	Add(ctx context.Context, entries ...core.IndexEntry) error

	// AddImages records image metadata. An image with the same document, page and
	// index replaces the previous record.
	AddImages(ctx context.Context, refs ...core.ImageRef) error

	// Search returns up to k entries ranked by cosine similarity to vector, highest
	// first. Ties keep insertion order. An empty index yields an empty result.
	Search(ctx context.Context, vector []float32, k int) ([]core.ScoredChunk, error)

	// ImagesFor returns the images whose (document, page) matches one of keys,
	// ordered by document, page and index.
	ImagesFor(ctx context.Context, keys []core.PageKey) ([]core.ImageRef, error)

	// Scan calls fn for every entry in insertion order. Iteration stops at the
	// first error fn returns.
	Scan(ctx context.Context, fn func(core.IndexEntry) error) error

	// HasDocument reports whether any entry of documentID has been added.
	// The index is append-only, so a document is ingested once; picking up
	// edits means rebuilding the index.
	HasDocument(ctx context.Context, documentID string) (bool, error)

	// Stats reports the size of the index.
	Stats(ctx context.Context) (Stats, error)

	// Persist writes a portable snapshot of the index to path.
	Persist(ctx context.Context, path string) error

	// Close releases resources. Operations after Close return ErrStorageClosed.
	Close() error
}

// Stats describes the contents of an Index.
type Stats struct {
	Backend   string `json:"backend"`
	Entries   int    `json:"entries"`
	Images    int    `json:"images"`
	Documents int    `json:"documents"`
	Dimension int    `json:"dimension"`
}
