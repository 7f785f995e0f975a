package storage

import (
	"fmt"
	"math"
	"slices"

	"github.com/poiesic/docqa/core"
)

// NormalizeVector returns a unit-length copy of v. A zero vector is copied unchanged.
func NormalizeVector(v []float32) []float32 {
	out := make([]float32, len(v))
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		copy(out, v)
		return out
	}
	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// DotProduct calculates the dot product of two vectors.
// For unit vectors this is their cosine similarity.
func DotProduct(a, b []float32) float32 {
	var sum float32
	minLen := min(len(a), len(b))
	for i := 0; i < minLen; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// PrepareEntries validates entries against the index dimension and returns copies with
// normalised vectors. dim is zero for an empty index. The returned dimension is the one
// the index has after the entries are inserted.
func PrepareEntries(dim int, entries []core.IndexEntry) ([]core.IndexEntry, int, error) {
	prepared := make([]core.IndexEntry, len(entries))
	for i := range entries {
		e := &entries[i]
		if err := core.ValidateIndexEntry(e); err != nil {
			return nil, dim, err
		}
		if dim == 0 {
			dim = len(e.Vector)
		}
		if len(e.Vector) != dim {
			return nil, dim, fmt.Errorf("%w: entry %d has %d dimensions, index has %d",
				core.ErrDimensionMismatch, i, len(e.Vector), dim)
		}
		prepared[i] = core.IndexEntry{
			Chunk:    e.Chunk,
			Vector:   NormalizeVector(e.Vector),
			Metadata: e.Metadata,
		}
	}
	return prepared, dim, nil
}

// CheckQuery validates a search request against an index of dimension dim.
func CheckQuery(dim int, vector []float32, k int) error {
	if k < 1 {
		return fmt.Errorf("%w: k must be at least 1, got %d", core.ErrInvalidQuery, k)
	}
	if len(vector) == 0 {
		return fmt.Errorf("%w: empty query vector", core.ErrInvalidQuery)
	}
	if dim != 0 && len(vector) != dim {
		return fmt.Errorf("%w: query has %d dimensions, index has %d",
			core.ErrDimensionMismatch, len(vector), dim)
	}
	return nil
}

// Score builds the search result for an entry against a normalised query.
func Score(query []float32, e *core.IndexEntry) core.ScoredChunk {
	return core.ScoredChunk{
		Chunk:    e.Chunk,
		Metadata: e.Metadata,
		Score:    DotProduct(query, e.Vector),
	}
}

// TopK sorts results, which must be in insertion order, by descending score and keeps
// the first k. The sort is stable so equal scores keep insertion order.
func TopK(results []core.ScoredChunk, k int) []core.ScoredChunk {
	slices.SortStableFunc(results, func(a, b core.ScoredChunk) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// SortImages orders image references by document, page and index.
func SortImages(refs []core.ImageRef) {
	slices.SortFunc(refs, CompareImages)
}

// CompareImages orders two image references by document, page and index.
func CompareImages(a, b core.ImageRef) int {
	if a.DocumentID != b.DocumentID {
		if a.DocumentID < b.DocumentID {
			return -1
		}
		return 1
	}
	if a.Page != b.Page {
		return a.Page - b.Page
	}
	return a.Index - b.Index
}
