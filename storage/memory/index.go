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


package memory

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
)

// BackendName is the name the memory backend registers under.
const BackendName = "memory"

func init() {
	storage.Register(BackendName, func(path string) (storage.Index, error) {
		return Open(path)
	})
}

type imageKey struct {
	documentID string
	page       int
	index      int
}

// Index is an in-process vector index. Entries live in an append-only slice guarded
// by a RWMutex; every Add publishes its entries under a single write lock.
type Index struct {
	mu        sync.RWMutex
	dim       int
	entries   []core.IndexEntry
	chunkIDs  map[core.ID]struct{}
	documents map[string]struct{}
	images    map[imageKey]core.ImageRef
	byPage    map[core.PageKey][]imageKey
	closed    bool
	logger    *slog.Logger
}

var _ storage.Index = (*Index)(nil)

// New creates an empty index.
func New() *Index {
	return &Index{
		chunkIDs:  make(map[core.ID]struct{}),
		documents: make(map[string]struct{}),
		images:    make(map[imageKey]core.ImageRef),
		byPage:    make(map[core.PageKey][]imageKey),
		logger:    slog.Default().With("component", "memory-index"),
	}
}

// Open loads the snapshot at path, or returns an empty index when path is empty
// or does not exist yet.
func Open(path string) (*Index, error) {
	if path == "" {
		return New(), nil
	}
	idx, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return New(), nil
	}
	return idx, err
}

// Load reads a snapshot written by Persist.
func Load(path string) (*Index, error) {
	snap, err := storage.ReadSnapshotFile(path)
	if err != nil {
		return nil, err
	}
	idx := FromSnapshot(snap)
	idx.logger.Info("index loaded", "path", path, "entries", len(idx.entries), "images", len(idx.images))
	return idx, nil
}

// FromSnapshot builds an index from decoded snapshot contents.
// Vectors in a snapshot are already normalised.
func FromSnapshot(snap *storage.Snapshot) *Index {
	idx := New()
	idx.dim = snap.Dimension
	for _, e := range snap.Entries {
		idx.appendEntry(e)
	}
	for _, r := range snap.Images {
		idx.putImage(r)
	}
	return idx
}

// Add implements storage.Index.
func (idx *Index) Add(ctx context.Context, entries ...core.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return storage.ErrStorageClosed
	}

	prepared, dim, err := storage.PrepareEntries(idx.dim, entries)
	if err != nil {
		return err
	}
	idx.dim = dim
	for _, e := range prepared {
		idx.appendEntry(e)
	}
	return nil
}

func (idx *Index) appendEntry(e core.IndexEntry) {
	if _, dup := idx.chunkIDs[e.Chunk.ID]; dup {
		return
	}
	idx.chunkIDs[e.Chunk.ID] = struct{}{}
	idx.documents[e.Chunk.DocumentID] = struct{}{}
	idx.entries = append(idx.entries, e)
}

// AddImages implements storage.Index.
func (idx *Index) AddImages(ctx context.Context, refs ...core.ImageRef) error {
	for i := range refs {
		if err := core.ValidateImageRef(&refs[i]); err != nil {
			return err
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return storage.ErrStorageClosed
	}
	for _, r := range refs {
		idx.putImage(r)
	}
	return nil
}

func (idx *Index) putImage(r core.ImageRef) {
	key := imageKey{documentID: r.DocumentID, page: r.Page, index: r.Index}
	if _, exists := idx.images[key]; !exists {
		pk := r.Key()
		idx.byPage[pk] = append(idx.byPage[pk], key)
	}
	idx.images[key] = r
}

// Search implements storage.Index.
func (idx *Index) Search(ctx context.Context, vector []float32, k int) ([]core.ScoredChunk, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, storage.ErrStorageClosed
	}
	if err := storage.CheckQuery(idx.dim, vector, k); err != nil {
		return nil, err
	}
	if len(idx.entries) == 0 {
		return []core.ScoredChunk{}, nil
	}

	query := storage.NormalizeVector(vector)
	results := make([]core.ScoredChunk, len(idx.entries))
	for i := range idx.entries {
		results[i] = storage.Score(query, &idx.entries[i])
	}
	return storage.TopK(results, k), nil
}

// ImagesFor implements storage.Index.
func (idx *Index) ImagesFor(ctx context.Context, keys []core.PageKey) ([]core.ImageRef, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, storage.ErrStorageClosed
	}

	seen := make(map[core.PageKey]struct{}, len(keys))
	refs := []core.ImageRef{}
	for _, pk := range keys {
		if _, done := seen[pk]; done {
			continue
		}
		seen[pk] = struct{}{}
		for _, key := range idx.byPage[pk] {
			refs = append(refs, idx.images[key])
		}
	}
	storage.SortImages(refs)
	return refs, nil
}

// Scan implements storage.Index. The entries visible when Scan starts are visited;
// entries added during the scan are not.
func (idx *Index) Scan(ctx context.Context, fn func(core.IndexEntry) error) error {
	idx.mu.RLock()
	if idx.closed {
		idx.mu.RUnlock()
		return storage.ErrStorageClosed
	}
	entries := idx.entries[:len(idx.entries):len(idx.entries)]
	idx.mu.RUnlock()

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// HasDocument implements storage.Index.
func (idx *Index) HasDocument(ctx context.Context, documentID string) (bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return false, storage.ErrStorageClosed
	}
	_, ok := idx.documents[documentID]
	return ok, nil
}

// Stats implements storage.Index.
func (idx *Index) Stats(ctx context.Context) (storage.Stats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return storage.Stats{}, storage.ErrStorageClosed
	}
	return storage.Stats{
		Backend:   BackendName,
		Entries:   len(idx.entries),
		Images:    len(idx.images),
		Documents: len(idx.documents),
		Dimension: idx.dim,
	}, nil
}

// Persist implements storage.Index.
func (idx *Index) Persist(ctx context.Context, path string) error {
	idx.mu.RLock()
	if idx.closed {
		idx.mu.RUnlock()
		return storage.ErrStorageClosed
	}
	snap := &storage.Snapshot{
		Dimension: idx.dim,
		Entries:   idx.entries[:len(idx.entries):len(idx.entries)],
		Images:    make([]core.ImageRef, 0, len(idx.images)),
	}
	for _, r := range idx.images {
		snap.Images = append(snap.Images, r)
	}
	idx.mu.RUnlock()

	storage.SortImages(snap.Images)
	if err := storage.WriteSnapshotFile(path, snap); err != nil {
		return err
	}
	idx.logger.Info("index persisted", "path", path, "entries", len(snap.Entries), "images", len(snap.Images))
	return nil
}

// Close implements storage.Index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	return nil
}
