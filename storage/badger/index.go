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


package badger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docqa/core"
	"github.com/poiesic/docqa/storage"
)

// BackendName is the name the badger backend registers under.
const BackendName = "badger"

// formatVersion is stored under metaVersionKey; Open refuses other versions.
const formatVersion = 1

func init() {
	storage.Register(BackendName, func(path string) (storage.Index, error) {
		if path == "" {
			return nil, fmt.Errorf("%w: %w", core.ErrInvalidConfiguration, storage.ErrPathRequired)
		}
		return NewIndex(path)
	})
}

// Index implements storage.Index on BadgerDB. Entries are keyed by a big-endian
// insertion sequence so a prefix scan visits them in insertion order.
type Index struct {
	backend *Backend
	seq     *badger.Sequence
	owned   bool

	// mu serialises writers and guards dim and closed
	mu     sync.RWMutex
	dim    int
	closed bool
	logger *slog.Logger
}

var _ storage.Index = (*Index)(nil)

// NewIndex opens or creates a badger index in dir.
// The index owns the backend and closes it on Close.
func NewIndex(dir string) (storage.Index, error) {
	backend, err := OpenBackend(dir, false)
	if err != nil {
		return nil, err
	}
	idx, err := newIndex(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	idx.owned = true
	return idx, nil
}

// NewIndexWithBackend creates an index on an already opened backend.
// The caller remains responsible for closing the backend.
func NewIndexWithBackend(backend *Backend) (storage.Index, error) {
	return newIndex(backend)
}

func newIndex(backend *Backend) (*Index, error) {
	idx := &Index{
		backend: backend,
		logger:  slog.Default().With("component", "badger-index"),
	}
	if err := idx.initMeta(); err != nil {
		return nil, err
	}
	seq, err := backend.GetSequence(entrySeq)
	if err != nil {
		return nil, err
	}
	idx.seq = seq
	return idx, nil
}

// initMeta checks the stored format version, writing it for a fresh database,
// and loads the dimension.
func (idx *Index) initMeta() error {
	return idx.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get([]byte(metaVersionKey))
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
			if err := tx.Set([]byte(metaVersionKey), encodeUint64(formatVersion)); err != nil {
				return err
			}
			return tx.Commit()
		case err != nil:
			return err
		}

		var version uint64
		err = item.Value(func(val []byte) error {
			var ok bool
			if version, ok = decodeUint64(val); !ok {
				return fmt.Errorf("%w: malformed format version", core.ErrCorruptIndex)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if version != formatVersion {
			return fmt.Errorf("%w: unsupported format version %d", core.ErrCorruptIndex, version)
		}

		item, err = tx.Get([]byte(metaDimKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			dim, ok := decodeUint64(val)
			if !ok {
				return fmt.Errorf("%w: malformed dimension", core.ErrCorruptIndex)
			}
			idx.dim = int(dim)
			return nil
		})
	}, true)
}

// Add implements storage.Index. All entries are written in one transaction.
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

	added := 0
	err = idx.backend.WithTx(func(tx *badger.Txn) error {
		if idx.dim == 0 {
			if err := tx.Set([]byte(metaDimKey), encodeUint64(uint64(dim))); err != nil {
				return err
			}
		}

		batch := make(map[core.ID]struct{}, len(prepared))
		for i := range prepared {
			e := &prepared[i]
			chunkKey := makeChunkKey(e.Chunk.ID)
			if _, dup := batch[e.Chunk.ID]; dup {
				continue
			}
			batch[e.Chunk.ID] = struct{}{}

			_, err := tx.Get(chunkKey)
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			seq, err := idx.nextSeq()
			if err != nil {
				return err
			}
			if err := tx.Set(makeEntryKey(seq), storage.MarshalIndexEntry(e)); err != nil {
				return err
			}
			if err := tx.Set(chunkKey, encodeUint64(seq)); err != nil {
				return err
			}
			if err := tx.Set(makeDocumentKey(e.Chunk.DocumentID), nil); err != nil {
				return err
			}
			added++
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return err
	}

	idx.dim = dim
	idx.logger.Debug("entries added", "count", added, "skipped", len(prepared)-added)
	return nil
}

// nextSeq returns the next entry sequence, skipping zero.
func (idx *Index) nextSeq() (uint64, error) {
	seq, err := idx.seq.Next()
	if err != nil {
		return 0, err
	}
	if seq == 0 {
		return idx.seq.Next()
	}
	return seq, nil
}

// AddImages implements storage.Index.
func (idx *Index) AddImages(ctx context.Context, refs ...core.ImageRef) error {
	for i := range refs {
		if err := core.ValidateImageRef(&refs[i]); err != nil {
			return err
		}
	}
	if len(refs) == 0 {
		return nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return storage.ErrStorageClosed
	}

	return idx.backend.WithTx(func(tx *badger.Txn) error {
		for i := range refs {
			if err := tx.Set(makeImageKey(&refs[i]), storage.MarshalImageRef(&refs[i])); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
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

	query := storage.NormalizeVector(vector)
	results := []core.ScoredChunk{}
	err := idx.scanEntries(ctx, func(e *core.IndexEntry) error {
		results = append(results, storage.Score(query, e))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return storage.TopK(results, k), nil
}

// scanEntries decodes every entry in insertion order.
func (idx *Index) scanEntries(ctx context.Context, fn func(*core.IndexEntry) error) error {
	return idx.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var entry *core.IndexEntry
			err := iter.Item().Value(func(val []byte) error {
				var err error
				entry, err = storage.UnmarshalIndexEntry(val)
				return err
			})
			if err != nil {
				return err
			}
			if err := fn(entry); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// ImagesFor implements storage.Index.
func (idx *Index) ImagesFor(ctx context.Context, keys []core.PageKey) ([]core.ImageRef, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return nil, storage.ErrStorageClosed
	}

	refs := []core.ImageRef{}
	seen := make(map[core.PageKey]struct{}, len(keys))
	err := idx.backend.WithTx(func(tx *badger.Txn) error {
		for _, pk := range keys {
			if _, done := seen[pk]; done {
				continue
			}
			seen[pk] = struct{}{}
			if err := collectImages(tx, makePageImagePrefix(pk.DocumentID, pk.Page), &refs); err != nil {
				return err
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	storage.SortImages(refs)
	return refs, nil
}

func collectImages(tx *badger.Txn, prefix []byte, refs *[]core.ImageRef) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		err := iter.Item().Value(func(val []byte) error {
			ref, err := storage.UnmarshalImageRef(val)
			if err != nil {
				return err
			}
			*refs = append(*refs, *ref)
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Scan implements storage.Index.
func (idx *Index) Scan(ctx context.Context, fn func(core.IndexEntry) error) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return storage.ErrStorageClosed
	}
	return idx.scanEntries(ctx, func(e *core.IndexEntry) error {
		return fn(*e)
	})
}

// HasDocument implements storage.Index.
func (idx *Index) HasDocument(ctx context.Context, documentID string) (bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return false, storage.ErrStorageClosed
	}

	found := false
	err := idx.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeDocumentKey(documentID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	}, false)
	return found, err
}

// Stats implements storage.Index.
func (idx *Index) Stats(ctx context.Context) (storage.Stats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return storage.Stats{}, storage.ErrStorageClosed
	}

	stats := storage.Stats{Backend: BackendName, Dimension: idx.dim}
	err := idx.backend.WithTx(func(tx *badger.Txn) error {
		stats.Entries = countKeys(tx, entryPrefix)
		stats.Images = countKeys(tx, imagePrefix)
		stats.Documents = countKeys(tx, documentPrefix)
		return nil
	}, false)
	return stats, err
}

func countKeys(tx *badger.Txn, prefix string) int {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	opts.PrefetchValues = false
	iter := tx.NewIterator(opts)
	defer iter.Close()

	n := 0
	for iter.Rewind(); iter.Valid(); iter.Next() {
		n++
	}
	return n
}

// Persist implements storage.Index by exporting a snapshot file.
func (idx *Index) Persist(ctx context.Context, path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.closed {
		return storage.ErrStorageClosed
	}

	snap := &storage.Snapshot{Dimension: idx.dim}
	err := idx.scanEntries(ctx, func(e *core.IndexEntry) error {
		snap.Entries = append(snap.Entries, *e)
		return nil
	})
	if err != nil {
		return err
	}
	err = idx.backend.WithTx(func(tx *badger.Txn) error {
		return collectImages(tx, []byte(imagePrefix), &snap.Images)
	}, false)
	if err != nil {
		return err
	}
	storage.SortImages(snap.Images)
	return storage.WriteSnapshotFile(path, snap)
}

// Close implements storage.Index.
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return nil
	}
	idx.closed = true

	err := idx.seq.Release()
	if idx.owned {
		err = errors.Join(err, idx.backend.Close())
	}
	return err
}
