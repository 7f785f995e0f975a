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


// Package storage defines the vector index used by docqa and the pieces shared
// by its backends.
//
// An Index holds embedded chunks (core.IndexEntry) plus the image metadata
// extracted alongside them. Three backends implement it:
//
//   - memory: an in-process slice guarded by a RWMutex, persisted as a snapshot file
//   - badger: a BadgerDB directory with entries keyed by insertion sequence
//   - sqlite: a SQLite database file (modernc.org/sqlite, no cgo)
//
// Backends register themselves on import, the way database/sql drivers do, and
// Open selects one by name:
//
//	import _ "github.com/poiesic/docqa/storage/badger"
//
//	idx, err := storage.Open(storage.Config{Backend: "badger", Path: "./docqa-index"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer idx.Close()
//
// # Search
//
// Vectors are normalised before they are stored, so cosine similarity is a dot
// product. Search is exhaustive; results are ranked by descending score and equal
// scores keep insertion order.
//
// # Snapshots
//
// Persist writes a portable snapshot whatever the backend: the magic "DQIX", a
// format version, the dimension, every entry in insertion order and every image,
// encoded with mus-go. Files are written to a temporary name and renamed into
// place. DecodeSnapshot rejects anything that does not match the layout exactly
// with core.ErrCorruptIndex.
//
// # Thread Safety
//
// All implementations are safe for concurrent use. Writes are serialised and an
// Add is visible to readers either completely or not at all.
package storage
