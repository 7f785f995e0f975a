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


package storage

import (
	"fmt"
	"slices"
	"sync"

	"github.com/poiesic/docqa/core"
)

// DefaultBackend is the backend used when Config.Backend is empty.
const DefaultBackend = "memory"

// Config selects and locates an index backend.
type Config struct {
	// Backend is the registered backend name: memory, badger or sqlite.
	Backend string `yaml:"backend"`

	// Path is the snapshot file (memory), database directory (badger) or
	// database file (sqlite). An empty path opens a volatile index where the
	// backend supports it.
	Path string `yaml:"path"`
}

// OpenFunc opens an index stored at path.
type OpenFunc func(path string) (Index, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]OpenFunc{}
)

// Register makes a backend available to Open. Backends call it from init,
// so a program selects the backends it supports by importing them.
// Register panics if name is registered twice.
func Register(name string, open OpenFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	if open == nil {
		panic("storage: Register open func is nil")
	}
	if _, dup := backends[name]; dup {
		panic("storage: Register called twice for backend " + name)
	}
	backends[name] = open
}

// Backends returns the names of the registered backends, sorted.
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open opens the index described by cfg.
func Open(cfg Config) (Index, error) {
	name := cfg.Backend
	if name == "" {
		name = DefaultBackend
	}

	backendsMu.RLock()
	open, ok := backends[name]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %w %q (registered: %v)",
			core.ErrInvalidConfiguration, ErrUnknownBackend, name, Backends())
	}
	return open(cfg.Path)
}
