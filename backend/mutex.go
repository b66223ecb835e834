// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"sort"
	"sync"
)

// MutexRegistry maps an absolute file path to a mutex, giving per-path
// serial execution of read-modify-write operations (spec §4.A). Entries
// live for process lifetime; contention is bounded by the number of
// distinct files ever touched.
type MutexRegistry struct {
	locks sync.Map // path -> *sync.Mutex
}

// NewMutexRegistry creates an empty registry.
func NewMutexRegistry() *MutexRegistry {
	return &MutexRegistry{}
}

func (r *MutexRegistry) mutexFor(path string) *sync.Mutex {
	m, _ := r.locks.LoadOrStore(path, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// Handle grants exclusive access to one or more paths for the duration of
// one logical operation. Release is idempotent and safe to defer.
type Handle struct {
	mus []*sync.Mutex
}

// Release unlocks every mutex held by the handle, in reverse acquisition
// order. Safe to call multiple times.
func (h *Handle) Release() {
	for i := len(h.mus) - 1; i >= 0; i-- {
		h.mus[i].Unlock()
	}
	h.mus = nil
}

// Acquire locks the mutex for a single path and returns a handle whose
// Release unlocks it. Callers must defer Release on all exit paths
// including failure.
func (r *MutexRegistry) Acquire(path string) *Handle {
	m := r.mutexFor(path)
	m.Lock()
	return &Handle{mus: []*sync.Mutex{m}}
}

// AcquireMany locks the mutexes for a set of paths in lexical order to
// prevent deadlock when a handler must touch more than one file (spec §5).
// Duplicate paths are deduplicated before locking.
func (r *MutexRegistry) AcquireMany(paths ...string) *Handle {
	uniq := make(map[string]struct{}, len(paths))
	var sorted []string
	for _, p := range paths {
		if _, ok := uniq[p]; ok {
			continue
		}
		uniq[p] = struct{}{}
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	h := &Handle{mus: make([]*sync.Mutex, 0, len(sorted))}
	for _, p := range sorted {
		m := r.mutexFor(p)
		m.Lock()
		h.mus = append(h.mus, m)
	}
	return h
}
