// Package runstate keeps a bounded in-memory history of compile/run
// results for the daemon's control surfaces (`/runs`, `/runs/{id}`,
// `show_highstate`/`show_lowstate`/`show_top`, §6). The core itself does
// not persist across runs (§6 "Persisted state"); this package is the
// reference in-process store a standalone daemon deployment uses to
// answer "what happened" without a database.
package runstate

import (
	"sync"

	"github.com/google/uuid"
	"github.com/mattferris/statecraft/pkg/state"
)

// Entry is one recorded compile+run cycle.
type Entry struct {
	Record    *state.RunRecord
	HighState any
	LowState  *state.LowState
}

// Store is a fixed-capacity ring of the most recent Entries, newest
// last. google/uuid (a teacher indirect dep, promoted to direct) mints
// run IDs so a run's identity survives beyond the struct pointer.
type Store struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	entries  map[string]Entry
}

// New builds a Store holding at most capacity entries; capacity <= 0
// selects a 200-entry default.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = 200
	}
	return &Store{capacity: capacity, entries: make(map[string]Entry)}
}

// NewRunID mints a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Put records an entry under id, evicting the oldest entry if the store
// is at capacity.
func (s *Store) Put(id string, e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[id]; !exists {
		s.order = append(s.order, id)
		if len(s.order) > s.capacity {
			oldest := s.order[0]
			s.order = s.order[1:]
			delete(s.entries, oldest)
		}
	}
	s.entries[id] = e
}

// Get retrieves an entry by run ID.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// List returns run IDs newest-first.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	for i, id := range s.order {
		out[len(out)-1-i] = id
	}
	return out
}
