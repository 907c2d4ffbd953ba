// Package memstore is an in-memory rstore.Store, used by this module's
// own tests to exercise the repository engine without touching a disk.
package memstore

import (
	"sync"

	"github.com/google/uuid"

	"objectrepo/internal/rstore"
)

// Store is a mutex-guarded map-based rstore.Store. It is not a
// deliverable backend; concrete block-store backends are out of scope
// for this module (spec.md §1).
type Store struct {
	mu     sync.Mutex
	blocks map[rstore.Key][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{blocks: make(map[rstore.Key][]byte)}
}

func (s *Store) Write(key rstore.Key, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blocks[key] = cp
	return nil
}

func (s *Store) Read(key rstore.Key) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.blocks[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

func (s *Store) Remove(key rstore.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blocks, key)
	return nil
}

func (s *Store) List(kind rstore.Kind) ([]uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []uuid.UUID
	for key := range s.blocks {
		if key.Kind == kind {
			out = append(out, key.ID)
		}
	}
	return out, nil
}

var _ rstore.Store = (*Store)(nil)
