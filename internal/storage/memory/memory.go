// Package memory implements storage.Store in process memory.
package memory

import (
	"context"
	"sync"

	"github.com/xenking/kart-storefront/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps values in a map. Values are copied on the way in and out.
type Store struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// New returns an empty Store.
func New() *Store {
	return &Store{items: make(map[string][]byte)}
}

// Get returns a copy of the value under key or storage.ErrNotFound.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.items[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

// Put stores a copy of value under key.
func (s *Store) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// Len returns the number of stored keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
