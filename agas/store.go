package agas

import (
	"context"
	"sync"

	"github.com/hupe1980/gidref/gid"
)

// CreditStore holds the global credit table.
//
// Keys are stripped identifiers. Implementations must apply Add atomically:
// concurrent callers observe a linearizable sequence of counts, so exactly
// one of them sees the count reach zero.
type CreditStore interface {
	// Add adds delta to the count of id, seeding an absent entry with seed
	// first, and returns the new count.
	Add(ctx context.Context, id gid.GID, delta, seed int64) (int64, error)

	// Get returns the count of id and whether an entry exists.
	Get(ctx context.Context, id gid.GID) (int64, bool, error)

	// Delete removes the entry of id if its count is still zero.
	Delete(ctx context.Context, id gid.GID) error
}

// MemoryStore is an in-memory CreditStore.
type MemoryStore struct {
	mu     sync.Mutex
	counts map[gid.GID]int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counts: make(map[gid.GID]int64)}
}

// Add implements CreditStore.
func (s *MemoryStore) Add(_ context.Context, id gid.GID, delta, seed int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.counts[id]
	if !ok {
		n = seed
	}
	n += delta
	s.counts[id] = n
	return n, nil
}

// Get implements CreditStore.
func (s *MemoryStore) Get(_ context.Context, id gid.GID) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.counts[id]
	return n, ok, nil
}

// Delete implements CreditStore.
func (s *MemoryStore) Delete(_ context.Context, id gid.GID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.counts[id] == 0 {
		delete(s.counts, id)
	}
	return nil
}

// Len returns the number of entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counts)
}
