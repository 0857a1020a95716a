package frontier

import (
	"context"
	"sync"
)

// SeenStore records which normalized URLs a run has already admitted. The
// in-memory store below covers single-process runs; a shared store lets
// several crawler instances split one frontier.
type SeenStore interface {
	// Add marks key as seen and reports whether it was newly added.
	Add(ctx context.Context, key string) (bool, error)

	// Remove forgets key, making it admissible again. Called when a task
	// reaches a terminal state, so dedup constrains live tasks only.
	Remove(ctx context.Context, key string) error
}

// MemorySeen is a process-local SeenStore backed by a map.
type MemorySeen struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemorySeen returns an empty in-memory seen set.
func NewMemorySeen() *MemorySeen {
	return &MemorySeen{keys: make(map[string]struct{})}
}

// Add implements SeenStore.
func (s *MemorySeen) Add(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false, nil
	}
	s.keys[key] = struct{}{}
	return true, nil
}

// Remove implements SeenStore.
func (s *MemorySeen) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, key)
	return nil
}
