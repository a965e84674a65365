package scene

import (
	"slices"
	"sync"
)

// Storage is a per-scene bag of collaborators keyed by name. It is
// cleared when the scene root is destroyed.
type Storage struct {
	mu     sync.Mutex
	values map[string]any
}

func newStorage() *Storage {
	return &Storage{values: make(map[string]any)}
}

// Load returns the value stored under key if it has type T.
func Load[T any](s *Storage, key string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key].(T)
	return v, ok
}

// LoadOrStore returns the value under key, storing init() first if absent
// or of another type.
func LoadOrStore[T any](s *Storage, key string, init func() T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key].(T); ok {
		return v
	}
	v := init()
	s.values[key] = v
	return v
}

// Delete removes key.
func (s *Storage) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// Keys returns the stored keys, sorted.
func (s *Storage) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (s *Storage) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.values)
}
