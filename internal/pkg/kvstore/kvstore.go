package kvstore

import (
	"sync"
)

// KVStore is a key/value store that remembers the order
// in which keys were first inserted.
type KVStore[K comparable, V any] struct {
	data map[K]V
	keys []K
	mu   sync.RWMutex
}

// New creates new KVStore instance.
func New[K comparable, V any]() *KVStore[K, V] {
	return &KVStore[K, V]{data: make(map[K]V)}
}

// Update replaces the value stored by key with the result of fn,
// which receives the current value and whether it was present.
// The whole read-modify-write happens under a single lock.
func (s *KVStore[K, V]) Update(key K, fn func(current V, ok bool) V) V {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.data[key]
	if !ok {
		s.keys = append(s.keys, key)
	}
	updated := fn(current, ok)
	s.data[key] = updated
	return updated
}

// Len returns number of stored entries.
func (s *KVStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}

// Range calls fn for every entry in insertion order
// until fn returns false.
func (s *KVStore[K, V]) Range(fn func(key K, value V) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, key := range s.keys {
		if !fn(key, s.data[key]) {
			return
		}
	}
}
