package storage

import (
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore is a non-durable Store kept entirely in memory. It mirrors
// the FileStore semantics (values normalized through JSON, reads total) and
// is safe for concurrent use. Useful for tests and for embedding where
// durability is not needed.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

// Set serializes the value and stores the encoded bytes.
func (m *MemoryStore) Set(key string, value any) error {
	if key == "" {
		return ErrInvalidKey
	}
	data, _, err := encodeValue(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

// Get decodes a fresh copy of the stored value so callers never share
// mutable state through the store.
func (m *MemoryStore) Get(key string) (any, bool) {
	m.mu.RLock()
	data, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, false
	}
	return value, true
}

// Remove deletes the key; removing an absent key is a no-op.
func (m *MemoryStore) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Has reports whether the key exists.
func (m *MemoryStore) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.data[key]
	return ok
}

// ListKeys enumerates all keys.
func (m *MemoryStore) ListKeys() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	return keys, nil
}

// Clear drops every key.
func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	return nil
}

// Stats reports key count and encoded size. The store is its own cache, so
// cache entries equal the key count.
func (m *MemoryStore) Stats() (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Stats{Keys: len(m.data), CacheEntries: len(m.data)}
	for _, data := range m.data {
		st.DiskBytes += int64(len(data))
	}
	return st, nil
}

// Export reads every key into a flat record set.
func (m *MemoryStore) Export() (map[string]any, error) {
	keys, err := m.ListKeys()
	if err != nil {
		return nil, fmt.Errorf("failed to export: %w", err)
	}
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if value, ok := m.Get(key); ok {
			out[key] = value
		}
	}
	return out, nil
}

// Import applies Set per pair, aborting on the first failing write.
func (m *MemoryStore) Import(data map[string]any) error {
	return importInto(m, data)
}
