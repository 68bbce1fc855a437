package storage

import (
	"errors"
	"sort"
)

var (
	// ErrInvalidKey is returned when a key is empty or cannot be mapped to
	// storage.
	ErrInvalidKey = errors.New("storage: invalid key")

	// ErrInvalidTTL is returned when a non-positive time-to-live is supplied.
	ErrInvalidTTL = errors.New("storage: ttl must be positive")
)

// KV is the minimal contract shared by the backing stores and every
// decorator layer. Values are arbitrary JSON-serializable data; after a
// round trip they take JSON shapes (map[string]any, []any, float64, string,
// bool, nil).
//
// Reads are total: Get reports absence for missing or unreadable data and
// never fails. Write failures propagate to the caller.
type KV interface {
	// Set serializes value and stores it durably under key.
	Set(key string, value any) error

	// Get returns the stored value, or ok == false if the key is absent or
	// its stored content cannot be decoded.
	Get(key string) (value any, ok bool)

	// Remove deletes the key. Removing an absent key is a no-op.
	Remove(key string) error

	// ListKeys enumerates all stored logical keys. An empty store yields an
	// empty slice.
	ListKeys() ([]string, error)
}

// Store extends KV with the whole-store operations the migration engine and
// tooling need.
type Store interface {
	KV

	// Has reports whether the key exists.
	Has(key string) bool

	// Clear drops every key and any associated cache state.
	Clear() error

	// Stats reports key count, durable size in bytes, and cache entries.
	Stats() (Stats, error)

	// Export reads every key into a flat record set. Keys that individually
	// fail to read are skipped rather than aborting the export.
	Export() (map[string]any, error)

	// Import applies Set for every pair, overwriting existing keys. It
	// aborts on the first write that fails and returns that error; writes
	// already applied are kept.
	Import(data map[string]any) error
}

// Stats describes a store's current footprint.
type Stats struct {
	Keys         int   `json:"keys"`
	DiskBytes    int64 `json:"disk_bytes"`
	CacheEntries int   `json:"cache_entries"`
}

// importInto writes a record set into kv in sorted key order so a partial
// failure is deterministic. It aborts on the first failing write.
func importInto(kv KV, data map[string]any) error {
	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := kv.Set(key, data[key]); err != nil {
			return err
		}
	}
	return nil
}
