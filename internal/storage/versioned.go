package storage

import (
	"fmt"
	"time"
)

const (
	versionSuffix      = "/versions"
	defaultMaxVersions = 5
)

// VersionEntry is one historical value for a key, most-recent-first in the
// stored sequence.
type VersionEntry struct {
	Value       any
	Timestamp   int64
	Description string
}

// VersionedStore keeps a bounded history of prior values per key under the
// derived key "<key>/versions". The newest history entry is always the
// value that the most recent Set overwrote, never the current value.
//
// The read-old/write-new sequence is serialized per key, so concurrent
// writers cannot record a history entry that skips the true predecessor.
type VersionedStore struct {
	base        KV
	maxVersions int
	locks       keyMutex
	now         func() time.Time
}

// NewVersioned wraps base with version history bounded at maxVersions.
// A non-positive bound falls back to the default of 5.
func NewVersioned(base KV, maxVersions int) *VersionedStore {
	if maxVersions <= 0 {
		maxVersions = defaultMaxVersions
	}
	return &VersionedStore{base: base, maxVersions: maxVersions, now: time.Now}
}

// Set writes the new value and, if the key already had one, prepends the
// overwritten value to the history. The description annotates the history
// entry and may be empty.
func (l *VersionedStore) Set(key string, value any, description string) error {
	unlock := l.locks.Lock(key)
	defer unlock()

	old, existed := l.base.Get(key)
	if err := l.base.Set(key, value); err != nil {
		return err
	}
	if !existed {
		return nil
	}

	entry := map[string]any{
		"value":     old,
		"timestamp": l.now().UnixMilli(),
	}
	if description != "" {
		entry["description"] = description
	}
	history := append([]any{entry}, l.rawHistory(key)...)
	if len(history) > l.maxVersions {
		history = history[:l.maxVersions]
	}
	if err := l.base.Set(key+versionSuffix, history); err != nil {
		return fmt.Errorf("failed to record version history for %q: %w", key, err)
	}
	return nil
}

// Get reads the current value.
func (l *VersionedStore) Get(key string) (any, bool) {
	return l.base.Get(key)
}

// Version returns the history entry at index (0 is the most recent prior
// value). Out-of-range indexes and missing history report absence.
func (l *VersionedStore) Version(key string, index int) (any, bool) {
	history := l.History(key)
	if index < 0 || index >= len(history) {
		return nil, false
	}
	return history[index].Value, true
}

// History returns the full bounded sequence, most-recent-first. Keys
// without history yield an empty slice.
func (l *VersionedStore) History(key string) []VersionEntry {
	raw := l.rawHistory(key)
	entries := make([]VersionEntry, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		entry := VersionEntry{Value: m["value"]}
		if ts, ok := m["timestamp"].(float64); ok {
			entry.Timestamp = int64(ts)
		}
		if desc, ok := m["description"].(string); ok {
			entry.Description = desc
		}
		entries = append(entries, entry)
	}
	return entries
}

// RestoreVersion writes the historical value at index back as the current
// value. This is a forward mutation recorded like any other write: the
// value being replaced becomes the newest history entry. It returns false
// when the index does not resolve.
func (l *VersionedStore) RestoreVersion(key string, index int) (bool, error) {
	value, ok := l.Version(key, index)
	if !ok {
		return false, nil
	}
	if err := l.Set(key, value, fmt.Sprintf("restored from version %d", index)); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes both the primary key and its history.
func (l *VersionedStore) Remove(key string) error {
	unlock := l.locks.Lock(key)
	defer unlock()
	if err := l.base.Remove(key); err != nil {
		return err
	}
	return l.base.Remove(key + versionSuffix)
}

// ListKeys enumerates the underlying keys, history keys included.
func (l *VersionedStore) ListKeys() ([]string, error) {
	return l.base.ListKeys()
}

func (l *VersionedStore) rawHistory(key string) []any {
	raw, ok := l.base.Get(key + versionSuffix)
	if !ok {
		return nil
	}
	seq, ok := raw.([]any)
	if !ok {
		return nil
	}
	return seq
}
