package storage

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

const storageExt = ".json"

// FileStore is the durable backing store: one file per key under a root
// directory, content pretty-printed JSON, fronted by a write-through cache.
//
// File names are the URL-escaped form of the key plus the storage extension,
// so keys containing separators or other unsafe bytes map to flat files and
// listing can recover the logical key losslessly.
type FileStore struct {
	rootDir string
	cache   *Cache
}

// NewFileStore initializes a FileStore rooted at rootDir, creating the
// directory if needed. The cache starts cold and fills lazily on reads.
func NewFileStore(rootDir string) (*FileStore, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &FileStore{rootDir: rootDir, cache: NewCache()}, nil
}

// RootDir returns the storage root directory.
func (s *FileStore) RootDir() string {
	return s.rootDir
}

// keyPath maps a logical key to its backing file path.
func (s *FileStore) keyPath(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	return filepath.Join(s.rootDir, url.QueryEscape(key)+storageExt), nil
}

// keyFromFileName recovers the logical key from a backing file name.
func keyFromFileName(name string) (string, bool) {
	if !strings.HasSuffix(name, storageExt) {
		return "", false
	}
	key, err := url.QueryUnescape(strings.TrimSuffix(name, storageExt))
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

// encodeValue serializes a value for storage and returns the normalized
// form a later decode would produce. Caching the normalized form keeps a
// warm-cache read identical to a cold one.
func encodeValue(value any) ([]byte, any, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to serialize value: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(data, &normalized); err != nil {
		return nil, nil, fmt.Errorf("failed to normalize value: %w", err)
	}
	return append(data, '\n'), normalized, nil
}

// Set serializes value and writes it durably, then updates the cache. The
// cache is only touched after the write completed, so a failed write never
// leaves the cache ahead of disk.
func (s *FileStore) Set(key string, value any) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	data, normalized, err := encodeValue(value)
	if err != nil {
		return err
	}
	// Clear may have removed the root; recreate it on demand.
	if err := os.MkdirAll(s.rootDir, 0o755); err != nil {
		return fmt.Errorf("failed to create storage root: %w", err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	s.cache.Set(key, normalized)
	return nil
}

// writeFileAtomic writes data to a sibling temp file and renames it into
// place so readers never observe a partial write.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

// Get returns the cached value if present, otherwise reads and decodes the
// backing file and populates the cache. A missing file or content that
// fails to decode reports absence, never an error.
func (s *FileStore) Get(key string) (any, bool) {
	if v, ok := s.cache.Get(key); ok {
		return v, true
	}
	path, err := s.keyPath(key)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		// Corrupt content is treated as absence to keep reads total.
		return nil, false
	}
	s.cache.Set(key, value)
	return value, true
}

// Remove deletes the cache entry and the backing file. Removing an absent
// key is a no-op.
func (s *FileStore) Remove(key string) error {
	path, err := s.keyPath(key)
	if err != nil {
		return err
	}
	s.cache.Invalidate(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove key %q: %w", key, err)
	}
	return nil
}

// Has reports whether the key is cached or has a backing file.
func (s *FileStore) Has(key string) bool {
	if _, ok := s.cache.Get(key); ok {
		return true
	}
	path, err := s.keyPath(key)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

// ListKeys enumerates all backing files, recovering the logical keys.
func (s *FileStore) ListKeys() ([]string, error) {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list storage root: %w", err)
	}
	keys := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if key, ok := keyFromFileName(entry.Name()); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Clear drops the cache and removes the entire storage root. The root is
// recreated lazily by the next Set.
func (s *FileStore) Clear() error {
	s.cache.InvalidateAll()
	if err := os.RemoveAll(s.rootDir); err != nil {
		return fmt.Errorf("failed to clear storage root: %w", err)
	}
	return nil
}

// Stats reports key count, aggregate size from disk stats, and cache size.
func (s *FileStore) Stats() (Stats, error) {
	entries, err := os.ReadDir(s.rootDir)
	if err != nil {
		if os.IsNotExist(err) {
			return Stats{CacheEntries: s.cache.Len()}, nil
		}
		return Stats{}, fmt.Errorf("failed to stat storage root: %w", err)
	}
	st := Stats{CacheEntries: s.cache.Len()}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, ok := keyFromFileName(entry.Name()); !ok {
			continue
		}
		st.Keys++
		if info, err := entry.Info(); err == nil {
			st.DiskBytes += info.Size()
		}
	}
	return st, nil
}

// Export reads every key into a flat record set, skipping keys that
// individually fail to read.
func (s *FileStore) Export() (map[string]any, error) {
	keys, err := s.ListKeys()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(keys))
	for _, key := range keys {
		if value, ok := s.Get(key); ok {
			out[key] = value
		}
	}
	return out, nil
}

// Import applies Set per pair in sorted key order, overwriting existing
// keys. It aborts on the first failing write.
func (s *FileStore) Import(data map[string]any) error {
	return importInto(s, data)
}
