package storage

import (
	"errors"
	"path/filepath"
	"reflect"
	"testing"
)

// drivers returns a fresh instance of every Store implementation so the
// shared semantics are exercised against all of them.
func drivers(t *testing.T) map[string]Store {
	t.Helper()
	file, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	sqlite, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := sqlite.Close(); err != nil {
			t.Error(err)
		}
	})
	return map[string]Store{
		"file":   file,
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreRoundTrip(t *testing.T) {
	values := map[string]any{
		"string": "hello",
		"number": 42.5,
		"bool":   true,
		"null":   nil,
		"object": map[string]any{"name": "Ada", "age": float64(36)},
		"array":  []any{"a", float64(1), nil},
	}
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			for key, want := range values {
				if err := store.Set(key, want); err != nil {
					t.Fatalf("Set(%q) = %v", key, err)
				}
				got, ok := store.Get(key)
				if !ok {
					t.Fatalf("Get(%q) reported absent", key)
				}
				if !reflect.DeepEqual(got, want) {
					t.Fatalf("Get(%q) = %#v, want %#v", key, got, want)
				}
			}
		})
	}
}

func TestStoreNormalizesValues(t *testing.T) {
	// Values take JSON shapes after a round trip, even when the write and
	// the read hit the same process.
	type point struct {
		X int `json:"x"`
	}
	want := map[string]any{"x": float64(3)}
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Set("p", point{X: 3}); err != nil {
				t.Fatal(err)
			}
			got, ok := store.Get("p")
			if !ok {
				t.Fatal("Get reported absent")
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("Get = %#v, want %#v", got, want)
			}
		})
	}
}

func TestStoreGetMissing(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			if v, ok := store.Get("nope"); ok {
				t.Fatalf("Get on empty store = %#v, true", v)
			}
		})
	}
}

func TestStoreOverwrite(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Set("k", "first"); err != nil {
				t.Fatal(err)
			}
			if err := store.Set("k", "second"); err != nil {
				t.Fatal(err)
			}
			got, _ := store.Get("k")
			if got != "second" {
				t.Fatalf("Get = %#v, want %q", got, "second")
			}
		})
	}
}

func TestStoreRemove(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Set("k", 1); err != nil {
				t.Fatal(err)
			}
			if err := store.Remove("k"); err != nil {
				t.Fatal(err)
			}
			if store.Has("k") {
				t.Fatal("Has after Remove = true")
			}
			// Removing an absent key is a no-op.
			if err := store.Remove("k"); err != nil {
				t.Fatalf("Remove on absent key = %v", err)
			}
		})
	}
}

func TestStoreEmptyKeyRejected(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Set("", 1); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("Set(\"\") = %v, want ErrInvalidKey", err)
			}
		})
	}
}

func TestStoreListKeys(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			keys, err := store.ListKeys()
			if err != nil {
				t.Fatal(err)
			}
			if len(keys) != 0 {
				t.Fatalf("ListKeys on empty store = %v", keys)
			}
			for _, key := range []string{"b", "a", "c"} {
				if err := store.Set(key, key); err != nil {
					t.Fatal(err)
				}
			}
			keys, err = store.ListKeys()
			if err != nil {
				t.Fatal(err)
			}
			if len(keys) != 3 {
				t.Fatalf("ListKeys = %v, want 3 keys", keys)
			}
		})
	}
}

func TestStoreClear(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"a", "b"} {
				if err := store.Set(key, key); err != nil {
					t.Fatal(err)
				}
			}
			if err := store.Clear(); err != nil {
				t.Fatal(err)
			}
			keys, err := store.ListKeys()
			if err != nil {
				t.Fatal(err)
			}
			if len(keys) != 0 {
				t.Fatalf("ListKeys after Clear = %v", keys)
			}
			// The store remains usable after Clear.
			if err := store.Set("c", 1); err != nil {
				t.Fatalf("Set after Clear = %v", err)
			}
			if !store.Has("c") {
				t.Fatal("Has after post-Clear Set = false")
			}
		})
	}
}

func TestStoreStats(t *testing.T) {
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			for _, key := range []string{"a", "b"} {
				if err := store.Set(key, map[string]any{"key": key}); err != nil {
					t.Fatal(err)
				}
			}
			st, err := store.Stats()
			if err != nil {
				t.Fatal(err)
			}
			if st.Keys != 2 {
				t.Fatalf("Stats.Keys = %d, want 2", st.Keys)
			}
			if st.DiskBytes <= 0 {
				t.Fatalf("Stats.DiskBytes = %d, want > 0", st.DiskBytes)
			}
		})
	}
}

func TestStoreExportImport(t *testing.T) {
	want := map[string]any{
		"a": "one",
		"b": float64(2),
		"c": map[string]any{"nested": true},
	}
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Set("stale", "overwritten by import? no"); err != nil {
				t.Fatal(err)
			}
			if err := store.Set("a", "old"); err != nil {
				t.Fatal(err)
			}
			if err := store.Import(want); err != nil {
				t.Fatal(err)
			}
			got, err := store.Export()
			if err != nil {
				t.Fatal(err)
			}
			// Import overwrites colliding keys and leaves the rest alone.
			if got["stale"] != "overwritten by import? no" {
				t.Fatalf("unrelated key lost: %#v", got["stale"])
			}
			delete(got, "stale")
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("Export = %#v, want %#v", got, want)
			}
		})
	}
}

func TestStoreImportAbortsOnFirstFailure(t *testing.T) {
	// Imports run in sorted key order, so the invalid empty key fails
	// before any valid key is written.
	data := map[string]any{
		"":  "invalid",
		"a": 1,
		"b": 2,
	}
	for name, store := range drivers(t) {
		t.Run(name, func(t *testing.T) {
			if err := store.Import(data); !errors.Is(err, ErrInvalidKey) {
				t.Fatalf("Import = %v, want ErrInvalidKey", err)
			}
			keys, err := store.ListKeys()
			if err != nil {
				t.Fatal(err)
			}
			if len(keys) != 0 {
				t.Fatalf("keys written after aborted import: %v", keys)
			}
		})
	}
}
