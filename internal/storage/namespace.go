package storage

import (
	"fmt"
	"strings"
)

// Namespaced isolates a logical scope by rewriting keys as
// "<namespace>:<key>". It is a pure facade over any KV, so namespaces can
// wrap drivers or other layers and can be nested.
type Namespaced struct {
	base   KV
	prefix string
}

// NewNamespaced wraps base so every operation is confined to namespace.
func NewNamespaced(base KV, namespace string) *Namespaced {
	return &Namespaced{base: base, prefix: namespace + ":"}
}

func (n *Namespaced) key(key string) string {
	return n.prefix + key
}

// Set stores the value under the namespaced key.
func (n *Namespaced) Set(key string, value any) error {
	return n.base.Set(n.key(key), value)
}

// Get reads the value under the namespaced key.
func (n *Namespaced) Get(key string) (any, bool) {
	return n.base.Get(n.key(key))
}

// Remove deletes the namespaced key.
func (n *Namespaced) Remove(key string) error {
	return n.base.Remove(n.key(key))
}

// ListKeys returns the keys within this namespace, prefix stripped.
func (n *Namespaced) ListKeys() ([]string, error) {
	all, err := n.base.ListKeys()
	if err != nil {
		return nil, err
	}
	keys := []string{}
	for _, key := range all {
		if strings.HasPrefix(key, n.prefix) {
			keys = append(keys, strings.TrimPrefix(key, n.prefix))
		}
	}
	return keys, nil
}

// Clear removes only this namespace's keys, never the whole store.
func (n *Namespaced) Clear() error {
	keys, err := n.ListKeys()
	if err != nil {
		return fmt.Errorf("failed to clear namespace: %w", err)
	}
	for _, key := range keys {
		if err := n.Remove(key); err != nil {
			return fmt.Errorf("failed to clear namespace: %w", err)
		}
	}
	return nil
}
