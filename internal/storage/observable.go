package storage

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// KeyListener observes mutations of a single key. oldValue is nil when the
// key was absent before the write; newValue is nil on removal.
type KeyListener func(newValue, oldValue any)

// AnyListener observes mutations of every key.
type AnyListener func(key string, newValue, oldValue any)

// Subscription is the opaque handle returned when registering a listener.
// Unsubscribe removes exactly this listener and is safe to call twice.
type Subscription struct {
	id     string
	key    string
	global bool
	store  *ObservableStore
}

// ID returns the opaque subscription identifier.
func (s *Subscription) ID() string {
	return s.id
}

// Unsubscribe removes the listener. Calling it more than once is harmless.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.store == nil {
		return
	}
	if s.global {
		s.store.removeAny(s.id)
		return
	}
	s.store.Off(s.key, s.id)
}

type keyListenerEntry struct {
	id string
	fn KeyListener
}

type anyListenerEntry struct {
	id string
	fn AnyListener
}

// ObservableStore notifies subscribers after mutations commit. Key-specific
// listeners fire first in subscription order, then global listeners.
// Listener failures are isolated: a panicking listener is logged and the
// remaining listeners still run; the store mutation has already committed.
type ObservableStore struct {
	base KV

	mu           sync.Mutex
	keyListeners map[string][]keyListenerEntry
	anyListeners []anyListenerEntry
	locks        keyMutex
}

// NewObservable wraps base with change notification.
func NewObservable(base KV) *ObservableStore {
	return &ObservableStore{
		base:         base,
		keyListeners: make(map[string][]keyListenerEntry),
	}
}

// On registers a listener for mutations of key.
func (l *ObservableStore) On(key string, fn KeyListener) *Subscription {
	sub := &Subscription{id: uuid.NewString(), key: key, store: l}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keyListeners[key] = append(l.keyListeners[key], keyListenerEntry{id: sub.id, fn: fn})
	return sub
}

// OnAny registers a listener for mutations of every key.
func (l *ObservableStore) OnAny(fn AnyListener) *Subscription {
	sub := &Subscription{id: uuid.NewString(), global: true, store: l}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.anyListeners = append(l.anyListeners, anyListenerEntry{id: sub.id, fn: fn})
	return sub
}

// Off removes listeners for key. With no IDs it clears every listener for
// the key; otherwise only the matching subscriptions are removed.
func (l *ObservableStore) Off(key string, ids ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(ids) == 0 {
		delete(l.keyListeners, key)
		return
	}
	kept := l.keyListeners[key][:0]
	for _, entry := range l.keyListeners[key] {
		matched := false
		for _, id := range ids {
			if entry.id == id {
				matched = true
				break
			}
		}
		if !matched {
			kept = append(kept, entry)
		}
	}
	if len(kept) == 0 {
		delete(l.keyListeners, key)
	} else {
		l.keyListeners[key] = kept
	}
}

func (l *ObservableStore) removeAny(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kept := l.anyListeners[:0]
	for _, entry := range l.anyListeners {
		if entry.id != id {
			kept = append(kept, entry)
		}
	}
	l.anyListeners = kept
}

// Set writes the new value, then notifies subscribers with the committed
// new value and the prior one. Notification happens strictly after the
// durable write.
func (l *ObservableStore) Set(key string, value any) error {
	unlock := l.locks.Lock(key)
	old, _ := l.base.Get(key)
	if err := l.base.Set(key, value); err != nil {
		unlock()
		return err
	}
	newValue, _ := l.base.Get(key)
	unlock()
	l.notify(key, newValue, old)
	return nil
}

// Remove deletes the key, then notifies subscribers with a nil new value.
func (l *ObservableStore) Remove(key string) error {
	unlock := l.locks.Lock(key)
	old, existed := l.base.Get(key)
	if err := l.base.Remove(key); err != nil {
		unlock()
		return err
	}
	unlock()
	if existed {
		l.notify(key, nil, old)
	}
	return nil
}

// Get reads the current value.
func (l *ObservableStore) Get(key string) (any, bool) {
	return l.base.Get(key)
}

// ListKeys enumerates the underlying keys.
func (l *ObservableStore) ListKeys() ([]string, error) {
	return l.base.ListKeys()
}

// notify snapshots the listener lists before iterating so subscribers may
// register or unsubscribe from inside a callback.
func (l *ObservableStore) notify(key string, newValue, oldValue any) {
	l.mu.Lock()
	keyed := make([]keyListenerEntry, len(l.keyListeners[key]))
	copy(keyed, l.keyListeners[key])
	global := make([]anyListenerEntry, len(l.anyListeners))
	copy(global, l.anyListeners)
	l.mu.Unlock()

	for _, entry := range keyed {
		invokeListener(key, func() { entry.fn(newValue, oldValue) })
	}
	for _, entry := range global {
		invokeListener(key, func() { entry.fn(key, newValue, oldValue) })
	}
}

func invokeListener(key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("store listener panicked", "key", key, "panic", r)
		}
	}()
	fn()
}
