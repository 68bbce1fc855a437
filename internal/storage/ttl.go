package storage

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

// TTLStore wraps values with an absolute expiry timestamp. Expired entries
// are lazy tombstones: they stay on disk until a read observes the expiry
// and deletes them, or a Cleanup sweep removes them in bulk.
type TTLStore struct {
	base KV
	now  func() time.Time
}

// NewTTL wraps base with time-to-live semantics.
func NewTTL(base KV) *TTLStore {
	return &TTLStore{base: base, now: time.Now}
}

// Set stores value with the given time-to-live. A non-positive ttl fails
// with ErrInvalidTTL.
func (l *TTLStore) Set(key string, value any, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	envelope := map[string]any{
		"value":     value,
		"expiresAt": l.now().Add(ttl).UnixMilli(),
	}
	return l.base.Set(key, envelope)
}

// Get returns the wrapped value if the entry exists and has not expired.
// A read that observes expiry deletes the entry before reporting absence.
func (l *TTLStore) Get(key string) (any, bool) {
	value, expiresAt, ok := l.envelope(key)
	if !ok {
		return nil, false
	}
	if l.now().UnixMilli() > expiresAt {
		_ = l.base.Remove(key)
		return nil, false
	}
	return value, true
}

// Remove deletes the key regardless of expiry state.
func (l *TTLStore) Remove(key string) error {
	return l.base.Remove(key)
}

// ListKeys enumerates the underlying keys, expired entries included; use
// Cleanup to reap them.
func (l *TTLStore) ListKeys() ([]string, error) {
	return l.base.ListKeys()
}

// Extend adds additional time to an entry's expiry, preserving the value.
// It returns false if the entry is absent or already expired.
func (l *TTLStore) Extend(key string, additional time.Duration) (bool, error) {
	value, expiresAt, ok := l.envelope(key)
	if !ok || l.now().UnixMilli() > expiresAt {
		return false, nil
	}
	envelope := map[string]any{
		"value":     value,
		"expiresAt": expiresAt + additional.Milliseconds(),
	}
	if err := l.base.Set(key, envelope); err != nil {
		return false, err
	}
	return true, nil
}

// TimeToLive returns the remaining duration for the key. It reports false
// for missing or already-expired entries; remaining time never rounds down
// to a zero result.
func (l *TTLStore) TimeToLive(key string) (time.Duration, bool) {
	_, expiresAt, ok := l.envelope(key)
	if !ok {
		return 0, false
	}
	remaining := time.Duration(expiresAt-l.now().UnixMilli()) * time.Millisecond
	if remaining <= 0 {
		return 0, false
	}
	return remaining, true
}

// Cleanup sweeps every key in the store and removes expired envelopes,
// returning the count removed. Entries that are not TTL envelopes are left
// alone. This is an O(n) pass intended for periodic invocation.
func (l *TTLStore) Cleanup() (int, error) {
	keys, err := l.base.ListKeys()
	if err != nil {
		return 0, err
	}
	removed := 0
	nowMs := l.now().UnixMilli()
	for _, key := range keys {
		raw, ok := l.base.Get(key)
		if !ok {
			continue
		}
		_, expiresAt, ok := decodeTTLEnvelope(raw)
		if !ok || nowMs <= expiresAt {
			continue
		}
		if err := l.base.Remove(key); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// Janitor runs Cleanup sweeps until ctx is cancelled, at most one sweep per
// interval. Sweep failures are logged, not fatal.
func (l *TTLStore) Janitor(ctx context.Context, interval time.Duration) {
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	// Burn the initial token so the first sweep waits a full interval.
	_ = limiter.Allow()
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		removed, err := l.Cleanup()
		if err != nil {
			slog.WarnContext(ctx, "TTL sweep failed", "error", err)
			continue
		}
		if removed > 0 {
			slog.InfoContext(ctx, "TTL sweep removed expired entries", "count", removed)
		}
	}
}

// envelope loads and decodes the TTL envelope for key.
func (l *TTLStore) envelope(key string) (any, int64, bool) {
	raw, ok := l.base.Get(key)
	if !ok {
		return nil, 0, false
	}
	return decodeTTLEnvelope(raw)
}

// decodeTTLEnvelope unpacks {value, expiresAt}. Records without a numeric
// expiresAt are not TTL envelopes and are treated as absent by this layer.
func decodeTTLEnvelope(raw any) (any, int64, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, 0, false
	}
	expiresAt, ok := m["expiresAt"].(float64)
	if !ok {
		return nil, 0, false
	}
	return m["value"], int64(expiresAt), true
}
