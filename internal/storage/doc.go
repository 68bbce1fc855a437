// Package storage implements a layered persistent key-value engine.
//
// The backing stores (file-per-key, SQLite, in-memory) persist arbitrary
// JSON-serializable values and front them with a write-through cache. On top
// of the small KV contract, independent decorator layers add namespacing,
// TTL expiry, bounded version history, change notification, and reversible
// value transforms. A migration engine evolves the whole keyspace and takes
// full-store backup snapshots. Layers compose freely, so a TTL store can
// wrap a namespaced store which wraps any driver.
package storage
