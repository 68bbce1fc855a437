package storage

import (
	"hash/fnv"
	"sync"
)

const keyMutexShards = 64

// keyMutex serializes read-modify-write sequences per key using a fixed
// table of shards. Two keys may share a shard; that only costs contention,
// never correctness.
type keyMutex struct {
	shards [keyMutexShards]sync.Mutex
}

// Lock acquires the shard for key and returns its unlock function.
func (m *keyMutex) Lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &m.shards[h.Sum32()%keyMutexShards]
	mu.Lock()
	return mu.Unlock
}
