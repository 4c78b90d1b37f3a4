package cache

import (
	"hash/maphash"
	"math/bits"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 32

// Hasher maps a key to the 64-bit hash that picks its shard.
type Hasher[K comparable] func(K) uint64

// StringHasher hashes string keys with xxhash.
func StringHasher(s string) uint64 { return xxhash.Sum64String(s) }

func comparableHasher[K comparable]() Hasher[K] {
	seed := maphash.MakeSeed()
	return func(k K) uint64 { return maphash.Comparable(seed, k) }
}

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

func (s *shard[K, V]) lockR() func() {
	s.mu.RLock()
	return s.mu.RUnlock
}

func (s *shard[K, V]) lockW() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

// shardMap is a map split into independently locked shards so unrelated keys do not
// contend on one lock.
type shardMap[K comparable, V any] struct {
	shards []shard[K, V]
	mask   uint64
	hash   Hasher[K]
}

func newShardMap[K comparable, V any](n int, hash Hasher[K]) *shardMap[K, V] {
	if n <= 0 {
		n = DefaultShards
	}
	// Round up to a power of two so the shard index is a mask.
	n = 1 << bits.Len(uint(n-1))
	if hash == nil {
		hash = comparableHasher[K]()
	}
	m := &shardMap[K, V]{
		shards: make([]shard[K, V], n),
		mask:   uint64(n - 1),
		hash:   hash,
	}
	for i := range m.shards {
		m.shards[i].items = make(map[K]V)
	}
	return m
}

func (m *shardMap[K, V]) shardFor(k K) *shard[K, V] {
	return &m.shards[m.hash(k)&m.mask]
}

func (m *shardMap[K, V]) get(k K) (V, bool) {
	s := m.shardFor(k)
	unlock := s.lockR()
	defer unlock()
	v, ok := s.items[k]
	return v, ok
}

// putIfAbsent stores v under k unless k is present, and reports whether it stored.
func (m *shardMap[K, V]) putIfAbsent(k K, v V) bool {
	s := m.shardFor(k)
	unlock := s.lockW()
	defer unlock()
	if _, ok := s.items[k]; ok {
		return false
	}
	s.items[k] = v
	return true
}

func (m *shardMap[K, V]) delete(k K) (V, bool) {
	s := m.shardFor(k)
	unlock := s.lockW()
	defer unlock()
	v, ok := s.items[k]
	if ok {
		delete(s.items, k)
	}
	return v, ok
}

func (m *shardMap[K, V]) len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		unlock := s.lockR()
		n += len(s.items)
		unlock()
	}
	return n
}
