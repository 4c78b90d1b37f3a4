package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"task-queue-api/internal/arena"
)

type tier uint8

const (
	idleTier tier = iota
	usedTier
)

// entry is one cached value. usage is changed lock-free; tier, id and evicted are
// guarded by Store.idleMu, and moving an entry into or out of the used tier also holds
// Store.usedMu.
type entry[V any] struct {
	value   V
	usage   atomic.Uint64
	tier    tier
	id      arena.ID
	evicted bool
}

// Expired reports a used-tier entry that the sweep reclaimed while it still had
// consumers, together with its usage count at that moment.
type Expired[K comparable] struct {
	Key    K
	Usages uint64
}

// StoreOptions configures a Store.
type StoreOptions[K comparable] struct {
	// Shards is the number of index shards, rounded up to a power of two.
	Shards int
	// Hasher picks the shard of a key. Defaults to hash/maphash.
	Hasher Hasher[K]
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Store is a key-value index whose entries live in one of two time-ordered tiers:
// idle (usage count zero) or used (usage count positive). Each tier expires on its own
// threshold, so entries in use outlive idle ones.
//
// Lock order: idleMu, then usedMu, then the index shard locks. lockBoth is the only
// place that takes both tier locks.
type Store[K comparable, V any] struct {
	now func() time.Time

	idleMu sync.Mutex
	idle   *arena.Arena[arena.Timed[K]]
	usedMu sync.Mutex
	used   *arena.Arena[arena.Timed[K]]

	index *shardMap[K, *entry[V]]
}

// NewStore returns an empty Store.
func NewStore[K comparable, V any](opts StoreOptions[K]) *Store[K, V] {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store[K, V]{
		now:   now,
		idle:  arena.New[arena.Timed[K]](),
		used:  arena.New[arena.Timed[K]](),
		index: newShardMap[K, *entry[V]](opts.Shards, opts.Hasher),
	}
}

func (s *Store[K, V]) lockBoth() (unlock func()) {
	s.idleMu.Lock()
	s.usedMu.Lock()
	return func() {
		s.usedMu.Unlock()
		s.idleMu.Unlock()
	}
}

func (s *Store[K, V]) tierList(t tier) *arena.Arena[arena.Timed[K]] {
	if t == usedTier {
		return s.used
	}
	return s.idle
}

// Lookup returns the cached value. An idle entry that is looked up moves to the tail of
// the idle tier with a fresh timestamp, deferring its expiry.
func (s *Store[K, V]) Lookup(key K) (V, bool) {
	e, ok := s.index.get(key)
	if !ok {
		var zero V
		return zero, false
	}
	if e.usage.Load() == 0 {
		s.renewIdle(e)
	}
	return e.value, true
}

func (s *Store[K, V]) renewIdle(e *entry[V]) {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	if e.evicted || e.tier != idleTier {
		return
	}
	t, ok := s.idle.Remove(e.id)
	if !ok {
		return
	}
	e.id = s.idle.Insert(arena.Stamp(t.Value, s.now()))
}

// Insert caches value under key as an idle entry with usage zero. It returns
// ErrKeyExists, leaving the existing entry untouched, when key is already cached.
func (s *Store[K, V]) Insert(key K, value V) error {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()

	e := &entry[V]{value: value, tier: idleTier}
	if !s.index.putIfAbsent(key, e) {
		return ErrKeyExists
	}
	e.id = s.idle.Insert(arena.Stamp(key, s.now()))
	return nil
}

// IncrementUsage marks one more consumer of key. The first consumer moves the entry
// from the idle tier to the used tier.
func (s *Store[K, V]) IncrementUsage(key K) error {
	e, ok := s.index.get(key)
	if !ok {
		return ErrNotFound
	}
	if e.usage.Add(1) == 1 {
		return s.reconcile(e)
	}
	return nil
}

// DecrementUsage releases one consumer of key. Releasing the last consumer moves the
// entry back to the idle tier, where its idle expiry starts from now. The count never
// goes below zero: ErrUnderflow is returned instead.
func (s *Store[K, V]) DecrementUsage(key K) error {
	e, ok := s.index.get(key)
	if !ok {
		return ErrNotFound
	}
	for {
		cur := e.usage.Load()
		if cur == 0 {
			return ErrUnderflow
		}
		if e.usage.CompareAndSwap(cur, cur-1) {
			if cur == 1 {
				return s.reconcile(e)
			}
			return nil
		}
	}
}

// reconcile puts e in the tier matching its current usage count. Counter updates run
// ahead of it without locks; re-reading the count and the entry's position under both
// tier locks makes concurrent transitions settle on the last value, so no retry is
// needed.
func (s *Store[K, V]) reconcile(e *entry[V]) error {
	unlock := s.lockBoth()
	defer unlock()

	if e.evicted {
		return ErrTransient
	}
	want := idleTier
	if e.usage.Load() > 0 {
		want = usedTier
	}
	if e.tier == want {
		return nil
	}
	t, ok := s.tierList(e.tier).Remove(e.id)
	if !ok {
		return ErrTransient
	}
	e.id = s.tierList(want).Insert(arena.Stamp(t.Value, s.now()))
	e.tier = want
	return nil
}

// SweepExpired evicts idle entries older than idleAfter and used entries older than
// usedAfter, oldest first on each tier, stopping at the first entry still in time.
// Idle evictions are silent; every used eviction is returned with its usage count.
func (s *Store[K, V]) SweepExpired(idleAfter, usedAfter time.Duration) []Expired[K] {
	unlock := s.lockBoth()
	defer unlock()

	now := s.now()
	for {
		front, ok := s.idle.Front()
		if !ok || !front.Older(now, idleAfter) {
			break
		}
		_, t, _ := s.idle.PopFront()
		s.evict(t.Value)
	}

	var expired []Expired[K]
	for {
		front, ok := s.used.Front()
		if !ok || !front.Older(now, usedAfter) {
			break
		}
		_, t, _ := s.used.PopFront()
		var usages uint64
		if e := s.evict(t.Value); e != nil {
			usages = e.usage.Load()
		}
		expired = append(expired, Expired[K]{Key: t.Value, Usages: usages})
	}
	return expired
}

// evict drops key from the index. Both tier locks must be held.
func (s *Store[K, V]) evict(key K) *entry[V] {
	e, ok := s.index.delete(key)
	if !ok {
		return nil
	}
	e.evicted = true
	return e
}

// Len returns the number of cached entries.
func (s *Store[K, V]) Len() int { return s.index.len() }

// IdleLen returns the number of entries in the idle tier.
func (s *Store[K, V]) IdleLen() int {
	s.idleMu.Lock()
	defer s.idleMu.Unlock()
	return s.idle.Len()
}

// UsedLen returns the number of entries in the used tier.
func (s *Store[K, V]) UsedLen() int {
	s.usedMu.Lock()
	defer s.usedMu.Unlock()
	return s.used.Len()
}

// Usage returns the current usage count of key.
func (s *Store[K, V]) Usage(key K) (uint64, bool) {
	e, ok := s.index.get(key)
	if !ok {
		return 0, false
	}
	return e.usage.Load(), true
}
