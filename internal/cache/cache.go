// Package cache memoizes a slow fetch behind a two-tier, usage-counted expiring store.
//
// Entries start idle. Consumers bracket their use of an entry with IncrementUsage and
// DecrementUsage; while the count is positive the entry sits in the used tier and
// expires on the (longer) used window, otherwise on the idle window. Expiry happens only
// through SweepExpired, which callers run periodically.
//
// Concurrent misses for the same key each call the Getter; the first result to be
// inserted wins and later ones are returned to their callers but not cached.
package cache

import (
	"context"
	"time"
)

// Getter fetches the value for a key that is not cached.
type Getter[K comparable, V any] interface {
	Fetch(ctx context.Context, key K) (V, error)
}

// GetterFunc adapts a function to Getter.
type GetterFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Fetch calls f.
func (f GetterFunc[K, V]) Fetch(ctx context.Context, key K) (V, error) { return f(ctx, key) }

// Observer receives cache outcome notifications. Implementations must be cheap and
// safe for concurrent use.
type Observer interface {
	CacheHit()
	CacheMiss()
	FetchFailed()
}

type noopObserver struct{}

func (noopObserver) CacheHit()    {}
func (noopObserver) CacheMiss()   {}
func (noopObserver) FetchFailed() {}

// Options configures a Cache.
type Options[K comparable] struct {
	// IdleExpiry is how long an entry with no consumers survives after its last touch.
	IdleExpiry time.Duration
	// UsedExpiry is how long an entry with consumers survives after it became used.
	UsedExpiry time.Duration
	Shards     int
	Hasher     Hasher[K]
	Now        func() time.Time
	Observer   Observer
}

// Cache is a get-or-fetch facade over a Store.
type Cache[K comparable, V any] struct {
	store      *Store[K, V]
	getter     Getter[K, V]
	idleExpiry time.Duration
	usedExpiry time.Duration
	observer   Observer
}

// New creates a Cache that fills misses from getter.
func New[K comparable, V any](getter Getter[K, V], opts Options[K]) (*Cache[K, V], error) {
	if opts.IdleExpiry <= 0 || opts.UsedExpiry <= 0 {
		return nil, ErrInvalidOptions
	}
	observer := opts.Observer
	if observer == nil {
		observer = noopObserver{}
	}
	return &Cache[K, V]{
		store: NewStore[K, V](StoreOptions[K]{
			Shards: opts.Shards,
			Hasher: opts.Hasher,
			Now:    opts.Now,
		}),
		getter:     getter,
		idleExpiry: opts.IdleExpiry,
		usedExpiry: opts.UsedExpiry,
		observer:   observer,
	}, nil
}

// Get returns the cached value for key, fetching and caching it on a miss. A fetch
// error is returned as is and nothing is cached.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, error) {
	if v, ok := c.store.Lookup(key); ok {
		c.observer.CacheHit()
		return v, nil
	}
	c.observer.CacheMiss()

	v, err := c.getter.Fetch(ctx, key)
	if err != nil {
		c.observer.FetchFailed()
		var zero V
		return zero, err
	}
	// A concurrent miss may have inserted first; its entry stays.
	_ = c.store.Insert(key, v)
	return v, nil
}

// Set caches value under key. It returns ErrKeyExists when key is already cached.
func (c *Cache[K, V]) Set(key K, value V) error { return c.store.Insert(key, value) }

// IncrementUsage marks one more consumer of key.
func (c *Cache[K, V]) IncrementUsage(key K) error { return c.store.IncrementUsage(key) }

// DecrementUsage releases one consumer of key.
func (c *Cache[K, V]) DecrementUsage(key K) error { return c.store.DecrementUsage(key) }

// SweepExpired evicts entries past the given thresholds. See Store.SweepExpired.
func (c *Cache[K, V]) SweepExpired(idleAfter, usedAfter time.Duration) []Expired[K] {
	return c.store.SweepExpired(idleAfter, usedAfter)
}

// Evict sweeps with the configured idle and used expiry windows.
func (c *Cache[K, V]) Evict() []Expired[K] {
	return c.store.SweepExpired(c.idleExpiry, c.usedExpiry)
}

// Stats is a point-in-time view of the cache size.
type Stats struct {
	Entries int
	Idle    int
	Used    int
}

// Stats returns the current entry counts. The three numbers are read one after another
// and may disagree briefly under concurrent writes.
func (c *Cache[K, V]) Stats() Stats {
	return Stats{
		Entries: c.store.Len(),
		Idle:    c.store.IdleLen(),
		Used:    c.store.UsedLen(),
	}
}
