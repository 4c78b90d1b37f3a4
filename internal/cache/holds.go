package cache

import "sync"

// UsageCounter is satisfied by *Cache and *Store.
type UsageCounter[K comparable] interface {
	IncrementUsage(key K) error
	DecrementUsage(key K) error
}

// Holds remembers which holder owns a usage of which key, so a usage is released
// exactly once and only by a holder that actually acquired it.
type Holds[H comparable, K comparable] struct {
	mu    sync.Mutex
	usage UsageCounter[K]
	held  map[H]K
}

// NewHolds creates an empty ledger over usage.
func NewHolds[H comparable, K comparable](usage UsageCounter[K]) *Holds[H, K] {
	return &Holds[H, K]{usage: usage, held: make(map[H]K)}
}

// Acquire increments the usage of key on behalf of holder. Nothing is recorded when
// the increment fails; a holder that already holds a key keeps its first one.
func (h *Holds[H, K]) Acquire(holder H, key K) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.held[holder]; ok {
		return nil
	}
	if err := h.usage.IncrementUsage(key); err != nil {
		return err
	}
	h.held[holder] = key
	return nil
}

// Release drops holder's usage. ok is false when holder held nothing. The record is
// forgotten even if the decrement fails, e.g. because the entry was evicted.
func (h *Holds[H, K]) Release(holder H) (key K, ok bool, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key, ok = h.held[holder]
	if !ok {
		return key, false, nil
	}
	delete(h.held, holder)
	return key, true, h.usage.DecrementUsage(key)
}

// Len returns the number of outstanding holds.
func (h *Holds[H, K]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.held)
}
