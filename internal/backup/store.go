package backup

import (
	"context"
	"sync"
)

// Store is the durable key set mirroring the tasks that have not completed yet.
// Values are not used; a key is a task's serialized form.
type Store interface {
	// Put records key. Putting a key that is already present is not an error.
	Put(ctx context.Context, key []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key []byte) error
	// Iterate calls fn for every stored key in the store's natural order and stops at
	// the first error fn returns.
	Iterate(ctx context.Context, fn func(key []byte) error) error
	// Close releases the store.
	Close() error
}

// MemStore is a Store kept in process memory. It does not survive a restart and is meant
// for tests and for running without durability.
type MemStore struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{keys: make(map[string]struct{})}
}

func (m *MemStore) Put(_ context.Context, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[string(key)] = struct{}{}
	return nil
}

func (m *MemStore) Delete(_ context.Context, key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, string(key))
	return nil
}

func (m *MemStore) Iterate(ctx context.Context, fn func(key []byte) error) error {
	m.mu.Lock()
	keys := make([]string, 0, len(m.keys))
	for k := range m.keys {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn([]byte(k)); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

func (m *MemStore) Close() error { return nil }
