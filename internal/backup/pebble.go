package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// PebbleStore keeps records as keys of an embedded Pebble database. Every write is
// synced to the WAL before it returns.
type PebbleStore struct {
	db *pebble.DB
}

// OpenPebble opens or creates a Pebble database in dir.
func OpenPebble(dir string) (*PebbleStore, error) {
	if dir == "" {
		return nil, errors.New("pebble: data dir is required")
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble %s: %w", dir, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Put(_ context.Context, key []byte) error {
	return s.db.Set(key, nil, pebble.Sync)
}

func (s *PebbleStore) Delete(_ context.Context, key []byte) error {
	return s.db.Delete(key, pebble.Sync)
}

// Iterate scans keys in byte order.
func (s *PebbleStore) Iterate(ctx context.Context, fn func(key []byte) error) (err error) {
	it, err := s.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := it.Close(); err == nil {
			err = cerr
		}
	}()

	for it.First(); it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		// The iterator owns Key's buffer; copy before handing it out.
		if err := fn(bytes.Clone(it.Key())); err != nil {
			return err
		}
	}
	return it.Error()
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
