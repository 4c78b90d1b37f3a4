package backup

import (
	"context"
	"testing"

	"task-queue-api/internal/testutil"

	"github.com/stretchr/testify/require"
)

func TestSQLStore_PutDeleteIterate(t *testing.T) {
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	store := NewSQLStore(db)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, []byte("one")))
	require.NoError(t, store.Put(ctx, []byte("two")))
	require.NoError(t, store.Put(ctx, []byte("one")), "duplicate put is a no-op")

	n, err := store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	var keys []string
	require.NoError(t, store.Iterate(ctx, func(key []byte) error {
		keys = append(keys, string(key))
		return nil
	}))
	require.ElementsMatch(t, []string{"one", "two"}, keys)

	require.NoError(t, store.Delete(ctx, []byte("one")))
	require.NoError(t, store.Delete(ctx, []byte("missing")))
	n, err = store.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestSQLStore_BacksQueueRecovery(t *testing.T) {
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	store := NewSQLStore(db)
	ctx := context.Background()

	first := newBackedQueue(t, store)
	require.NoError(t, first.Push(ctx, "alpha"))
	require.NoError(t, first.Push(ctx, "beta"))

	second := newBackedQueue(t, store)
	require.Equal(t, 2, second.Recovered())
	require.Equal(t, []string{"alpha", "beta"}, drain(t, second))
}
