package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock shared by a test and the queue under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{t: time.Unix(1_700_000_000, 0)} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestQueue(t *testing.T, clock *fakeClock) *Queue[string] {
	t.Helper()
	opts := Options{ExecutionTimeout: 30 * time.Second}
	if clock != nil {
		opts.Now = clock.Now
	}
	q, err := New[string](opts)
	require.NoError(t, err)
	return q
}

func TestNew_RejectsNonPositiveTimeout(t *testing.T) {
	_, err := New[string](Options{})
	require.ErrorIs(t, err, ErrInvalidTimeout)
}

func TestQueue_FIFO(t *testing.T) {
	q := newTestQueue(t, nil)
	q.Push("A")
	q.Push("B")

	ctx := context.Background()
	a, _, ok := q.Claim(ctx, time.Second)
	require.True(t, ok)
	require.Equal(t, "A", a)
	b, _, ok := q.Claim(ctx, time.Second)
	require.True(t, ok)
	require.Equal(t, "B", b)
}

func TestQueue_ClaimCompleteScenario(t *testing.T) {
	q := newTestQueue(t, nil)
	ctx := context.Background()

	q.Push("task1")
	start := time.Now()
	item, id0, ok := q.Claim(ctx, time.Second)
	require.True(t, ok)
	require.Equal(t, "task1", item)
	require.Less(t, time.Since(start), 500*time.Millisecond, "claim on a non-empty queue must not wait")
	require.Equal(t, 0, q.PendingLen())
	require.Equal(t, 1, q.ProcessingLen())

	start = time.Now()
	_, _, ok = q.Claim(ctx, 100*time.Millisecond)
	elapsed := time.Since(start)
	require.False(t, ok)
	require.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	require.Less(t, elapsed, time.Second)

	done, ok := q.Complete(id0)
	require.True(t, ok)
	require.Equal(t, "task1", done)

	_, ok = q.Complete(id0)
	require.False(t, ok, "second completion must report not found")
	require.Equal(t, 0, q.ProcessingLen())
}

func TestQueue_ClaimWakesOnPush(t *testing.T) {
	q := newTestQueue(t, nil)
	got := make(chan string, 1)
	go func() {
		item, _, ok := q.Claim(context.Background(), 5*time.Second)
		if ok {
			got <- item
		}
		close(got)
	}()

	time.Sleep(50 * time.Millisecond)
	q.Push("late")

	select {
	case item := <-got:
		require.Equal(t, "late", item)
	case <-time.After(2 * time.Second):
		t.Fatal("claimer was not woken by push")
	}
}

func TestQueue_ClaimRespectsContext(t *testing.T) {
	q := newTestQueue(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, _, ok := q.Claim(ctx, 10*time.Second)
	require.False(t, ok)

	// A cancelled claimer leaves no waiter behind that could swallow a wakeup.
	q.Push("x")
	item, _, ok := q.Claim(context.Background(), time.Second)
	require.True(t, ok)
	require.Equal(t, "x", item)
}

func TestQueue_ConcurrentClaimsAreUnique(t *testing.T) {
	q := newTestQueue(t, nil)
	const workers, tasks = 8, 200

	var wg sync.WaitGroup
	var mu sync.Mutex
	seenIDs := make(map[TaskID]struct{})
	seenItems := make(map[string]int)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				item, id, ok := q.Claim(context.Background(), 200*time.Millisecond)
				if !ok {
					return
				}
				mu.Lock()
				_, dup := seenIDs[id]
				seenIDs[id] = struct{}{}
				seenItems[item]++
				mu.Unlock()
				if dup {
					t.Errorf("id %s handed out twice", id)
				}
			}
		}()
	}

	for i := 0; i < tasks; i++ {
		q.Push(fmt.Sprintf("task-%d", i))
	}
	wg.Wait()

	require.Len(t, seenIDs, tasks)
	for item, n := range seenItems {
		require.Equal(t, 1, n, "item %s delivered more than once", item)
	}
	require.Equal(t, tasks, q.ProcessingLen())
}

func TestQueue_SweepRequeuesExpiredClaims(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(t, clock)
	ctx := context.Background()

	q.Push("slow")
	q.Push("fast")
	_, slowID, ok := q.Claim(ctx, time.Second)
	require.True(t, ok)
	clock.Advance(20 * time.Second)
	_, fastID, ok := q.Claim(ctx, time.Second)
	require.True(t, ok)

	clock.Advance(10*time.Second + time.Millisecond)

	var timedOut []TaskID
	n := q.SweepTimeouts(func(id TaskID, item string) {
		require.Equal(t, "slow", item)
		timedOut = append(timedOut, id)
	})
	require.Equal(t, 1, n)
	require.Equal(t, []TaskID{slowID}, timedOut)
	require.Equal(t, 1, q.PendingLen())
	require.Equal(t, 1, q.ProcessingLen())

	_, ok = q.Complete(slowID)
	require.False(t, ok, "timed out id must be stale")

	item, newID, ok := q.Claim(ctx, time.Second)
	require.True(t, ok)
	require.Equal(t, "slow", item)
	require.NotEqual(t, slowID, newID)

	_, ok = q.Complete(fastID)
	require.True(t, ok)
}

func TestQueue_SweepKeepsClaimsWithinThreshold(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(t, clock)
	q.Push("a")
	_, _, ok := q.Claim(context.Background(), time.Second)
	require.True(t, ok)

	clock.Advance(30 * time.Second)
	require.Equal(t, 0, q.SweepTimeouts(nil), "age equal to the timeout is not expired")
	require.Equal(t, 1, q.ProcessingLen())

	require.Equal(t, 1, q.SweepTimeoutsAfter(time.Second, nil))
	require.Equal(t, 0, q.ProcessingLen())
	require.Equal(t, 1, q.PendingLen())
}

func TestQueue_SweepWakesWaitingClaimer(t *testing.T) {
	clock := newFakeClock()
	q := newTestQueue(t, clock)
	q.Push("again")
	_, _, ok := q.Claim(context.Background(), time.Second)
	require.True(t, ok)

	got := make(chan string, 1)
	go func() {
		item, _, _ := q.Claim(context.Background(), 5*time.Second)
		got <- item
	}()
	time.Sleep(50 * time.Millisecond)

	clock.Advance(time.Minute)
	require.Equal(t, 1, q.SweepTimeouts(nil))

	select {
	case item := <-got:
		require.Equal(t, "again", item)
	case <-time.After(2 * time.Second):
		t.Fatal("requeue did not wake the claimer")
	}
}

func TestTaskID_TextRoundTrip(t *testing.T) {
	q := newTestQueue(t, nil)
	q.Push("x")
	_, id, ok := q.Claim(context.Background(), time.Second)
	require.True(t, ok)

	text, err := id.MarshalText()
	require.NoError(t, err)
	var back TaskID
	require.NoError(t, back.UnmarshalText(text))
	require.Equal(t, id, back)

	_, err = ParseTaskID("not-hex")
	require.Error(t, err)
}

func TestFIFO_Compaction(t *testing.T) {
	var f fifo[int]
	for i := 0; i < 100; i++ {
		f.push(i)
	}
	for i := 0; i < 60; i++ {
		v, ok := f.pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	require.Equal(t, 40, f.len())
	f.push(100)
	for i := 60; i <= 100; i++ {
		v, ok := f.pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok := f.pop()
	require.False(t, ok)
}
