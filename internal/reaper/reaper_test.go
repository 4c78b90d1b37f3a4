package reaper

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"task-queue-api/internal/api"
	"task-queue-api/internal/backup"
	"task-queue-api/internal/cache"
	"task-queue-api/internal/metrics"
	"task-queue-api/internal/queue"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []api.Event
}

func (p *recordingPublisher) Publish(_ string, evt api.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestQueueReaper_RequeuesAndReleases(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	q, err := queue.New[string](queue.Options{ExecutionTimeout: 30 * time.Second, Now: clock.Now})
	require.NoError(t, err)
	bq, err := backup.New(ctx, q, backup.NewMemStore(), backup.StringCodec{})
	require.NoError(t, err)

	c, err := cache.New[string, string](cache.GetterFunc[string, string](func(context.Context, string) (string, error) {
		return "payload", nil
	}), cache.Options[string]{IdleExpiry: time.Minute, UsedExpiry: time.Hour, Hasher: cache.StringHasher})
	require.NoError(t, err)

	require.NoError(t, bq.Push(ctx, "s1"))
	_, id, ok := bq.Claim(ctx, time.Second)
	require.True(t, ok)
	_, err = c.Get(ctx, "s1")
	require.NoError(t, err)
	holds := cache.NewHolds[queue.TaskID, string](c)
	require.NoError(t, holds.Acquire(id, "s1"))
	require.Equal(t, 1, c.Stats().Used)

	pub := &recordingPublisher{}
	m := metrics.New()
	r := &QueueReaper{Queue: bq, Usage: holds, Publisher: pub, Metrics: m, Logger: discardLogger()}

	r.Tick(ctx)
	require.Empty(t, pub.types())
	require.InDelta(t, 1, testutil.ToFloat64(m.Processing), 0)

	clock.Advance(31 * time.Second)
	r.Tick(ctx)
	require.Equal(t, []string{api.EventTaskTimeout}, pub.types())
	require.Equal(t, id.String(), pub.events[0].TaskID)
	require.InDelta(t, 1, testutil.ToFloat64(m.TasksTimedOut), 0)
	require.InDelta(t, 1, testutil.ToFloat64(m.Pending), 0)
	require.Equal(t, 1, bq.PendingLen())
	require.Equal(t, 0, c.Stats().Used)
	require.Zero(t, holds.Len())

	_, found, err := bq.Complete(ctx, id)
	require.NoError(t, err)
	require.False(t, found)
}

func TestQueueReaper_TimeoutWithoutHoldKeepsOtherClaimsUsage(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	q, err := queue.New[string](queue.Options{ExecutionTimeout: 30 * time.Second, Now: clock.Now})
	require.NoError(t, err)
	bq, err := backup.New(ctx, q, backup.NewMemStore(), backup.StringCodec{})
	require.NoError(t, err)
	c, err := cache.New[string, string](cache.GetterFunc[string, string](func(context.Context, string) (string, error) {
		return "payload", nil
	}), cache.Options[string]{IdleExpiry: 30 * time.Second, UsedExpiry: time.Hour, Hasher: cache.StringHasher, Now: clock.Now})
	require.NoError(t, err)
	holds := cache.NewHolds[queue.TaskID, string](c)

	require.NoError(t, bq.Push(ctx, "s"))
	require.NoError(t, bq.Push(ctx, "s"))

	// first claim never got its payload, so it holds nothing
	_, unserved, ok := bq.Claim(ctx, time.Second)
	require.True(t, ok)

	clock.Advance(10 * time.Second)
	_, served, ok := bq.Claim(ctx, time.Second)
	require.True(t, ok)
	_, err = c.Get(ctx, "s")
	require.NoError(t, err)
	require.NoError(t, holds.Acquire(served, "s"))

	pub := &recordingPublisher{}
	m := metrics.New()
	r := &QueueReaper{Queue: bq, Usage: holds, Publisher: pub, Metrics: m, Logger: discardLogger()}
	e := &CacheEvictor{Cache: c, Publisher: pub, Metrics: m, Logger: discardLogger()}

	clock.Advance(21 * time.Second)
	r.Tick(ctx)
	require.Equal(t, []string{api.EventTaskTimeout}, pub.types())
	require.Equal(t, unserved.String(), pub.events[0].TaskID)
	require.Equal(t, 1, bq.ProcessingLen())
	require.Equal(t, cache.Stats{Entries: 1, Idle: 0, Used: 1}, c.Stats())

	clock.Advance(time.Minute)
	e.Tick(ctx)
	require.Equal(t, cache.Stats{Entries: 1, Idle: 0, Used: 1}, c.Stats())
	require.Equal(t, 1, holds.Len())
}

func TestCacheEvictor_ReportsUsedEvictions(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1000, 0)}
	c, err := cache.New[string, string](cache.GetterFunc[string, string](func(_ context.Context, k string) (string, error) {
		return "v-" + k, nil
	}), cache.Options[string]{IdleExpiry: 30 * time.Second, UsedExpiry: 10 * time.Minute, Hasher: cache.StringHasher, Now: clock.Now})
	require.NoError(t, err)

	_, err = c.Get(ctx, "idle")
	require.NoError(t, err)
	_, err = c.Get(ctx, "busy")
	require.NoError(t, err)
	require.NoError(t, c.IncrementUsage("busy"))
	require.NoError(t, c.IncrementUsage("busy"))

	pub := &recordingPublisher{}
	m := metrics.New()
	e := &CacheEvictor{Cache: c, Publisher: pub, Metrics: m, Logger: discardLogger()}

	clock.Advance(31 * time.Second)
	e.Tick(ctx)
	require.Empty(t, pub.types())
	require.InDelta(t, 1, testutil.ToFloat64(m.CacheEntries), 0)

	clock.Advance(10 * time.Minute)
	e.Tick(ctx)
	require.Equal(t, []string{api.EventCacheExpired}, pub.types())
	require.Equal(t, "busy", pub.events[0].SubmissionID)
	require.EqualValues(t, 2, pub.events[0].Usages)
	require.InDelta(t, 1, testutil.ToFloat64(m.CacheUsedEvictions), 0)
	require.InDelta(t, 0, testutil.ToFloat64(m.CacheEntries), 0)
}

func TestEvery_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ticks := make(chan struct{}, 16)
	done := make(chan struct{})
	go func() {
		Every(ctx, time.Millisecond, func(context.Context) {
			select {
			case ticks <- struct{}{}:
			default:
			}
		})
		close(done)
	}()

	<-ticks
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop")
	}
}
