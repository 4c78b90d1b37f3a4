// Package reaper runs the periodic housekeeping of the server: requeueing claims that
// outlived the execution timeout and evicting expired cache entries.
package reaper

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"task-queue-api/internal/api"
	"task-queue-api/internal/cache"
	"task-queue-api/internal/metrics"
	"task-queue-api/internal/queue"
	"task-queue-api/internal/realtime"
)

// Every calls tick once per interval until ctx is done.
func Every(ctx context.Context, interval time.Duration, tick func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// TimeoutSweeper is satisfied by *backup.Queue[string].
type TimeoutSweeper interface {
	SweepTimeouts(onTimeout func(queue.TaskID, string)) int
	PendingLen() int
	ProcessingLen() int
}

// UsageReleaser is satisfied by *cache.Holds[queue.TaskID, string].
type UsageReleaser interface {
	Release(id queue.TaskID) (string, bool, error)
}

// Publisher is satisfied by *realtime.Hub.
type Publisher interface {
	Publish(topic string, evt api.Event)
}

type timedOut struct {
	id           queue.TaskID
	submissionID string
}

// QueueReaper requeues timed-out claims and releases the payload they were holding.
type QueueReaper struct {
	Queue     TimeoutSweeper
	Usage     UsageReleaser
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger

	lastPending, lastProcessing int
}

// Tick runs one sweep.
func (r *QueueReaper) Tick(context.Context) {
	var expired []timedOut
	r.Queue.SweepTimeouts(func(id queue.TaskID, submissionID string) {
		expired = append(expired, timedOut{id: id, submissionID: submissionID})
	})

	for _, t := range expired {
		r.Logger.Warn("task timed out, requeued", "task_id", t.id.String(), "submission_id", t.submissionID)
		if _, _, err := r.Usage.Release(t.id); err != nil {
			logRelease(r.Logger, t.submissionID, err)
		}
		r.Publisher.Publish(realtime.TopicQueue, api.Event{
			Type:         api.EventTaskTimeout,
			TaskID:       t.id.String(),
			SubmissionID: t.submissionID,
		})
	}
	r.Metrics.TasksTimedOut.Add(float64(len(expired)))

	pending, processing := r.Queue.PendingLen(), r.Queue.ProcessingLen()
	r.Metrics.ObserveQueue(pending, processing)
	if pending != r.lastPending || processing != r.lastProcessing {
		r.Logger.Info("tasks left", "pending", pending, "processing", processing)
		r.lastPending, r.lastProcessing = pending, processing
	}
}

// logRelease reports a failed usage release. A held entry that is missing was evicted
// on the used window and already reported by the evictor, so that only logs at debug.
func logRelease(logger *slog.Logger, key string, err error) {
	if errors.Is(err, cache.ErrNotFound) || errors.Is(err, cache.ErrUnderflow) {
		logger.Debug("payload usage not released", "submission_id", key, "err", err)
		return
	}
	logger.Warn("payload usage not released", "submission_id", key, "err", err)
}

// CacheSweeper is satisfied by *cache.Cache[string, string].
type CacheSweeper interface {
	Evict() []cache.Expired[string]
	Stats() cache.Stats
}

// CacheEvictor drops expired cache entries and reports the ones that were still in use.
type CacheEvictor struct {
	Cache     CacheSweeper
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Tick runs one eviction pass.
func (e *CacheEvictor) Tick(context.Context) {
	for _, exp := range e.Cache.Evict() {
		e.Logger.Warn("cache entry expired while in use", "submission_id", exp.Key, "usages", exp.Usages)
		e.Metrics.CacheUsedEvictions.Inc()
		e.Publisher.Publish(realtime.TopicCache, api.Event{
			Type:         api.EventCacheExpired,
			SubmissionID: exp.Key,
			Usages:       exp.Usages,
		})
	}
	stats := e.Cache.Stats()
	e.Metrics.CacheEntries.Set(float64(stats.Entries))
	e.Logger.Debug("cache swept", "entries", stats.Entries, "idle", stats.Idle, "used", stats.Used)
}
