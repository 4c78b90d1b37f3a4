// Package backup mirrors a queue.Queue into a durable Store so pending work survives a
// restart.
//
// Push records the serialized task before it reaches the queue and Complete deletes the
// record once the task is acknowledged. Timeout requeues are not mirrored: a task that
// timed out is still recorded, because it has not completed. On start-up every stored
// record is replayed into the queue's pending list.
//
// Records are keyed by the serialized payload, so tasks with identical payloads share
// one record and recovery brings back one of them.
package backup

import (
	"context"
	"fmt"
	"time"

	"task-queue-api/internal/queue"
)

// Queue is a queue.Queue with a durable mirror.
type Queue[T any] struct {
	queue     *queue.Queue[T]
	store     Store
	codec     Codec[T]
	recovered int
}

// New wraps q and replays every record of store into it.
func New[T any](ctx context.Context, q *queue.Queue[T], store Store, codec Codec[T]) (*Queue[T], error) {
	b := &Queue[T]{queue: q, store: store, codec: codec}
	err := store.Iterate(ctx, func(key []byte) error {
		item, err := codec.Decode(key)
		if err != nil {
			return fmt.Errorf("decode backup record: %w", err)
		}
		q.Push(item)
		b.recovered++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("replay backup: %w", err)
	}
	return b, nil
}

// Recovered returns the number of tasks replayed from the store by New.
func (b *Queue[T]) Recovered() int { return b.recovered }

// Push records item in the store, then appends it to the queue. A crash between the two
// steps leaves the record in place, so the task is recovered on the next start.
func (b *Queue[T]) Push(ctx context.Context, item T) error {
	key, err := b.codec.Encode(item)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := b.store.Put(ctx, key); err != nil {
		return fmt.Errorf("backup put: %w", err)
	}
	b.queue.Push(item)
	return nil
}

// Claim delegates to queue.Queue.Claim.
func (b *Queue[T]) Claim(ctx context.Context, timeout time.Duration) (T, queue.TaskID, bool) {
	return b.queue.Claim(ctx, timeout)
}

// Complete acknowledges id and deletes the task's record. It reports false for a stale id.
// A returned error means the task left the queue but its record could not be deleted,
// so it will reappear after a restart.
func (b *Queue[T]) Complete(ctx context.Context, id queue.TaskID) (T, bool, error) {
	item, ok := b.queue.Complete(id)
	if !ok {
		return item, false, nil
	}
	return item, true, b.forget(ctx, item)
}

// CompleteWithInspect acknowledges id and calls inspect with the task (found=true) or
// with found=false when id is stale. inspect runs after the task has left the in-memory
// queue and before its record is deleted; if inspect fails the record is kept so the
// task is delivered again after a restart, and the error is returned.
func (b *Queue[T]) CompleteWithInspect(ctx context.Context, id queue.TaskID, inspect func(ctx context.Context, item T, found bool) error) error {
	item, ok := b.queue.Complete(id)
	if !ok {
		return inspect(ctx, item, false)
	}
	if err := inspect(ctx, item, true); err != nil {
		return err
	}
	return b.forget(ctx, item)
}

func (b *Queue[T]) forget(ctx context.Context, item T) error {
	key, err := b.codec.Encode(item)
	if err != nil {
		return fmt.Errorf("encode task: %w", err)
	}
	if err := b.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("backup delete: %w", err)
	}
	return nil
}

// SweepTimeouts delegates to queue.Queue.SweepTimeouts. The store is not touched.
func (b *Queue[T]) SweepTimeouts(onTimeout func(queue.TaskID, T)) int {
	return b.queue.SweepTimeouts(onTimeout)
}

// PendingLen returns the number of unclaimed tasks.
func (b *Queue[T]) PendingLen() int { return b.queue.PendingLen() }

// ProcessingLen returns the number of claimed, unacknowledged tasks.
func (b *Queue[T]) ProcessingLen() int { return b.queue.ProcessingLen() }
