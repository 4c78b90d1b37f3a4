// Package queue implements an in-memory work queue with visibility timeouts.
//
// A task is Pending after Push. Claim moves it to Processing under a fresh TaskID and a
// claim timestamp. Complete removes it for good; a task left in Processing for longer
// than the execution timeout is moved back to the tail of Pending by SweepTimeouts and
// delivered again under a new TaskID. Delivery is at-least-once.
//
// Pending is a FIFO. Processing is an arena ordered by claim time, so a sweep only looks
// at the entries that actually expired and stops at the first one still in time.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"task-queue-api/internal/arena"
)

// ErrInvalidTimeout is returned by New when the execution timeout is not positive.
var ErrInvalidTimeout = errors.New("queue: execution timeout must be positive")

// Options configures a Queue.
type Options struct {
	// ExecutionTimeout is how long a claimed task may stay unacknowledged before the
	// sweep returns it to Pending.
	ExecutionTimeout time.Duration
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// Queue is a FIFO of pending tasks plus a claim-ordered set of in-flight tasks.
// All methods are safe for concurrent use.
type Queue[T any] struct {
	executionTimeout time.Duration
	now              func() time.Time

	// Lock order: pendingMu before processingMu. Only lockBoth takes both.
	pendingMu sync.Mutex
	pending   fifo[T]
	waiters   *arena.Arena[chan struct{}]

	processingMu sync.Mutex
	processing   *arena.Arena[arena.Timed[T]]
}

// New creates an empty Queue.
func New[T any](opts Options) (*Queue[T], error) {
	if opts.ExecutionTimeout <= 0 {
		return nil, ErrInvalidTimeout
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Queue[T]{
		executionTimeout: opts.ExecutionTimeout,
		now:              now,
		waiters:          arena.New[chan struct{}](),
		processing:       arena.New[arena.Timed[T]](),
	}, nil
}

// ExecutionTimeout returns the configured visibility timeout.
func (q *Queue[T]) ExecutionTimeout() time.Duration { return q.executionTimeout }

func (q *Queue[T]) lockBoth() (unlock func()) {
	q.pendingMu.Lock()
	q.processingMu.Lock()
	return func() {
		q.processingMu.Unlock()
		q.pendingMu.Unlock()
	}
}

// Push appends item to the tail of Pending and wakes one waiting claimer.
func (q *Queue[T]) Push(item T) {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	q.pending.push(item)
	q.wakeOneLocked()
}

// wakeOneLocked signals the longest waiting claimer. pendingMu must be held.
// A waiter is removed from the list when signalled, so it is signalled at most once.
func (q *Queue[T]) wakeOneLocked() {
	if _, ch, ok := q.waiters.PopFront(); ok {
		ch <- struct{}{}
	}
}

// claimLocked moves the head of Pending into Processing. Both locks must be held.
func (q *Queue[T]) claimLocked() (T, TaskID, bool) {
	item, ok := q.pending.pop()
	if !ok {
		var zero T
		return zero, TaskID{}, false
	}
	id := q.processing.Insert(arena.Stamp(item, q.now()))
	return item, TaskID(id), true
}

// Claim takes the oldest pending task. When Pending is empty it waits until a Push
// wakes it, the timeout elapses or ctx is done; in the latter two cases it reports
// false and leaves the queue untouched.
func (q *Queue[T]) Claim(ctx context.Context, timeout time.Duration) (T, TaskID, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		unlock := q.lockBoth()
		if item, id, ok := q.claimLocked(); ok {
			unlock()
			return item, id, true
		}
		wake := make(chan struct{}, 1)
		wid := q.waiters.Insert(wake)
		unlock()

		select {
		case <-wake:
			// Wakeups may be coalesced or raced by other claimers: re-check Pending.
			continue
		case <-timer.C:
		case <-ctx.Done():
		}

		unlock = q.lockBoth()
		if _, waiting := q.waiters.Remove(wid); !waiting {
			// A push signalled us while we were giving up. Take its task rather than
			// leaving it for a claimer that may never come.
			if item, id, ok := q.claimLocked(); ok {
				unlock()
				return item, id, true
			}
		}
		unlock()
		var zero T
		return zero, TaskID{}, false
	}
}

// Complete acknowledges the claim id and returns its task. It reports false when the id
// is stale: already completed, or timed out and requeued under a new id.
func (q *Queue[T]) Complete(id TaskID) (T, bool) {
	q.processingMu.Lock()
	defer q.processingMu.Unlock()
	t, ok := q.processing.Remove(arena.ID(id))
	return t.Value, ok
}

// SweepTimeouts requeues every claim older than the configured execution timeout.
// See SweepTimeoutsAfter.
func (q *Queue[T]) SweepTimeouts(onTimeout func(TaskID, T)) int {
	return q.SweepTimeoutsAfter(q.executionTimeout, onTimeout)
}

// SweepTimeoutsAfter walks Processing from the oldest claim and moves every entry whose
// age exceeds timeout to the tail of Pending, waking one claimer per requeued task. It
// stops at the first entry still within the threshold and returns the number requeued.
//
// onTimeout, if non-nil, sees the now stale id and the task. It runs with the queue
// locked and must not call back into the queue.
func (q *Queue[T]) SweepTimeoutsAfter(timeout time.Duration, onTimeout func(TaskID, T)) int {
	unlock := q.lockBoth()
	defer unlock()

	now := q.now()
	requeued := 0
	for {
		front, ok := q.processing.Front()
		if !ok || !front.Older(now, timeout) {
			return requeued
		}
		id, t, _ := q.processing.PopFront()
		if onTimeout != nil {
			onTimeout(TaskID(id), t.Value)
		}
		q.pending.push(t.Value)
		q.wakeOneLocked()
		requeued++
	}
}

// PendingLen returns the number of unclaimed tasks.
func (q *Queue[T]) PendingLen() int {
	q.pendingMu.Lock()
	defer q.pendingMu.Unlock()
	return q.pending.len()
}

// ProcessingLen returns the number of claimed, unacknowledged tasks.
func (q *Queue[T]) ProcessingLen() int {
	q.processingMu.Lock()
	defer q.processingMu.Unlock()
	return q.processing.Len()
}
