package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"task-queue-api/internal/api"
	"task-queue-api/internal/cache"
	"task-queue-api/internal/metrics"
	"task-queue-api/internal/queue"
	"task-queue-api/internal/realtime"

	"github.com/gin-gonic/gin"
)

// TaskQueue is satisfied by *backup.Queue[string].
type TaskQueue interface {
	Push(ctx context.Context, submissionID string) error
	Claim(ctx context.Context, timeout time.Duration) (string, queue.TaskID, bool)
	CompleteWithInspect(ctx context.Context, id queue.TaskID, inspect func(ctx context.Context, submissionID string, found bool) error) error
	PendingLen() int
	ProcessingLen() int
}

// PayloadCache is satisfied by *cache.Cache[string, string].
type PayloadCache interface {
	Get(ctx context.Context, key string) (string, error)
	Stats() cache.Stats
}

// UsageHolds is satisfied by *cache.Holds[queue.TaskID, string]. Each claim that was
// served a payload holds one usage of it until completion or timeout.
type UsageHolds interface {
	Acquire(id queue.TaskID, submissionID string) error
	Release(id queue.TaskID) (string, bool, error)
}

// Notifier is satisfied by *notify.Collector.
type Notifier interface {
	Submit(ctx context.Context, completion api.QueueTaskCompletion) error
}

// Publisher is satisfied by *realtime.Hub.
type Publisher interface {
	Publish(topic string, evt api.Event)
}

// QueueHandler serves the /queue routes.
type QueueHandler struct {
	Queue     TaskQueue
	Cache     PayloadCache
	Holds     UsageHolds
	Notifier  Notifier
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	// ClaimWait bounds how long GetTask waits for a task.
	ClaimWait time.Duration
}

// AddTask handles POST /queue/add_task
func (h *QueueHandler) AddTask(c *gin.Context) {
	var req api.QueueAddTask
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.SubmissionID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request. submission_id is required.",
		})
		return
	}

	if err := h.Queue.Push(c.Request.Context(), req.SubmissionID); err != nil {
		h.Logger.Error("enqueue failed", "submission_id", req.SubmissionID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store task",
		})
		return
	}
	h.Metrics.TasksEnqueued.Inc()

	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

/*
GetTask handles GET /queue/get_task
Waits up to ClaimWait for a task and answers null when none arrived. The payload is
read through the cache; while the worker holds the task the payload counts as in use.
*/
func (h *QueueHandler) GetTask(c *gin.Context) {
	ctx := c.Request.Context()
	submissionID, id, ok := h.Queue.Claim(ctx, h.ClaimWait)
	if !ok {
		h.Metrics.ClaimsEmpty.Inc()
		c.JSON(http.StatusOK, nil)
		return
	}
	h.Metrics.TasksClaimed.Inc()

	exploit, err := h.Cache.Get(ctx, submissionID)
	if err != nil {
		// the claim stays in processing and is requeued after the execution timeout
		h.Logger.Error("payload fetch failed", "task_id", id.String(), "submission_id", submissionID, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to fetch task payload",
		})
		return
	}
	if err := h.Holds.Acquire(id, submissionID); err != nil {
		h.Logger.Debug("payload usage not recorded", "submission_id", submissionID, "err", err)
	}

	c.JSON(http.StatusOK, api.QueueTask{
		ID:           id,
		SubmissionID: submissionID,
		Exploit:      exploit,
	})
}

// SubmitCompleted handles POST /queue/submit_completed
func (h *QueueHandler) SubmitCompleted(c *gin.Context) {
	var req api.QueueCompletedTask
	if err := c.ShouldBindJSON(&req); err != nil || req.ID.IsZero() {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request. A valid task id is required.",
		})
		return
	}

	found := false
	err := h.Queue.CompleteWithInspect(c.Request.Context(), req.ID, func(ctx context.Context, submissionID string, ok bool) error {
		found = ok
		if !ok {
			h.Logger.Info("task not found", "task_id", req.ID.String())
			h.Metrics.StaleCompletions.Inc()
			h.Publisher.Publish(realtime.TopicQueue, api.Event{Type: api.EventTaskNotFound, TaskID: req.ID.String()})
			return nil
		}

		h.Logger.Info("task completed", "task_id", req.ID.String(), "submission_id", submissionID)
		h.Metrics.TasksCompleted.Inc()
		if _, _, err := h.Holds.Release(req.ID); err != nil {
			h.Logger.Debug("payload usage not released", "submission_id", submissionID, "err", err)
		}
		h.Publisher.Publish(realtime.TopicQueue, api.Event{
			Type:         api.EventTaskCompleted,
			TaskID:       req.ID.String(),
			SubmissionID: submissionID,
			Info:         req.Info,
		})
		if err := h.Notifier.Submit(ctx, api.QueueTaskCompletion{SubmissionID: submissionID, Info: req.Info}); err != nil {
			h.Metrics.NotifyFailures.Inc()
			return &notifyError{err: err}
		}
		return nil
	})

	var nerr *notifyError
	switch {
	case errors.As(err, &nerr):
		h.Logger.Error("collector notification failed", "task_id", req.ID.String(), "err", nerr.err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to forward completion",
		})
		return
	case err != nil:
		// acknowledged, but the durable record survives and replays after a restart
		h.Metrics.BackupDeleteFailures.Inc()
		h.Logger.Error("backup delete failed", "task_id", req.ID.String(), "err", err)
	}

	c.JSON(http.StatusOK, api.CompletionResult{Found: found})
}

// Stats handles GET /queue/stats
func (h *QueueHandler) Stats(c *gin.Context) {
	stats := h.Cache.Stats()
	c.JSON(http.StatusOK, api.QueueStats{
		Pending:      h.Queue.PendingLen(),
		Processing:   h.Queue.ProcessingLen(),
		CacheEntries: stats.Entries,
		CacheIdle:    stats.Idle,
		CacheUsed:    stats.Used,
	})
}

type notifyError struct{ err error }

func (e *notifyError) Error() string { return e.err.Error() }
func (e *notifyError) Unwrap() error { return e.err }
