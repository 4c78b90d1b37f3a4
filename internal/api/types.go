// Package api holds the JSON bodies exchanged by the queue server, the worker and
// client binaries, and the collector.
package api

import "task-queue-api/internal/queue"

// QueueAddTask is the body of POST /queue/add_task.
type QueueAddTask struct {
	SubmissionID string `json:"submission_id" binding:"required"`
}

// QueueTask is a claimed task as handed to a worker by GET /queue/get_task.
type QueueTask struct {
	ID           queue.TaskID `json:"id"`
	SubmissionID string       `json:"submission_id"`
	Exploit      string       `json:"exploit"`
}

// QueueCompletedTask is the body of POST /queue/submit_completed.
type QueueCompletedTask struct {
	ID   queue.TaskID `json:"id"`
	Info string       `json:"info"`
}

// CompletionResult answers POST /queue/submit_completed.
type CompletionResult struct {
	Found bool `json:"found"`
}

// QueueTaskCompletion is forwarded to the collector for every acknowledged task.
type QueueTaskCompletion struct {
	SubmissionID string `json:"submission_id"`
	Info         string `json:"info"`
}

// QueueStats answers GET /queue/stats.
type QueueStats struct {
	Pending      int `json:"pending"`
	Processing   int `json:"processing"`
	CacheEntries int `json:"cache_entries"`
	CacheIdle    int `json:"cache_idle"`
	CacheUsed    int `json:"cache_used"`
}

// TokenRequest is the body of POST /api/token.
type TokenRequest struct {
	Worker string `json:"worker" binding:"required"`
	APIKey string `json:"api_key" binding:"required"`
}

// TokenResponse carries a signed worker token.
type TokenResponse struct {
	Token     string `json:"token"`
	Worker    string `json:"worker"`
	ExpiresAt int64  `json:"expires_at"`
}

// Event types published on the websocket feed.
const (
	EventTaskCompleted = "task_completed"
	EventTaskNotFound  = "task_not_found"
	EventTaskTimeout   = "task_timeout"
	EventCacheExpired  = "cache_expired"
)

// Event is one message on GET /queue/events.
type Event struct {
	Type         string `json:"type"`
	TaskID       string `json:"task_id,omitempty"`
	SubmissionID string `json:"submission_id,omitempty"`
	Info         string `json:"info,omitempty"`
	Usages       uint64 `json:"usages,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}
