// Package apiclient is the HTTP client the worker and producer binaries use to talk to
// the queue server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"task-queue-api/internal/api"
	"task-queue-api/internal/queue"
)

// ErrRateLimited is returned when the server answers 429.
var ErrRateLimited = errors.New("rate limited")

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// Client calls the queue server routes.
type Client struct {
	base  string
	http  *http.Client
	token string
}

// New creates a Client for the server at base. httpClient may be nil; its timeout must
// exceed the server's claim wait.
func New(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(base, "/"), http: httpClient}
}

// SetToken sets the bearer token sent with every request.
func (c *Client) SetToken(token string) { c.token = token }

// Login exchanges an API key for a token and keeps it for later calls.
func (c *Client) Login(ctx context.Context, worker, apiKey string) error {
	var resp api.TokenResponse
	if err := c.do(ctx, http.MethodPost, "/api/token", api.TokenRequest{Worker: worker, APIKey: apiKey}, http.StatusOK, &resp); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.token = resp.Token
	return nil
}

// AddTask enqueues a submission.
func (c *Client) AddTask(ctx context.Context, submissionID string) error {
	return c.do(ctx, http.MethodPost, "/queue/add_task", api.QueueAddTask{SubmissionID: submissionID}, http.StatusAccepted, nil)
}

// GetTask claims a task. It returns nil, nil when the server had nothing to hand out.
func (c *Client) GetTask(ctx context.Context) (*api.QueueTask, error) {
	var task *api.QueueTask
	if err := c.do(ctx, http.MethodGet, "/queue/get_task", nil, http.StatusOK, &task); err != nil {
		return nil, err
	}
	return task, nil
}

// SubmitCompleted acknowledges a claim and reports whether the server still knew it.
func (c *Client) SubmitCompleted(ctx context.Context, id queue.TaskID, info string) (bool, error) {
	var res api.CompletionResult
	if err := c.do(ctx, http.MethodPost, "/queue/submit_completed", api.QueueCompletedTask{ID: id, Info: info}, http.StatusOK, &res); err != nil {
		return false, err
	}
	return res.Found, nil
}

// Stats fetches queue and cache sizes.
func (c *Client) Stats(ctx context.Context) (api.QueueStats, error) {
	var s api.QueueStats
	err := c.do(ctx, http.MethodGet, "/queue/stats", nil, http.StatusOK, &s)
	return s, err
}

func (c *Client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode != want:
		return &StatusError{Code: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}
