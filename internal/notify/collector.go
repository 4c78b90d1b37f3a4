// Package notify forwards acknowledged tasks to the downstream collector.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"task-queue-api/internal/api"
	"task-queue-api/internal/retry"
)

// ErrRejected wraps non-success responses from the collector.
var ErrRejected = errors.New("collector rejected completion")

// Collector posts QueueTaskCompletion bodies to a fixed URL.
type Collector struct {
	client *http.Client
	url    string
	retry  retry.Config
}

// NewCollector creates a Collector. client may be nil.
func NewCollector(client *http.Client, url string, cfg retry.Config) *Collector {
	if client == nil {
		client = http.DefaultClient
	}
	return &Collector{client: client, url: url, retry: cfg}
}

// Submit delivers one completion. 5xx responses and transport errors are retried.
func (c *Collector) Submit(ctx context.Context, completion api.QueueTaskCompletion) error {
	body, err := json.Marshal(completion)
	if err != nil {
		return fmt.Errorf("encode completion: %w", err)
	}
	_, err = retry.Do(ctx, c.retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("notify collector: %w", err)
	}
	return nil
}

func (c *Collector) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: %s", ErrRejected, resp.Status)
	case resp.StatusCode >= 300:
		return retry.Permanent(fmt.Errorf("%w: %s", ErrRejected, resp.Status))
	}
	return nil
}
