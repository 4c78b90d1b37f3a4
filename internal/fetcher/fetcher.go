// Package fetcher loads task payloads from the upstream HTTP source.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"task-queue-api/internal/retry"
)

// ErrUpstream wraps non-success responses from the fetch source.
var ErrUpstream = errors.New("upstream error")

// payloads larger than this are rejected
const maxBody = 8 << 20

// HTTPGetter fetches GET {baseURL}/{key} and returns the body as text.
// It implements cache.Getter[string, string].
type HTTPGetter struct {
	client  *http.Client
	baseURL string
	retry   retry.Config
	logger  *slog.Logger
}

// New creates an HTTPGetter. client may be nil.
func New(client *http.Client, baseURL string, cfg retry.Config, logger *slog.Logger) *HTTPGetter {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPGetter{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		retry:   cfg,
		logger:  logger,
	}
}

// Fetch retrieves the payload for key. 5xx responses and transport errors are retried;
// 4xx responses are not.
func (g *HTTPGetter) Fetch(ctx context.Context, key string) (string, error) {
	target := g.baseURL + "/" + url.PathEscape(key)
	attempt := 0
	body, err := retry.Do(ctx, g.retry, func(ctx context.Context) (string, error) {
		attempt++
		body, err := g.get(ctx, target)
		if err != nil && !retry.IsPermanent(err) {
			g.logger.Debug("fetch attempt failed", "key", key, "attempt", attempt, "err", err)
		}
		return body, err
	})
	if err != nil {
		return "", fmt.Errorf("fetch %q: %w", key, err)
	}
	return body, nil
}

func (g *HTTPGetter) get(ctx context.Context, target string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", retry.Permanent(err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: %s", ErrUpstream, resp.Status)
	}
	if resp.StatusCode != http.StatusOK {
		return "", retry.Permanent(fmt.Errorf("%w: %s", ErrUpstream, resp.Status))
	}
	if len(data) > maxBody {
		return "", retry.Permanent(fmt.Errorf("%w: payload exceeds %d bytes", ErrUpstream, maxBody))
	}
	return string(data), nil
}
