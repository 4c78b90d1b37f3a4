package fetcher

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"task-queue-api/internal/cache"
	"task-queue-api/internal/retry"

	"github.com/stretchr/testify/require"
)

var _ cache.Getter[string, string] = (*HTTPGetter)(nil)

var fastRetry = retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}

func TestFetch_ReturnsBody(t *testing.T) {
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.EscapedPath())
		_, _ = w.Write([]byte("payload"))
	}))
	defer srv.Close()

	g := New(srv.Client(), srv.URL+"/get_exploit/", fastRetry, nil)
	body, err := g.Fetch(context.Background(), "task 1")
	require.NoError(t, err)
	require.Equal(t, "payload", body)
	require.Equal(t, "/get_exploit/task%201", path.Load())
}

func TestFetch_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("third time"))
	}))
	defer srv.Close()

	body, err := New(srv.Client(), srv.URL, fastRetry, nil).Fetch(context.Background(), "k")
	require.NoError(t, err)
	require.Equal(t, "third time", body)
	require.EqualValues(t, 3, calls.Load())
}

func TestFetch_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := New(srv.Client(), srv.URL, fastRetry, nil).Fetch(context.Background(), "missing")
	require.ErrorIs(t, err, ErrUpstream)
	require.EqualValues(t, 1, calls.Load())
}

func TestFetch_RejectsOversizeBody(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write(bytes.Repeat([]byte("x"), maxBody+100))
	}))
	defer srv.Close()

	_, err := New(srv.Client(), srv.URL, fastRetry, nil).Fetch(context.Background(), "big")
	require.ErrorIs(t, err, ErrUpstream)
	require.ErrorContains(t, err, "payload exceeds")
	require.EqualValues(t, 1, calls.Load())
}

func TestFetch_AcceptsBodyAtLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), maxBody))
	}))
	defer srv.Close()

	body, err := New(srv.Client(), srv.URL, fastRetry, nil).Fetch(context.Background(), "edge")
	require.NoError(t, err)
	require.Len(t, body, maxBody)
}

func TestFetch_GivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := New(srv.Client(), srv.URL, fastRetry, nil).Fetch(context.Background(), "k")
	require.ErrorIs(t, err, ErrUpstream)
}

func TestFetch_FeedsCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("v"))
	}))
	defer srv.Close()

	c, err := cache.New[string, string](New(srv.Client(), srv.URL, fastRetry, nil), cache.Options[string]{
		IdleExpiry: time.Minute,
		UsedExpiry: time.Hour,
		Hasher:     cache.StringHasher,
	})
	require.NoError(t, err)

	for range 3 {
		v, err := c.Get(context.Background(), "k")
		require.NoError(t, err)
		require.Equal(t, "v", v)
	}
	require.EqualValues(t, 1, calls.Load())
}
