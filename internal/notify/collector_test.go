package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"task-queue-api/internal/api"
	"task-queue-api/internal/retry"

	"github.com/stretchr/testify/require"
)

var fastRetry = retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond}

func TestSubmit_PostsJSON(t *testing.T) {
	var mu sync.Mutex
	var got []api.QueueTaskCompletion
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var c api.QueueTaskCompletion
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		got = append(got, c)
		contentType = r.Header.Get("Content-Type")
		mu.Unlock()
	}))
	defer srv.Close()

	err := NewCollector(srv.Client(), srv.URL+"/submit", fastRetry).Submit(context.Background(), api.QueueTaskCompletion{SubmissionID: "s1", Info: "done"})
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []api.QueueTaskCompletion{{SubmissionID: "s1", Info: "done"}}, got)
	require.Equal(t, "application/json", contentType)
}

func TestSubmit_RetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewCollector(srv.Client(), srv.URL, fastRetry).Submit(context.Background(), api.QueueTaskCompletion{SubmissionID: "s"})
	require.ErrorIs(t, err, ErrRejected)
	require.EqualValues(t, 3, calls.Load())
}

func TestSubmit_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := NewCollector(srv.Client(), srv.URL, fastRetry).Submit(context.Background(), api.QueueTaskCompletion{SubmissionID: "s"})
	require.ErrorIs(t, err, ErrRejected)
	require.EqualValues(t, 1, calls.Load())
}
