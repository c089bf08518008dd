package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-task-scheduler/internal/api"
	"research-task-scheduler/internal/models"
	"research-task-scheduler/internal/queue"
	"research-task-scheduler/internal/service"
	"research-task-scheduler/internal/store"
)

func runCLI(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--server", server}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCLIAgainstAPI(t *testing.T) {
	q := queue.NewMemoryQueue(queue.Options{})
	st := store.NewMemory()
	srv := httptest.NewServer(api.New(service.New(q, st, nil, nil, 0), nil, nil).Router())
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "submit", "-p", "high", "deep", "sea", "mining")
	require.NoError(t, err)
	assert.Contains(t, out, "\thigh\twaiting")

	next, ok := q.Next()
	require.True(t, ok)
	assert.Equal(t, "deep sea mining", next.Topic)

	out, err = runCLI(t, srv.URL, "status", next.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "waiting\t0%")

	out, err = runCLI(t, srv.URL, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "waiting: 1")

	out, err = runCLI(t, srv.URL, "cancel", next.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "cancelled "+next.ID)

	_, err = runCLI(t, srv.URL, "status", next.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	_, err = runCLI(t, srv.URL, "submit", "--priority", "asap", "topic")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
}

func TestCLIResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/research/job-1/result", r.URL.Path)
		_ = json.NewEncoder(w).Encode(models.ResearchResult{
			Topic: "fusion", Summary: "Fusion is near.", KeyInsights: []string{"Sources consulted: 2."},
			Keywords: []string{"fusion", "plasma"}, TotalArticles: 4, Confidence: 0.75,
		})
	}))
	defer srv.Close()

	out, err := runCLI(t, srv.URL, "result", "job-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Confidence: 0.75")
	assert.Contains(t, out, "Keywords: fusion, plasma")
	assert.Contains(t, out, "  - Sources consulted: 2.")

	out, err = runCLI(t, srv.URL, "result", "--json", "job-1")
	require.NoError(t, err)
	assert.Contains(t, out, `"topic": "fusion"`)
}
