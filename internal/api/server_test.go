package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-task-scheduler/internal/models"
	"research-task-scheduler/internal/provider"
	"research-task-scheduler/internal/queue"
	"research-task-scheduler/internal/ratelimit"
	"research-task-scheduler/internal/service"
	"research-task-scheduler/internal/store"
)

type upProvider struct{}

func (upProvider) Search(context.Context, string) ([]models.CandidateArticle, error) { return nil, nil }
func (upProvider) IsHealthy(context.Context) bool                                    { return true }

type fixture struct {
	srv   *httptest.Server
	queue *queue.MemoryQueue
	store *store.Memory
}

func newFixture(t *testing.T, opts queue.Options, limiter *ratelimit.TokenBucket) fixture {
	t.Helper()
	q := queue.NewMemoryQueue(opts)
	st := store.NewMemory()
	svc := service.New(q, st, []provider.Entry{{Name: "wikipedia", Provider: upProvider{}}}, nil, 0)
	srv := httptest.NewServer(New(svc, limiter, nil).Router())
	t.Cleanup(srv.Close)
	return fixture{srv: srv, queue: q, store: st}
}

func (f fixture) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(ratelimit.ClientHeader, "tester")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestSubmitAndStatus(t *testing.T) {
	f := newFixture(t, queue.Options{}, nil)

	resp, body := f.do(t, http.MethodPost, "/research", `{"topic":"quantum computing","priority":"high"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	job := body["job"].(map[string]any)
	id := job["id"].(string)
	assert.Equal(t, "high", job["priority"])
	assert.Equal(t, "waiting", job["status"])

	resp, body = f.do(t, http.MethodGet, "/research/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "waiting", body["status"])
	assert.EqualValues(t, 0, body["progress"])

	resp, body = f.do(t, http.MethodGet, "/queue/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1, body["waiting"])
	assert.EqualValues(t, 1, body["total"])
}

func TestSubmitRejectsBadInput(t *testing.T) {
	f := newFixture(t, queue.Options{MaxTopicLength: 5}, nil)

	resp, _ := f.do(t, http.MethodPost, "/research", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := f.do(t, http.MethodPost, "/research", `{"topic":""}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "topic")

	resp, _ = f.do(t, http.MethodPost, "/research", `{"topic":"far too long"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPost, "/research", `{"topic":"ok","priority":"asap"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSubmitQueueFull(t *testing.T) {
	f := newFixture(t, queue.Options{Capacity: 1}, nil)
	resp, _ := f.do(t, http.MethodPost, "/research", `{"topic":"one"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/research", `{"topic":"two"}`)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestCancelAndNotFound(t *testing.T) {
	f := newFixture(t, queue.Options{}, nil)
	job, err := f.queue.Submit("solar", models.PriorityLow)
	require.NoError(t, err)

	resp, body := f.do(t, http.MethodPost, "/research/"+job.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["cancelled"])

	resp, _ = f.do(t, http.MethodGet, "/research/"+job.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/research/"+job.ID+"/cancel", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["cancelled"])

	resp, _ = f.do(t, http.MethodGet, "/research/"+job.ID+"/result", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResultAndLogs(t *testing.T) {
	f := newFixture(t, queue.Options{}, nil)
	ctx := context.Background()
	require.NoError(t, f.store.SaveResult(ctx, "job-9", models.ResearchResult{
		Topic: "fusion", Summary: "Fusion summary.", KeyInsights: []string{"one"}, Keywords: []string{"fusion"},
		Articles: []models.RankedArticle{}, Confidence: 0.4,
	}))
	require.NoError(t, f.store.UpdateProgress(ctx, models.ProgressUpdate{JobID: "job-9", Progress: 10, Step: "fetch"}))
	require.NoError(t, f.store.UpdateProgress(ctx, models.ProgressUpdate{JobID: "job-9", Progress: 40, Step: "process"}))

	resp, body := f.do(t, http.MethodGet, "/research/job-9/result", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Fusion summary.", body["summary"])
	assert.InDelta(t, 0.4, body["confidence"], 1e-9)

	resp, body = f.do(t, http.MethodGet, "/research/job-9/logs?limit=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	logs := body["logs"].([]any)
	require.Len(t, logs, 1)
	assert.Equal(t, "process", logs[0].(map[string]any)["step"])

	resp, _ = f.do(t, http.MethodGet, "/research/job-9/logs?limit=-2", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProvidersAndHealth(t *testing.T) {
	f := newFixture(t, queue.Options{}, nil)
	resp, body := f.do(t, http.MethodGet, "/providers", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"wikipedia": true}, body["providers"])

	resp, body = f.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, _ = f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSubmitIsRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := ratelimit.NewTokenBucket(client, "ratelimit:submit:", 1, 0.001, time.Minute)
	f := newFixture(t, queue.Options{}, limiter)

	resp, _ := f.do(t, http.MethodPost, "/research", `{"topic":"first"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/research", `{"topic":"second"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	// Reads are not limited.
	resp, _ = f.do(t, http.MethodGet, "/queue/stats", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
