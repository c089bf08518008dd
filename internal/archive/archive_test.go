package archive

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-task-scheduler/internal/models"
)

func TestLocalArchiveWritesResult(t *testing.T) {
	dir := t.TempDir()
	a := New(&LocalUploader{BaseDir: dir})

	result := models.ResearchResult{Topic: "tidal power", Summary: "Tides are predictable.", TotalArticles: 2, Confidence: 0.5}
	require.NoError(t, a.Archive(context.Background(), "job-42", result))

	raw, err := os.ReadFile(filepath.Join(dir, "results", "job-42.json"))
	require.NoError(t, err)
	var got struct {
		JobID string `json:"job_id"`
		models.ResearchResult
	}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "job-42", got.JobID)
	assert.Equal(t, "tidal power", got.Topic)
	assert.Equal(t, 2, got.TotalArticles)
}

func TestKeyCannotEscapeResultsDir(t *testing.T) {
	assert.Equal(t, "results/etc_passwd.json", Key("../../etc/passwd"))
	assert.Equal(t, "results/abc.json", Key("abc"))
}

func TestS3UploaderPutsObject(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		reqURL string
		body   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		method = r.Method
		reqURL = r.URL.Path
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(t.TempDir(), "none"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(t.TempDir(), "none"))

	up, err := NewS3(context.Background(), S3Config{Bucket: "research", Region: "us-east-1", Endpoint: srv.URL, PathStyle: true})
	require.NoError(t, err)

	loc, err := New(up).uploader.Upload(context.Background(), Key("job-7"), []byte(`{"ok":true}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, "s3://research/results/job-7.json", loc)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/research/results/job-7.json", reqURL)
	assert.Contains(t, string(body), `{"ok":true}`)
}

func TestNewS3RequiresBucket(t *testing.T) {
	_, err := NewS3(context.Background(), S3Config{Region: "us-east-1"})
	require.Error(t, err)
}
