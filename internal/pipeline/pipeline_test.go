package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-task-scheduler/internal/models"
	"research-task-scheduler/internal/provider"
	"research-task-scheduler/internal/store"
)

type stubProvider struct {
	articles []models.CandidateArticle
	err      error
	panicMsg string
	block    chan struct{}
}

func (s stubProvider) Search(ctx context.Context, topic string) ([]models.CandidateArticle, error) {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	if s.block != nil {
		<-s.block // ignores ctx on purpose
	}
	return append([]models.CandidateArticle(nil), s.articles...), s.err
}

func (s stubProvider) IsHealthy(context.Context) bool { return s.err == nil }

type failingStore struct {
	store.ResultStore
	saveErr     error
	progressErr error
}

func (f failingStore) SaveResult(ctx context.Context, jobID string, r models.ResearchResult) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.ResultStore.SaveResult(ctx, jobID, r)
}

func (f failingStore) UpdateProgress(ctx context.Context, u models.ProgressUpdate) error {
	if f.progressErr != nil {
		return f.progressErr
	}
	return f.ResultStore.UpdateProgress(ctx, u)
}

type brokenKeywords struct{}

func (brokenKeywords) Extract(string) ([]string, error) { return nil, errors.New("tokenizer exploded") }

type brokenSummarizer struct{}

func (brokenSummarizer) Summarize([]models.RankedArticle) (string, error) { panic("model unavailable") }

func (brokenSummarizer) Insights([]models.RankedArticle) ([]string, error) {
	return nil, errors.New("insights unavailable")
}

type recordingArchive struct {
	mu   sync.Mutex
	jobs []string
}

func (r *recordingArchive) Archive(_ context.Context, jobID string, _ models.ResearchResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, jobID)
	return nil
}

func climateArticles() []models.CandidateArticle {
	return []models.CandidateArticle{
		{Title: "Unrelated gardening tips", URL: "https://a.example/garden", Summary: "Tomatoes need consistent watering throughout the summer months."},
		{Title: "Climate change and climate policy", URL: "https://a.example/policy", Summary: "Governments debate how climate targets should shape national energy budgets."},
		{Title: "Ocean warming", URL: "https://a.example/ocean", Summary: "Researchers report that climate models underestimate ocean heat uptake significantly."},
	}
}

func newJob(t *testing.T, st store.ResultStore, topic string) models.Job {
	t.Helper()
	now := time.Now().UTC()
	job := models.Job{ID: "job-" + strings.ReplaceAll(topic, " ", "-"), Topic: topic, Priority: models.PriorityNormal,
		Status: models.StatusActive, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, st.SaveJob(context.Background(), job))
	return job
}

func testConfig() Config {
	return Config{ProviderTimeout: time.Second, ProgressWriteTimeout: time.Second, PersistTimeout: time.Second}
}

func TestResearchRanksAndPersists(t *testing.T) {
	st := store.NewMemory()
	archive := &recordingArchive{}
	var progress []int
	p := New([]provider.Entry{{Name: "wiki", Provider: stubProvider{articles: climateArticles()}}}, st, nil, testConfig(),
		WithArchive(archive),
		WithProgressHook(func(_ string, pct int) { progress = append(progress, pct) }))
	job := newJob(t, st, "climate change")

	res, err := p.Research(context.Background(), job)
	require.NoError(t, err)

	require.Len(t, res.Articles, 3)
	assert.Equal(t, "Climate change and climate policy", res.Articles[0].Title)
	assert.Equal(t, "Ocean warming", res.Articles[1].Title)
	assert.Equal(t, "Unrelated gardening tips", res.Articles[2].Title)
	assert.Equal(t, "wiki", res.Articles[0].Source)
	assert.Equal(t, 3, res.TotalArticles)
	assert.NotEmpty(t, res.Keywords)
	assert.NotEmpty(t, res.Summary)
	assert.NotEmpty(t, res.KeyInsights)
	assert.Greater(t, res.Confidence, 0.0)
	assert.LessOrEqual(t, res.Confidence, 1.0)

	assert.Equal(t, []int{0, 10, 40, 70, 85, 95, 100}, progress)
	assert.Equal(t, []string{job.ID}, archive.jobs)

	saved, err := st.GetResult(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Len(t, saved.Articles, 3)

	stored, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.Equal(t, 100, stored.Progress)

	logs, err := st.GetLogs(context.Background(), job.ID, 0)
	require.NoError(t, err)
	var steps []string
	for _, l := range logs {
		steps = append(steps, l.Step)
	}
	assert.Equal(t, []string{"start", "fetch", "process", "keywords", "summary", "save", "done"}, steps)
}

func TestResearchEmptyProvidersCompletes(t *testing.T) {
	st := store.NewMemory()
	var progress []int
	p := New([]provider.Entry{
		{Name: "empty", Provider: stubProvider{}},
		{Name: "down", Provider: stubProvider{err: errors.New("503")}},
	}, st, nil, testConfig(), WithProgressHook(func(_ string, pct int) { progress = append(progress, pct) }))
	job := newJob(t, st, "obscure topic")

	res, err := p.Research(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 0, res.TotalArticles)
	assert.Equal(t, 0.0, res.Confidence)
	assert.NotEmpty(t, res.Summary)
	assert.GreaterOrEqual(t, len(res.KeyInsights), 1)
	assert.NotNil(t, res.Articles)
	assert.NotNil(t, res.Keywords)
	assert.Equal(t, []int{0, 10, 95, 100}, progress)

	stored, err := st.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}

func TestResearchIsolatesProviderFailures(t *testing.T) {
	st := store.NewMemory()
	p := New([]provider.Entry{
		{Name: "panicky", Provider: stubProvider{panicMsg: "nil map"}},
		{Name: "erroring", Provider: stubProvider{err: errors.New("boom")}},
		{Name: "news", Provider: stubProvider{articles: []models.CandidateArticle{
			{Title: "Climate summit", URL: "https://n.example/1", Summary: "Leaders met to discuss climate change mitigation plans today.", Source: "Reuters"},
		}}},
	}, st, nil, testConfig())
	job := newJob(t, st, "climate")

	res, err := p.Research(context.Background(), job)
	require.NoError(t, err)
	require.Len(t, res.Articles, 1)
	assert.Equal(t, "Reuters", res.Articles[0].Source)
}

func TestResearchTimesOutUnresponsiveProvider(t *testing.T) {
	st := store.NewMemory()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	cfg := testConfig()
	cfg.ProviderTimeout = 50 * time.Millisecond
	p := New([]provider.Entry{
		{Name: "stuck", Provider: stubProvider{block: release}},
		{Name: "fast", Provider: stubProvider{articles: climateArticles()[:1]}},
	}, st, nil, cfg)
	job := newJob(t, st, "gardening")

	start := time.Now()
	res, err := p.Research(context.Background(), job)
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.Len(t, res.Articles, 1)
	assert.Equal(t, "fast", res.Articles[0].Source)
}

func TestResearchFallsBackWhenStagesFail(t *testing.T) {
	st := store.NewMemory()
	p := New([]provider.Entry{{Name: "wiki", Provider: stubProvider{articles: climateArticles()}}}, st, nil, testConfig(),
		WithKeywordExtractor(brokenKeywords{}),
		WithSummarizer(brokenSummarizer{}))
	job := newJob(t, st, "climate change")

	res, err := p.Research(context.Background(), job)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Keywords)
	assert.LessOrEqual(t, len(res.Keywords), 10)
	assert.True(t, strings.HasPrefix(res.Summary, "Research summary based on 3 articles. Key topics include: "), res.Summary)
	assert.Len(t, res.KeyInsights, 3)

	logs, err := st.GetLogs(context.Background(), job.ID, 0)
	require.NoError(t, err)
	warned := map[string]bool{}
	for _, l := range logs {
		if l.Level == "warn" {
			warned[l.Step] = true
		}
	}
	assert.Equal(t, map[string]bool{"keywords": true, "summary": true, "insights": true}, warned)
}

func TestResearchTruncatesAndDeduplicates(t *testing.T) {
	var articles []models.CandidateArticle
	for i := 0; i < 25; i++ {
		articles = append(articles, models.CandidateArticle{
			Title:   fmt.Sprintf("Solar report %d", i),
			URL:     fmt.Sprintf("https://s.example/%d", i),
			Summary: "Solar capacity additions keep accelerating across many regions.",
		})
	}
	// Same title (different case) and URL as the first article.
	articles = append(articles, models.CandidateArticle{Title: "SOLAR REPORT 0", URL: "https://s.example/0"})

	st := store.NewMemory()
	cfg := testConfig()
	cfg.MaxArticles = 20
	p := New([]provider.Entry{{Name: "wiki", Provider: stubProvider{articles: articles}}}, st, nil, cfg)

	res, err := p.Research(context.Background(), newJob(t, st, "solar"))
	require.NoError(t, err)
	assert.Len(t, res.Articles, 20)
	assert.Equal(t, 25, res.TotalArticles)
}

func TestResearchPersistFailureIsFatal(t *testing.T) {
	mem := store.NewMemory()
	st := failingStore{ResultStore: mem, saveErr: errors.New("connection reset")}
	archive := &recordingArchive{}
	p := New([]provider.Entry{{Name: "wiki", Provider: stubProvider{articles: climateArticles()}}}, st, nil, testConfig(),
		WithArchive(archive))
	job := newJob(t, mem, "climate change")

	_, err := p.Research(context.Background(), job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, archive.jobs)

	stored, err := mem.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, stored.Status)
}

func TestResearchSwallowsProgressWriteFailures(t *testing.T) {
	mem := store.NewMemory()
	st := failingStore{ResultStore: mem, progressErr: errors.New("timeout")}
	p := New([]provider.Entry{{Name: "wiki", Provider: stubProvider{articles: climateArticles()}}}, st, nil, testConfig())
	job := newJob(t, mem, "climate change")

	require.NoError(t, p.Run(context.Background(), job))
	stored, err := mem.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
}
