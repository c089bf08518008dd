// Package pipeline turns a research topic into a persisted ResearchResult:
// fetch from every provider, dedupe, rank, extract keywords, summarize, save.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"research-task-scheduler/internal/keywords"
	"research-task-scheduler/internal/models"
	"research-task-scheduler/internal/provider"
	"research-task-scheduler/internal/ranking"
	"research-task-scheduler/internal/store"
	"research-task-scheduler/internal/summarize"
	"research-task-scheduler/internal/telemetry"
)

// Progress checkpoints reported, in order, for every job.
const (
	ProgressStart    = 0
	ProgressFetch    = 10
	ProgressProcess  = 40
	ProgressKeywords = 70
	ProgressSummary  = 85
	ProgressSave     = 95
	ProgressDone     = 100
)

// KeywordExtractor is the primary keyword stage.
type KeywordExtractor interface {
	Extract(text string) ([]string, error)
}

// Summarizer is the primary summary stage.
type Summarizer interface {
	Summarize(articles []models.RankedArticle) (string, error)
	Insights(articles []models.RankedArticle) ([]string, error)
}

// Archiver receives a copy of each completed result.
type Archiver interface {
	Archive(ctx context.Context, jobID string, result models.ResearchResult) error
}

// Config bounds the pipeline's external calls and output size.
type Config struct {
	ProviderTimeout      time.Duration
	ProgressWriteTimeout time.Duration
	PersistTimeout       time.Duration
	MaxArticles          int
	KeywordLimit         int
}

func (c Config) withDefaults() Config {
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 30 * time.Second
	}
	if c.ProgressWriteTimeout <= 0 {
		c.ProgressWriteTimeout = 5 * time.Second
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = 30 * time.Second
	}
	if c.MaxArticles <= 0 {
		c.MaxArticles = ranking.DefaultLimit
	}
	if c.KeywordLimit <= 0 {
		c.KeywordLimit = keywords.DefaultLimit
	}
	return c
}

// Pipeline is safe for concurrent use by several workers.
type Pipeline struct {
	providers  []provider.Entry
	store      store.ResultStore
	keywords   KeywordExtractor
	summarizer Summarizer
	archive    Archiver
	onProgress func(jobID string, progress int)
	logger     *zap.Logger
	cfg        Config
	now        func() time.Time
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

func WithKeywordExtractor(k KeywordExtractor) Option {
	return func(p *Pipeline) { p.keywords = k }
}

func WithSummarizer(s Summarizer) Option {
	return func(p *Pipeline) { p.summarizer = s }
}

// WithArchive uploads each completed result. Upload failures are only logged.
func WithArchive(a Archiver) Option {
	return func(p *Pipeline) { p.archive = a }
}

// WithProgressHook is called synchronously at every checkpoint, before the
// store write. The scheduler uses it to keep the in-memory job current.
func WithProgressHook(fn func(jobID string, progress int)) Option {
	return func(p *Pipeline) { p.onProgress = fn }
}

func New(providers []provider.Entry, st store.ResultStore, logger *zap.Logger, cfg Config, opts ...Option) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	p := &Pipeline{
		providers:  providers,
		store:      st,
		keywords:   keywords.Extractor{Limit: cfg.KeywordLimit},
		summarizer: summarize.Generator{},
		logger:     logger.Named("pipeline"),
		cfg:        cfg,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run satisfies the scheduler's runner contract.
func (p *Pipeline) Run(ctx context.Context, job models.Job) error {
	_, err := p.Research(ctx, job)
	return err
}

// Research executes every stage for job. Only a failure to persist the result
// is returned; provider and stage failures degrade the result instead.
func (p *Pipeline) Research(ctx context.Context, job models.Job) (models.ResearchResult, error) {
	start := p.now()
	log := p.logger.With(zap.String("job_id", job.ID), zap.String("topic", job.Topic))
	rep := &reporter{p: p, jobID: job.ID, log: log, last: -1}

	rep.report(ctx, ProgressStart, "start", "Starting research")
	rep.report(ctx, ProgressFetch, "fetch", fmt.Sprintf("Searching %d providers", len(p.providers)))
	candidates := p.fetch(ctx, log, job.Topic)

	if len(candidates) == 0 {
		log.Info("no articles found")
		result := models.ResearchResult{
			Topic:       job.Topic,
			Summary:     summarize.EmptySummary(job.Topic),
			KeyInsights: summarize.EmptyInsights(),
			Keywords:    []string{},
			Articles:    []models.RankedArticle{},
		}
		return p.finish(ctx, rep, log, job, result, start)
	}

	rep.report(ctx, ProgressProcess, "process", fmt.Sprintf("Ranking %d articles", len(candidates)))
	unique := ranking.Deduplicate(candidates)
	top := ranking.Top(ranking.Rank(job.Topic, unique), p.cfg.MaxArticles)

	rep.report(ctx, ProgressKeywords, "keywords", "Extracting keywords")
	kw := p.extractKeywords(ctx, rep, top)

	rep.report(ctx, ProgressSummary, "summary", "Generating summary")
	summary, insights := p.summarize(ctx, rep, top)

	result := models.ResearchResult{
		Topic:         job.Topic,
		Summary:       summary,
		KeyInsights:   insights,
		Keywords:      kw,
		Articles:      top,
		TotalArticles: len(unique),
		Confidence:    ranking.Confidence(top),
	}
	return p.finish(ctx, rep, log, job, result, start)
}

func (p *Pipeline) finish(ctx context.Context, rep *reporter, log *zap.Logger, job models.Job, result models.ResearchResult, start time.Time) (models.ResearchResult, error) {
	result.ProcessingTime = p.now().Sub(start).Milliseconds()

	rep.report(ctx, ProgressSave, "save", "Saving results")
	saveCtx, cancel := context.WithTimeout(ctx, p.cfg.PersistTimeout)
	err := p.store.SaveResult(saveCtx, job.ID, result)
	cancel()
	if err != nil {
		log.Error("persist result", zap.Error(err))
		return models.ResearchResult{}, fmt.Errorf("persist result: %w", err)
	}

	doneCtx, cancel := context.WithTimeout(ctx, p.cfg.PersistTimeout)
	if err := p.store.MarkCompleted(doneCtx, job.ID); err != nil {
		log.Warn("mark completed in store", zap.Error(err))
	}
	cancel()

	if p.archive != nil {
		archCtx, cancel := context.WithTimeout(ctx, p.cfg.PersistTimeout)
		if err := p.archive.Archive(archCtx, job.ID, result); err != nil {
			log.Warn("archive result", zap.Error(err))
		}
		cancel()
	}

	rep.report(ctx, ProgressDone, "done", "Research complete")
	log.Info("research complete",
		zap.Int("articles", len(result.Articles)),
		zap.Int("total_articles", result.TotalArticles),
		zap.Float64("confidence", result.Confidence),
		zap.Int64("processing_ms", result.ProcessingTime))
	return result, nil
}

// fetch queries all providers concurrently. A provider that fails, panics or
// times out contributes nothing; the others are unaffected.
func (p *Pipeline) fetch(ctx context.Context, log *zap.Logger, topic string) []models.CandidateArticle {
	found := make([][]models.CandidateArticle, len(p.providers))
	var g errgroup.Group
	for i, entry := range p.providers {
		g.Go(func() error {
			articles, err := p.search(ctx, entry, topic)
			if err != nil {
				telemetry.ProviderFailures.WithLabelValues(entry.Name).Inc()
				log.Warn("provider search failed", zap.String("provider", entry.Name), zap.Error(err))
				return nil
			}
			for j := range articles {
				if articles[j].Source == "" {
					articles[j].Source = entry.Name
				}
			}
			log.Debug("provider search done", zap.String("provider", entry.Name), zap.Int("articles", len(articles)))
			found[i] = articles
			return nil
		})
	}
	_ = g.Wait()

	var out []models.CandidateArticle
	for _, articles := range found {
		out = append(out, articles...)
	}
	return out
}

type searchOutcome struct {
	articles []models.CandidateArticle
	err      error
}

// search bounds one provider call. The call runs on its own goroutine so a
// provider that ignores ctx cannot hold up the pipeline past the timeout.
func (p *Pipeline) search(ctx context.Context, entry provider.Entry, topic string) ([]models.CandidateArticle, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ProviderTimeout)
	defer cancel()

	done := make(chan searchOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- searchOutcome{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		articles, err := entry.Provider.Search(ctx, topic)
		done <- searchOutcome{articles: articles, err: err}
	}()

	select {
	case out := <-done:
		return out.articles, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("search %s: %w", entry.Name, ctx.Err())
	}
}

func (p *Pipeline) extractKeywords(ctx context.Context, rep *reporter, articles []models.RankedArticle) []string {
	var b strings.Builder
	for _, a := range articles {
		b.WriteString(a.Title)
		b.WriteByte(' ')
		b.WriteString(a.Summary)
		b.WriteByte(' ')
	}
	text := b.String()

	var kw []string
	err := guard("keywords", func() (err error) {
		kw, err = p.keywords.Extract(text)
		return err
	})
	if err != nil {
		rep.fallback(ctx, "keywords", err)
		return keywords.Frequency(text, keywords.FallbackLimit)
	}
	if kw == nil {
		kw = []string{}
	}
	return kw
}

func (p *Pipeline) summarize(ctx context.Context, rep *reporter, articles []models.RankedArticle) (string, []string) {
	var summary string
	err := guard("summary", func() (err error) {
		summary, err = p.summarizer.Summarize(articles)
		return err
	})
	if err != nil || summary == "" {
		rep.fallback(ctx, "summary", err)
		summary = summarize.FallbackSummary(articles)
	}

	var insights []string
	err = guard("insights", func() (err error) {
		insights, err = p.summarizer.Insights(articles)
		return err
	})
	if err != nil || len(insights) == 0 {
		rep.fallback(ctx, "insights", err)
		insights = summarize.FallbackInsights(articles)
	}
	return summary, insights
}

// guard turns a panic in fn into an error.
func guard(stage string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s stage panic: %v", stage, r)
		}
	}()
	return fn()
}
