package store

import (
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"research-task-scheduler/internal/models"
)

// articleBatchSize keeps each multi-row INSERT well under driver parameter limits.
const articleBatchSize = 500

var articleColumns = []string{
	"job_id", "position", "title", "url", "summary", "content", "source",
	"published_at", "sentiment", "word_count", "relevance_score",
}

// timeCodec converts timestamps to the column representation of a backend.
type timeCodec func(time.Time) any

// sqlDialect holds what differs between the Postgres and SQLite schemas.
type sqlDialect struct {
	builder sq.StatementBuilderType
	encode  timeCodec
}

func (d sqlDialect) jobUpsert(job models.Job) sq.InsertBuilder {
	return d.builder.Insert("research_jobs").
		Columns("id", "topic", "priority", "status", "progress", "error", "created_at", "updated_at").
		Values(job.ID, job.Topic, string(job.Priority), string(job.Status), job.Progress, job.Error,
			d.encode(job.CreatedAt), d.encode(job.UpdatedAt)).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at`)
}

func (d sqlDialect) jobSelect(jobID string) sq.SelectBuilder {
	return d.builder.Select("id", "topic", "priority", "status", "progress", "error", "created_at", "updated_at").
		From("research_jobs").
		Where(sq.Eq{"id": jobID})
}

func (d sqlDialect) progressUpdate(u models.ProgressUpdate, now time.Time) sq.UpdateBuilder {
	return d.builder.Update("research_jobs").
		Set("progress", u.Progress).
		Set("updated_at", d.encode(now)).
		Where(sq.Eq{"id": u.JobID})
}

func (d sqlDialect) statusUpdate(jobID string, status models.Status, reason *string, now time.Time) sq.UpdateBuilder {
	b := d.builder.Update("research_jobs").
		Set("status", string(status)).
		Set("error", reason).
		Set("updated_at", d.encode(now)).
		Where(sq.Eq{"id": jobID})
	if status == models.StatusCompleted {
		b = b.Set("progress", 100)
	}
	return b
}

func (d sqlDialect) logInsert(e models.LogEntry) sq.InsertBuilder {
	if e.Recorded.IsZero() {
		e.Recorded = time.Now().UTC()
	}
	if e.Level == "" {
		e.Level = "info"
	}
	return d.builder.Insert("job_logs").
		Columns("job_id", "level", "step", "message", "progress", "recorded_at").
		Values(e.JobID, e.Level, e.Step, e.Message, e.Progress, d.encode(e.Recorded))
}

func (d sqlDialect) resultUpsert(jobID string, r models.ResearchResult, now time.Time) (sq.InsertBuilder, error) {
	insights, err := json.Marshal(nonNil(r.KeyInsights))
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("marshal insights: %w", err)
	}
	keywords, err := json.Marshal(nonNil(r.Keywords))
	if err != nil {
		return sq.InsertBuilder{}, fmt.Errorf("marshal keywords: %w", err)
	}
	return d.builder.Insert("research_results").
		Columns("job_id", "topic", "summary", "key_insights", "keywords", "total_articles",
			"processing_time_ms", "confidence", "created_at").
		Values(jobID, r.Topic, r.Summary, insights, keywords, r.TotalArticles,
			r.ProcessingTime, r.Confidence, d.encode(now)).
		Suffix(`ON CONFLICT (job_id) DO UPDATE SET
			summary = EXCLUDED.summary,
			key_insights = EXCLUDED.key_insights,
			keywords = EXCLUDED.keywords,
			total_articles = EXCLUDED.total_articles,
			processing_time_ms = EXCLUDED.processing_time_ms,
			confidence = EXCLUDED.confidence`), nil
}

func (d sqlDialect) articleDelete(jobID string) sq.DeleteBuilder {
	return d.builder.Delete("research_articles").Where(sq.Eq{"job_id": jobID})
}

// articleInserts groups the articles into as few multi-row statements as possible.
func (d sqlDialect) articleInserts(jobID string, articles []models.RankedArticle) []sq.InsertBuilder {
	var out []sq.InsertBuilder
	for start := 0; start < len(articles); start += articleBatchSize {
		end := start + articleBatchSize
		if end > len(articles) {
			end = len(articles)
		}
		b := d.builder.Insert("research_articles").Columns(articleColumns...)
		for i := start; i < end; i++ {
			a := articles[i]
			var published any
			if a.PublishedAt != nil {
				published = d.encode(*a.PublishedAt)
			}
			b = b.Values(jobID, i, a.Title, a.URL, a.Summary, a.Content, a.Source,
				published, a.Sentiment, a.WordCount, a.RelevanceScore)
		}
		out = append(out, b)
	}
	return out
}

func (d sqlDialect) resultSelect(jobID string) sq.SelectBuilder {
	return d.builder.Select("topic", "summary", "key_insights", "keywords", "total_articles",
		"processing_time_ms", "confidence").
		From("research_results").
		Where(sq.Eq{"job_id": jobID})
}

func (d sqlDialect) articleSelect(jobID string) sq.SelectBuilder {
	return d.builder.Select(articleColumns[2:]...).
		From("research_articles").
		Where(sq.Eq{"job_id": jobID}).
		OrderBy("position")
}

func (d sqlDialect) logSelect(jobID string, limit int) sq.SelectBuilder {
	b := d.builder.Select("job_id", "level", "step", "message", "progress", "recorded_at").
		From("job_logs").
		Where(sq.Eq{"job_id": jobID}).
		OrderBy("id DESC")
	if limit > 0 {
		b = b.Limit(uint64(limit))
	}
	return b
}

func decodeStringList(raw []byte, what string) ([]string, error) {
	out := []string{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", what, err)
	}
	return out, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

// reverseLogs turns the newest-first query order back into chronological order.
func reverseLogs(logs []models.LogEntry) {
	for i, j := 0, len(logs)-1; i < j; i, j = i+1, j-1 {
		logs[i], logs[j] = logs[j], logs[i]
	}
}
