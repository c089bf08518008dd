package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"research-task-scheduler/internal/models"
)

// Postgres wraps pgxpool for durable result storage.
type Postgres struct {
	pool    *pgxpool.Pool
	dialect sqlDialect
}

var _ ResultStore = (*Postgres)(nil)

// NewPostgres creates a pooled connection to Postgres.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Postgres{pool: pool, dialect: postgresDialect()}, nil
}

func postgresDialect() sqlDialect {
	return sqlDialect{
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		encode:  func(t time.Time) any { return t.UTC() },
	}
}

func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

type sqlizer interface {
	ToSql() (string, []any, error)
}

func (s *Postgres) exec(ctx context.Context, q sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = s.pool.Exec(ctx, query, args...)
	return err
}

// SaveJob upserts the job row.
func (s *Postgres) SaveJob(ctx context.Context, job models.Job) error {
	if err := s.exec(ctx, s.dialect.jobUpsert(job)); err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

// UpdateProgress updates the job's progress and appends a log row in one transaction.
func (s *Postgres) UpdateProgress(ctx context.Context, u models.ProgressUpdate) error {
	now := time.Now().UTC()
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := txExec(ctx, tx, s.dialect.progressUpdate(u, now)); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		entry := models.LogEntry{JobID: u.JobID, Level: "info", Step: u.Step, Message: u.Message, Progress: u.Progress, Recorded: now}
		if err := txExec(ctx, tx, s.dialect.logInsert(entry)); err != nil {
			return fmt.Errorf("insert progress log: %w", err)
		}
		return nil
	})
}

// AppendLog adds a log row.
func (s *Postgres) AppendLog(ctx context.Context, entry models.LogEntry) error {
	if err := s.exec(ctx, s.dialect.logInsert(entry)); err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

// SaveResult replaces the job's result and articles atomically.
func (s *Postgres) SaveResult(ctx context.Context, jobID string, result models.ResearchResult) error {
	upsert, err := s.dialect.resultUpsert(jobID, result, time.Now().UTC())
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if err := txExec(ctx, tx, upsert); err != nil {
			return fmt.Errorf("upsert result: %w", err)
		}
		if err := txExec(ctx, tx, s.dialect.articleDelete(jobID)); err != nil {
			return fmt.Errorf("clear articles: %w", err)
		}
		for _, batch := range s.dialect.articleInserts(jobID, result.Articles) {
			if err := txExec(ctx, tx, batch); err != nil {
				return fmt.Errorf("insert articles: %w", err)
			}
		}
		return nil
	})
}

// MarkCompleted transitions a job to completed with full progress.
func (s *Postgres) MarkCompleted(ctx context.Context, jobID string) error {
	return s.exec(ctx, s.dialect.statusUpdate(jobID, models.StatusCompleted, nil, time.Now().UTC()))
}

// MarkFailed records the failure reason.
func (s *Postgres) MarkFailed(ctx context.Context, jobID, reason string) error {
	return s.exec(ctx, s.dialect.statusUpdate(jobID, models.StatusFailed, &reason, time.Now().UTC()))
}

// GetJob reads back a job row.
func (s *Postgres) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	query, args, err := s.dialect.jobSelect(jobID).ToSql()
	if err != nil {
		return models.Job{}, fmt.Errorf("build query: %w", err)
	}
	var job models.Job
	err = s.pool.QueryRow(ctx, query, args...).Scan(&job.ID, &job.Topic, &job.Priority, &job.Status,
		&job.Progress, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}
	return job, nil
}

// GetResult loads a result with its articles in rank order.
func (s *Postgres) GetResult(ctx context.Context, jobID string) (models.ResearchResult, error) {
	query, args, err := s.dialect.resultSelect(jobID).ToSql()
	if err != nil {
		return models.ResearchResult{}, fmt.Errorf("build query: %w", err)
	}
	var (
		res                models.ResearchResult
		insights, keywords []byte
	)
	err = s.pool.QueryRow(ctx, query, args...).Scan(&res.Topic, &res.Summary, &insights, &keywords,
		&res.TotalArticles, &res.ProcessingTime, &res.Confidence)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.ResearchResult{}, fmt.Errorf("result for job %s: %w", jobID, models.ErrNotFound)
	}
	if err != nil {
		return models.ResearchResult{}, fmt.Errorf("scan result: %w", err)
	}
	if res.KeyInsights, err = decodeStringList(insights, "insights"); err != nil {
		return models.ResearchResult{}, err
	}
	if res.Keywords, err = decodeStringList(keywords, "keywords"); err != nil {
		return models.ResearchResult{}, err
	}

	query, args, err = s.dialect.articleSelect(jobID).ToSql()
	if err != nil {
		return models.ResearchResult{}, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return models.ResearchResult{}, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	res.Articles = []models.RankedArticle{}
	for rows.Next() {
		var a models.RankedArticle
		if err := rows.Scan(&a.Title, &a.URL, &a.Summary, &a.Content, &a.Source,
			&a.PublishedAt, &a.Sentiment, &a.WordCount, &a.RelevanceScore); err != nil {
			return models.ResearchResult{}, fmt.Errorf("scan article: %w", err)
		}
		res.Articles = append(res.Articles, a)
	}
	if err := rows.Err(); err != nil {
		return models.ResearchResult{}, fmt.Errorf("rows iteration: %w", err)
	}
	return res, nil
}

// GetLogs returns up to limit of the newest log rows, oldest first.
func (s *Postgres) GetLogs(ctx context.Context, jobID string, limit int) ([]models.LogEntry, error) {
	query, args, err := s.dialect.logSelect(jobID, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var logs []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		if err := rows.Scan(&e.JobID, &e.Level, &e.Step, &e.Message, &e.Progress, &e.Recorded); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		logs = append(logs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	reverseLogs(logs)
	return logs, nil
}

func (s *Postgres) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func txExec(ctx context.Context, tx pgx.Tx, q sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = tx.Exec(ctx, query, args...)
	return err
}
