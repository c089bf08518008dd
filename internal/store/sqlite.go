package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"research-task-scheduler/internal/models"
)

// SQLite stores results in a single database file for one-node deployments.
// Timestamps are kept as unix milliseconds.
type SQLite struct {
	db      *sql.DB
	dialect sqlDialect
}

var _ ResultStore = (*SQLite)(nil)

// NewSQLite opens path (":memory:" for a private in-memory database).
func NewSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		path = "research.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers anyway; one connection also keeps ":memory:" shared.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	return &SQLite{db: db, dialect: sqliteDialect()}, nil
}

func sqliteDialect() sqlDialect {
	return sqlDialect{
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
		encode:  func(t time.Time) any { return t.UnixMilli() },
	}
}

func (s *SQLite) Close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

func (s *SQLite) exec(ctx context.Context, ex interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, q sqlizer) error {
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = ex.ExecContext(ctx, query, args...)
	return err
}

func (s *SQLite) SaveJob(ctx context.Context, job models.Job) error {
	if err := s.exec(ctx, s.db, s.dialect.jobUpsert(job)); err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

func (s *SQLite) UpdateProgress(ctx context.Context, u models.ProgressUpdate) error {
	now := time.Now().UTC()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.exec(ctx, tx, s.dialect.progressUpdate(u, now)); err != nil {
			return fmt.Errorf("update progress: %w", err)
		}
		entry := models.LogEntry{JobID: u.JobID, Level: "info", Step: u.Step, Message: u.Message, Progress: u.Progress, Recorded: now}
		if err := s.exec(ctx, tx, s.dialect.logInsert(entry)); err != nil {
			return fmt.Errorf("insert progress log: %w", err)
		}
		return nil
	})
}

func (s *SQLite) AppendLog(ctx context.Context, entry models.LogEntry) error {
	if err := s.exec(ctx, s.db, s.dialect.logInsert(entry)); err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}

func (s *SQLite) SaveResult(ctx context.Context, jobID string, result models.ResearchResult) error {
	upsert, err := s.dialect.resultUpsert(jobID, result, time.Now().UTC())
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.exec(ctx, tx, upsert); err != nil {
			return fmt.Errorf("upsert result: %w", err)
		}
		if err := s.exec(ctx, tx, s.dialect.articleDelete(jobID)); err != nil {
			return fmt.Errorf("clear articles: %w", err)
		}
		for _, batch := range s.dialect.articleInserts(jobID, result.Articles) {
			if err := s.exec(ctx, tx, batch); err != nil {
				return fmt.Errorf("insert articles: %w", err)
			}
		}
		return nil
	})
}

func (s *SQLite) MarkCompleted(ctx context.Context, jobID string) error {
	return s.exec(ctx, s.db, s.dialect.statusUpdate(jobID, models.StatusCompleted, nil, time.Now().UTC()))
}

func (s *SQLite) MarkFailed(ctx context.Context, jobID, reason string) error {
	return s.exec(ctx, s.db, s.dialect.statusUpdate(jobID, models.StatusFailed, &reason, time.Now().UTC()))
}

func (s *SQLite) GetResult(ctx context.Context, jobID string) (models.ResearchResult, error) {
	query, args, err := s.dialect.resultSelect(jobID).ToSql()
	if err != nil {
		return models.ResearchResult{}, fmt.Errorf("build query: %w", err)
	}
	var (
		res                models.ResearchResult
		insights, keywords []byte
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&res.Topic, &res.Summary, &insights, &keywords,
		&res.TotalArticles, &res.ProcessingTime, &res.Confidence)
	if errors.Is(err, sql.ErrNoRows) {
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
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return models.ResearchResult{}, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	res.Articles = []models.RankedArticle{}
	for rows.Next() {
		var (
			a         models.RankedArticle
			published sql.NullInt64
			sentiment sql.NullFloat64
		)
		if err := rows.Scan(&a.Title, &a.URL, &a.Summary, &a.Content, &a.Source,
			&published, &sentiment, &a.WordCount, &a.RelevanceScore); err != nil {
			return models.ResearchResult{}, fmt.Errorf("scan article: %w", err)
		}
		if published.Valid {
			t := time.UnixMilli(published.Int64).UTC()
			a.PublishedAt = &t
		}
		if sentiment.Valid {
			v := sentiment.Float64
			a.Sentiment = &v
		}
		res.Articles = append(res.Articles, a)
	}
	if err := rows.Err(); err != nil {
		return models.ResearchResult{}, fmt.Errorf("rows iteration: %w", err)
	}
	return res, nil
}

func (s *SQLite) GetLogs(ctx context.Context, jobID string, limit int) ([]models.LogEntry, error) {
	query, args, err := s.dialect.logSelect(jobID, limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	var logs []models.LogEntry
	for rows.Next() {
		var (
			e        models.LogEntry
			recorded int64
		)
		if err := rows.Scan(&e.JobID, &e.Level, &e.Step, &e.Message, &e.Progress, &recorded); err != nil {
			return nil, fmt.Errorf("scan log: %w", err)
		}
		e.Recorded = time.UnixMilli(recorded).UTC()
		logs = append(logs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	reverseLogs(logs)
	return logs, nil
}

// GetJob reads back a job row.
func (s *SQLite) GetJob(ctx context.Context, jobID string) (models.Job, error) {
	query, args, err := s.dialect.jobSelect(jobID).ToSql()
	if err != nil {
		return models.Job{}, fmt.Errorf("build query: %w", err)
	}
	var (
		job              models.Job
		reason           sql.NullString
		created, updated int64
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&job.ID, &job.Topic, &job.Priority, &job.Status,
		&job.Progress, &reason, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Job{}, fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("scan job: %w", err)
	}
	if reason.Valid {
		job.Error = &reason.String
	}
	job.CreatedAt = time.UnixMilli(created).UTC()
	job.UpdatedAt = time.UnixMilli(updated).UTC()
	return job, nil
}

func (s *SQLite) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // safe no-op on commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
