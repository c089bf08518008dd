package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"research-task-scheduler/internal/models"
)

// Memory keeps everything in process. It is the default backend and the one
// used by tests.
type Memory struct {
	mu      sync.RWMutex
	jobs    map[string]models.Job
	results map[string]models.ResearchResult
	logs    map[string][]models.LogEntry
}

var _ ResultStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		jobs:    make(map[string]models.Job),
		results: make(map[string]models.ResearchResult),
		logs:    make(map[string][]models.LogEntry),
	}
}

func (m *Memory) SaveJob(_ context.Context, job models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *Memory) UpdateProgress(_ context.Context, u models.ProgressUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job, ok := m.jobs[u.JobID]; ok {
		job.Progress = u.Progress
		job.UpdatedAt = time.Now().UTC()
		m.jobs[u.JobID] = job
	}
	m.logs[u.JobID] = append(m.logs[u.JobID], models.LogEntry{
		JobID:    u.JobID,
		Level:    "info",
		Step:     u.Step,
		Message:  u.Message,
		Progress: u.Progress,
		Recorded: time.Now().UTC(),
	})
	return nil
}

func (m *Memory) AppendLog(_ context.Context, entry models.LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.Recorded.IsZero() {
		entry.Recorded = time.Now().UTC()
	}
	m.logs[entry.JobID] = append(m.logs[entry.JobID], entry)
	return nil
}

func (m *Memory) SaveResult(_ context.Context, jobID string, result models.ResearchResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	result.Articles = append([]models.RankedArticle(nil), result.Articles...)
	m.results[jobID] = result
	return nil
}

func (m *Memory) MarkCompleted(_ context.Context, jobID string) error {
	return m.setStatus(jobID, models.StatusCompleted, nil)
}

func (m *Memory) MarkFailed(_ context.Context, jobID, reason string) error {
	return m.setStatus(jobID, models.StatusFailed, &reason)
}

func (m *Memory) setStatus(jobID string, status models.Status, reason *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
	}
	job.Status = status
	job.Error = reason
	if status == models.StatusCompleted {
		job.Progress = 100
	}
	job.UpdatedAt = time.Now().UTC()
	m.jobs[jobID] = job
	return nil
}

func (m *Memory) GetResult(_ context.Context, jobID string) (models.ResearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res, ok := m.results[jobID]
	if !ok {
		return models.ResearchResult{}, fmt.Errorf("result for job %s: %w", jobID, models.ErrNotFound)
	}
	return res, nil
}

func (m *Memory) GetLogs(_ context.Context, jobID string, limit int) ([]models.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	logs := m.logs[jobID]
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return append([]models.LogEntry(nil), logs...), nil
}

func (m *Memory) GetJob(_ context.Context, jobID string) (models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return models.Job{}, fmt.Errorf("job %s: %w", jobID, models.ErrNotFound)
	}
	return job, nil
}

func (m *Memory) Close() {}
