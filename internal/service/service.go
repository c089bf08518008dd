// Package service is the caller-facing contract over the queue, the result
// store and the providers. The HTTP API and tests go through it.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"research-task-scheduler/internal/models"
	"research-task-scheduler/internal/provider"
	"research-task-scheduler/internal/queue"
	"research-task-scheduler/internal/store"
	"research-task-scheduler/internal/telemetry"
)

// DefaultLogLimit caps GetLogs when the caller does not.
const DefaultLogLimit = 100

// Service owns no goroutines; the worker.Processor drains the queue it submits to.
type Service struct {
	queue     *queue.MemoryQueue
	store     store.ResultStore
	providers []provider.Entry
	logger    *zap.Logger
	timeout   time.Duration
}

func New(q *queue.MemoryQueue, st store.ResultStore, providers []provider.Entry, logger *zap.Logger, writeTimeout time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Service{queue: q, store: st, providers: providers, logger: logger.Named("service"), timeout: writeTimeout}
}

// SubmitJob validates and enqueues a topic. priority is low, normal or high;
// empty means normal. The store first sees the job when a worker claims it.
func (s *Service) SubmitJob(_ context.Context, topic, priority string) (models.Job, error) {
	p, err := models.ParsePriority(priority)
	if err != nil {
		return models.Job{}, err
	}
	job, err := s.queue.Submit(topic, p)
	if err != nil {
		if errors.Is(err, models.ErrQueueFull) {
			telemetry.QueueFullRejects.Inc()
		}
		return models.Job{}, err
	}
	telemetry.JobsSubmitted.Inc()
	telemetry.WaitingGauge.Set(float64(s.queue.Stats().Waiting))
	s.logger.Info("job submitted", zap.String("job_id", job.ID), zap.String("topic", job.Topic), zap.String("priority", string(job.Priority)))
	return job, nil
}

// GetJobStatus reads the in-memory job. Purged and cancelled jobs are NotFound.
func (s *Service) GetJobStatus(_ context.Context, id string) (models.JobStatus, error) {
	job, err := s.queue.Get(id)
	if err != nil {
		return models.JobStatus{}, err
	}
	return models.JobStatus{ID: job.ID, Status: job.Status, Progress: job.Progress, Error: job.Error}, nil
}

func (s *Service) GetQueueStats(_ context.Context) models.QueueStats {
	return s.queue.Stats()
}

// CancelJob removes a waiting job. It returns false, not an error, for active
// or unknown jobs. Completed and failed jobs are detached from the queue but
// their stored rows are left as they are.
func (s *Service) CancelJob(ctx context.Context, id string) bool {
	job, ok := s.queue.Remove(id)
	if !ok {
		return false
	}
	if job.Status == models.StatusCancelled {
		telemetry.JobsCancelled.Inc()
		telemetry.WaitingGauge.Set(float64(s.queue.Stats().Waiting))
		s.logger.Info("job cancelled", zap.String("job_id", id))
		s.write(ctx, "save cancelled job", func(wctx context.Context) error { return s.store.SaveJob(wctx, job) })
	}
	return true
}

// GetResult returns the persisted result of a completed job.
func (s *Service) GetResult(ctx context.Context, id string) (models.ResearchResult, error) {
	return s.store.GetResult(ctx, id)
}

// GetLogs returns the newest log rows, oldest first.
func (s *Service) GetLogs(ctx context.Context, id string, limit int) ([]models.LogEntry, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	logs, err := s.store.GetLogs(ctx, id, limit)
	if err != nil {
		return nil, fmt.Errorf("get logs: %w", err)
	}
	if logs == nil {
		logs = []models.LogEntry{}
	}
	return logs, nil
}

// ProviderHealth reports IsHealthy for every configured provider.
func (s *Service) ProviderHealth(ctx context.Context) map[string]bool {
	return provider.Health(ctx, s.providers)
}

func (s *Service) write(ctx context.Context, what string, fn func(context.Context) error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	if err := fn(wctx); err != nil {
		s.logger.Warn(what, zap.Error(err))
	}
}
