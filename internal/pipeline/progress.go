package pipeline

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"research-task-scheduler/internal/models"
	"research-task-scheduler/internal/telemetry"
)

// reporter forwards checkpoints for one job. Store failures here are logged
// and never abort the job.
type reporter struct {
	p     *Pipeline
	jobID string
	log   *zap.Logger
	last  int
}

func (r *reporter) report(ctx context.Context, progress int, step, message string) {
	if progress < r.last {
		return
	}
	r.last = progress
	if r.p.onProgress != nil {
		r.p.onProgress(r.jobID, progress)
	}

	wctx, cancel := context.WithTimeout(ctx, r.p.cfg.ProgressWriteTimeout)
	defer cancel()
	update := models.ProgressUpdate{JobID: r.jobID, Progress: progress, Message: message, Step: step}
	if err := r.p.store.UpdateProgress(wctx, update); err != nil {
		r.log.Warn("progress write failed", zap.Int("progress", progress), zap.String("stage", step), zap.Error(err))
	}
}

// fallback records that a stage degraded to its deterministic fallback.
func (r *reporter) fallback(ctx context.Context, stage string, cause error) {
	if cause == nil {
		cause = errors.New("empty output")
	}
	telemetry.StageFallbacks.WithLabelValues(stage).Inc()
	r.log.Warn("stage fell back", zap.String("stage", stage), zap.Error(cause))

	wctx, cancel := context.WithTimeout(ctx, r.p.cfg.ProgressWriteTimeout)
	defer cancel()
	entry := models.LogEntry{
		JobID:    r.jobID,
		Level:    "warn",
		Step:     stage,
		Message:  "fallback used: " + cause.Error(),
		Progress: r.last,
	}
	if err := r.p.store.AppendLog(wctx, entry); err != nil {
		r.log.Warn("fallback log write failed", zap.String("stage", stage), zap.Error(err))
	}
}
