package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"research-task-scheduler/internal/models"
	"research-task-scheduler/internal/queue"
	"research-task-scheduler/internal/store"
	"research-task-scheduler/internal/telemetry"
)

// Runner executes one claimed job. A returned error fails the job with its message.
type Runner interface {
	Run(ctx context.Context, job models.Job) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, job models.Job) error

func (f RunnerFunc) Run(ctx context.Context, job models.Job) error { return f(ctx, job) }

// Options tunes the Processor. Concurrency below 1 means 1.
type Options struct {
	Concurrency   int
	GracePeriod   time.Duration
	PurgeInterval time.Duration
	WriteTimeout  time.Duration
}

// Processor drives the worker execution loop.
type Processor struct {
	queue  *queue.MemoryQueue
	runner Runner
	store  store.ResultStore
	logger *zap.Logger
	opts   Options
	now    func() time.Time
}

func NewProcessor(q *queue.MemoryQueue, runner Runner, st store.ResultStore, logger *zap.Logger, opts Options) *Processor {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		queue:  q,
		runner: runner,
		store:  st,
		logger: logger.Named("worker"),
		opts:   opts,
		now:    time.Now,
	}
}

// Run starts the worker slots and the janitor, and blocks until ctx is done
// and every in-flight job has reached a terminal state.
func (p *Processor) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for slot := 0; slot < p.opts.Concurrency; slot++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.loop(ctx, slot)
		}()
	}
	if p.opts.PurgeInterval > 0 && p.opts.GracePeriod > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.janitor(ctx)
		}()
	}
	p.logger.Info("processor started", zap.Int("concurrency", p.opts.Concurrency))
	wg.Wait()
	p.logger.Info("processor stopped")
	return ctx.Err()
}

// loop claims jobs until the queue is empty, then parks on the ready signal.
func (p *Processor) loop(ctx context.Context, slot int) {
	log := p.logger.With(zap.Int("slot", slot))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if job, ok := p.queue.Claim(); ok {
			p.execute(ctx, log, job)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-p.queue.Ready():
		}
	}
}

// execute runs a claimed job to a terminal state. Shutdown does not interrupt
// a running job; there is no mid-execution cancellation.
func (p *Processor) execute(ctx context.Context, log *zap.Logger, job models.Job) {
	ctx = context.WithoutCancel(ctx)
	log = log.With(zap.String("job_id", job.ID), zap.String("priority", string(job.Priority)))
	start := p.now()
	p.observe()
	log.Info("job started", zap.String("topic", job.Topic))

	p.write(ctx, log, "save active job", func(wctx context.Context) error {
		return p.store.SaveJob(wctx, job)
	})

	err := p.runSafely(ctx, job)
	telemetry.JobDuration.Observe(p.now().Sub(start).Seconds())

	if err == nil {
		if qerr := p.queue.MarkCompleted(job.ID); qerr != nil {
			log.Warn("mark completed in queue", zap.Error(qerr))
		}
		telemetry.JobsCompleted.Inc()
		p.observe()
		log.Info("job completed", zap.Duration("elapsed", p.now().Sub(start)))
		return
	}

	reason := err.Error()
	if qerr := p.queue.MarkFailed(job.ID, reason); qerr != nil {
		log.Warn("mark failed in queue", zap.Error(qerr))
	}
	p.write(ctx, log, "mark failed in store", func(wctx context.Context) error {
		return p.store.MarkFailed(wctx, job.ID, reason)
	})
	telemetry.JobsFailed.Inc()
	p.observe()
	log.Error("job failed", zap.Error(err))
}

func (p *Processor) runSafely(ctx context.Context, job models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return p.runner.Run(ctx, job)
}

// write performs a bounded store write whose failure must not affect the job.
func (p *Processor) write(ctx context.Context, log *zap.Logger, what string, fn func(context.Context) error) {
	wctx, cancel := context.WithTimeout(ctx, p.opts.WriteTimeout)
	defer cancel()
	if err := fn(wctx); err != nil {
		log.Warn(what, zap.Error(err))
	}
}

// janitor drops terminal jobs from the in-memory table after the grace period.
func (p *Processor) janitor(ctx context.Context) {
	ticker := time.NewTicker(p.opts.PurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := p.queue.PurgeTerminal(p.now().Add(-p.opts.GracePeriod)); n > 0 {
				p.logger.Debug("purged terminal jobs", zap.Int("count", n))
			}
			p.observe()
		}
	}
}

func (p *Processor) observe() {
	stats := p.queue.Stats()
	telemetry.WaitingGauge.Set(float64(stats.Waiting))
	telemetry.ActiveGauge.Set(float64(stats.Active))
}
