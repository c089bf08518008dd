package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsSubmitted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "research_jobs_submitted_total", Help: "Research jobs accepted into the queue"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "research_jobs_completed_total", Help: "Research jobs that completed"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "research_jobs_failed_total", Help: "Research jobs that failed"})
	JobsCancelled    = prometheus.NewCounter(prometheus.CounterOpts{Name: "research_jobs_cancelled_total", Help: "Waiting jobs cancelled by a caller"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "research_rate_limit_rejects_total", Help: "Submissions rejected by the rate limiter"})
	QueueFullRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "research_queue_full_rejects_total", Help: "Submissions rejected at queue capacity"})
	ProviderFailures = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "research_provider_failures_total", Help: "Provider searches that errored, panicked or timed out"}, []string{"provider"})
	StageFallbacks   = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "research_stage_fallbacks_total", Help: "Pipeline stages that fell back to the degraded method"}, []string{"stage"})
	CacheHits        = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "research_search_cache_hits_total", Help: "Provider searches served from the cache"}, []string{"provider"})
	WaitingGauge     = prometheus.NewGauge(prometheus.GaugeOpts{Name: "research_jobs_waiting", Help: "Jobs waiting in the queue"})
	ActiveGauge      = prometheus.NewGauge(prometheus.GaugeOpts{Name: "research_jobs_active", Help: "Jobs currently running"})
	JobDuration      = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "research_job_duration_seconds",
		Help:    "Wall time from claim to terminal state",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsSubmitted,
			JobsCompleted,
			JobsFailed,
			JobsCancelled,
			RateLimitRejects,
			QueueFullRejects,
			ProviderFailures,
			StageFallbacks,
			CacheHits,
			WaitingGauge,
			ActiveGauge,
			JobDuration,
		)
	})
	return promhttp.Handler()
}
