package queue

import (
	"container/heap"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"research-task-scheduler/internal/models"
)

// DefaultMaxTopicLength bounds topic length in runes when no limit is configured.
const DefaultMaxTopicLength = 200

// Options tunes a MemoryQueue. Zero values pick defaults; Capacity 0 is unbounded.
type Options struct {
	Capacity       int
	MaxTopicLength int
}

// MemoryQueue holds the job table and a priority heap over waiting jobs.
// Selection and activation happen under one mutex, so a job is never handed to
// two workers.
type MemoryQueue struct {
	mu       sync.Mutex
	jobs     map[string]*entry
	waiting  waitingHeap
	seq      uint64
	capacity int
	maxTopic int
	ready    chan struct{}

	now   func() time.Time
	newID func() string
}

type entry struct {
	job   models.Job
	seq   uint64
	index int
}

// NewMemoryQueue builds an empty queue.
func NewMemoryQueue(opts Options) *MemoryQueue {
	maxTopic := opts.MaxTopicLength
	if maxTopic <= 0 {
		maxTopic = DefaultMaxTopicLength
	}
	return &MemoryQueue{
		jobs:     make(map[string]*entry),
		capacity: opts.Capacity,
		maxTopic: maxTopic,
		ready:    make(chan struct{}, 1),
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// ValidateTopic trims the topic and enforces the non-empty and length rules.
func (q *MemoryQueue) ValidateTopic(topic string) (string, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return "", fmt.Errorf("%w: topic is required", models.ErrInvalidInput)
	}
	if n := utf8.RuneCountInString(topic); n > q.maxTopic {
		return "", fmt.Errorf("%w: topic is %d characters, limit is %d", models.ErrInvalidInput, n, q.maxTopic)
	}
	return topic, nil
}

// Submit inserts a waiting job and wakes an idle worker. It never blocks on execution.
func (q *MemoryQueue) Submit(topic string, priority models.Priority) (models.Job, error) {
	topic, err := q.ValidateTopic(topic)
	if err != nil {
		return models.Job{}, err
	}
	if priority == "" {
		priority = models.PriorityNormal
	}
	if priority.Rank() == 0 {
		return models.Job{}, fmt.Errorf("%w: unknown priority %q", models.ErrInvalidInput, priority)
	}

	q.mu.Lock()
	if q.capacity > 0 && q.waiting.Len() >= q.capacity {
		q.mu.Unlock()
		return models.Job{}, fmt.Errorf("%w: %d jobs already waiting", models.ErrQueueFull, q.capacity)
	}
	now := q.now().UTC()
	q.seq++
	e := &entry{
		job: models.Job{
			ID:        q.newID(),
			Topic:     topic,
			Priority:  priority,
			Status:    models.StatusWaiting,
			CreatedAt: now,
			UpdatedAt: now,
		},
		seq: q.seq,
	}
	q.jobs[e.job.ID] = e
	heap.Push(&q.waiting, e)
	job := e.job
	q.mu.Unlock()

	q.notify()
	return job, nil
}

// Ready signals that at least one job may be waiting.
func (q *MemoryQueue) Ready() <-chan struct{} {
	return q.ready
}

func (q *MemoryQueue) notify() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Next returns the job Claim would pick, without changing its state.
func (q *MemoryQueue) Next() (models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.waiting.Len() == 0 {
		return models.Job{}, false
	}
	return q.waiting[0].job, true
}

// Claim atomically selects the highest-priority, oldest waiting job and marks it active.
func (q *MemoryQueue) Claim() (models.Job, bool) {
	q.mu.Lock()
	if q.waiting.Len() == 0 {
		q.mu.Unlock()
		return models.Job{}, false
	}
	e := heap.Pop(&q.waiting).(*entry)
	q.activate(e)
	job := e.job
	more := q.waiting.Len() > 0
	q.mu.Unlock()

	// Pass the wake-up on so other idle workers see the remaining jobs.
	if more {
		q.notify()
	}
	return job, true
}

// MarkActive moves a specific waiting job to active.
func (q *MemoryQueue) MarkActive(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if e.job.Status != models.StatusWaiting {
		return fmt.Errorf("job %s %s -> %s: %w", id, e.job.Status, models.StatusActive, models.ErrInvalidTransition)
	}
	heap.Remove(&q.waiting, e.index)
	q.activate(e)
	return nil
}

func (q *MemoryQueue) activate(e *entry) {
	e.index = -1
	e.job.Status = models.StatusActive
	e.job.UpdatedAt = q.now().UTC()
}

// MarkCompleted finishes an active job.
func (q *MemoryQueue) MarkCompleted(id string) error {
	return q.finish(id, models.StatusCompleted, nil)
}

// MarkFailed finishes an active job with a human-readable reason.
func (q *MemoryQueue) MarkFailed(id, reason string) error {
	return q.finish(id, models.StatusFailed, &reason)
}

func (q *MemoryQueue) finish(id string, status models.Status, reason *string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	if e.job.Status != models.StatusActive {
		return fmt.Errorf("job %s %s -> %s: %w", id, e.job.Status, status, models.ErrInvalidTransition)
	}
	e.job.Status = status
	e.job.Error = reason
	if status == models.StatusCompleted {
		e.job.Progress = 100
	}
	e.job.UpdatedAt = q.now().UTC()
	return nil
}

// SetProgress records the latest progress of an active job. Lower values are ignored.
func (q *MemoryQueue) SetProgress(id string, progress int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.jobs[id]
	if !ok || e.job.Status != models.StatusActive || progress <= e.job.Progress {
		return
	}
	if progress > 100 {
		progress = 100
	}
	e.job.Progress = progress
	e.job.UpdatedAt = q.now().UTC()
}

// Get returns a snapshot of a job.
func (q *MemoryQueue) Get(id string) (models.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.jobs[id]
	if !ok {
		return models.Job{}, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
	}
	return e.job, nil
}

// Stats counts jobs per state.
func (q *MemoryQueue) Stats() models.QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	var s models.QueueStats
	for _, e := range q.jobs {
		switch e.job.Status {
		case models.StatusWaiting:
			s.Waiting++
		case models.StatusActive:
			s.Active++
		case models.StatusCompleted:
			s.Completed++
		case models.StatusFailed:
			s.Failed++
		}
	}
	s.Total = len(q.jobs)
	return s
}

// Remove cancels a waiting job or detaches a terminal one. Active or unknown
// jobs are left alone and false is returned.
func (q *MemoryQueue) Remove(id string) (models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.jobs[id]
	if !ok {
		return models.Job{}, false
	}
	switch {
	case e.job.Status == models.StatusWaiting:
		heap.Remove(&q.waiting, e.index)
		e.job.Status = models.StatusCancelled
		e.job.UpdatedAt = q.now().UTC()
	case e.job.Status.Terminal():
	default:
		return models.Job{}, false
	}
	delete(q.jobs, id)
	return e.job, true
}

// PurgeTerminal drops completed and failed jobs last updated before cutoff.
func (q *MemoryQueue) PurgeTerminal(cutoff time.Time) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for id, e := range q.jobs {
		if e.job.Status.Terminal() && e.job.UpdatedAt.Before(cutoff) {
			delete(q.jobs, id)
			n++
		}
	}
	return n
}

// waitingHeap orders by priority rank, then createdAt, then submission sequence.
type waitingHeap []*entry

func (h waitingHeap) Len() int { return len(h) }

func (h waitingHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if ra, rb := a.job.Priority.Rank(), b.job.Priority.Rank(); ra != rb {
		return ra > rb
	}
	if !a.job.CreatedAt.Equal(b.job.CreatedAt) {
		return a.job.CreatedAt.Before(b.job.CreatedAt)
	}
	return a.seq < b.seq
}

func (h waitingHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waitingHeap) Push(x any) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *waitingHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}
