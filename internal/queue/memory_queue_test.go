package queue

import (
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"research-task-scheduler/internal/models"
)

func newTestQueue(opts Options) *MemoryQueue {
	q := NewMemoryQueue(opts)
	// A frozen clock makes the sequence number the only FIFO tie-break.
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return fixed }
	return q
}

func drain(q *MemoryQueue) []models.Job {
	var out []models.Job
	for {
		job, ok := q.Claim()
		if !ok {
			return out
		}
		out = append(out, job)
	}
}

func TestClaimOrdersByPriorityThenSubmission(t *testing.T) {
	q := newTestQueue(Options{})
	a, err := q.Submit("A", models.PriorityLow)
	require.NoError(t, err)
	b, err := q.Submit("B", models.PriorityHigh)
	require.NoError(t, err)
	c, err := q.Submit("C", models.PriorityNormal)
	require.NoError(t, err)

	got := drain(q)
	require.Len(t, got, 3)
	assert.Equal(t, []string{b.ID, c.ID, a.ID}, []string{got[0].ID, got[1].ID, got[2].ID})
}

func TestFIFOWithinBand(t *testing.T) {
	q := newTestQueue(Options{})
	var want []string
	for i := 0; i < 20; i++ {
		job, err := q.Submit("topic", models.PriorityNormal)
		require.NoError(t, err)
		want = append(want, job.ID)
	}
	var got []string
	for _, j := range drain(q) {
		got = append(got, j.ID)
	}
	assert.Equal(t, want, got)
}

func TestNoLowerPriorityStartsBeforeHigherWaiting(t *testing.T) {
	priorities := []models.Priority{models.PriorityLow, models.PriorityNormal, models.PriorityHigh}
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 50; round++ {
		q := NewMemoryQueue(Options{})
		submitted := map[string]int{}
		for i := 0; i < 30; i++ {
			p := priorities[rng.Intn(len(priorities))]
			job, err := q.Submit("topic", p)
			require.NoError(t, err)
			submitted[job.ID] = i
		}
		got := drain(q)
		require.Len(t, got, 30)
		for i := 1; i < len(got); i++ {
			prev, cur := got[i-1], got[i]
			require.GreaterOrEqual(t, prev.Priority.Rank(), cur.Priority.Rank())
			if prev.Priority == cur.Priority {
				require.Less(t, submitted[prev.ID], submitted[cur.ID])
			}
		}
	}
}

func TestSubmitValidatesTopic(t *testing.T) {
	q := NewMemoryQueue(Options{MaxTopicLength: 10})

	_, err := q.Submit("   ", models.PriorityNormal)
	require.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = q.Submit(strings.Repeat("x", 11), models.PriorityNormal)
	require.ErrorIs(t, err, models.ErrInvalidInput)

	_, err = q.Submit("ok", models.Priority("urgent"))
	require.ErrorIs(t, err, models.ErrInvalidInput)

	job, err := q.Submit("  trimmed  ", "")
	require.NoError(t, err)
	assert.Equal(t, "trimmed", job.Topic)
	assert.Equal(t, models.PriorityNormal, job.Priority)
	assert.Equal(t, models.StatusWaiting, job.Status)
	assert.NotEmpty(t, job.ID)
}

func TestSubmitRejectsWhenFull(t *testing.T) {
	q := NewMemoryQueue(Options{Capacity: 2})
	_, err := q.Submit("one", models.PriorityLow)
	require.NoError(t, err)
	_, err = q.Submit("two", models.PriorityLow)
	require.NoError(t, err)
	_, err = q.Submit("three", models.PriorityLow)
	require.ErrorIs(t, err, models.ErrQueueFull)

	_, ok := q.Claim()
	require.True(t, ok)
	_, err = q.Submit("three", models.PriorityLow)
	require.NoError(t, err)
}

func TestStatusTransitions(t *testing.T) {
	q := NewMemoryQueue(Options{})
	job, err := q.Submit("topic", models.PriorityNormal)
	require.NoError(t, err)

	require.ErrorIs(t, q.MarkCompleted(job.ID), models.ErrInvalidTransition)
	require.NoError(t, q.MarkActive(job.ID))
	require.ErrorIs(t, q.MarkActive(job.ID), models.ErrInvalidTransition)

	_, ok := q.Next()
	assert.False(t, ok, "active job must not be selectable again")

	q.SetProgress(job.ID, 40)
	q.SetProgress(job.ID, 10)
	got, err := q.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Progress)

	require.NoError(t, q.MarkFailed(job.ID, "boom"))
	got, err = q.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "boom", *got.Error)
	require.ErrorIs(t, q.MarkCompleted(job.ID), models.ErrInvalidTransition)

	_, err = q.Get("missing")
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestRemove(t *testing.T) {
	q := NewMemoryQueue(Options{})
	waiting, _ := q.Submit("waiting", models.PriorityLow)
	active, _ := q.Submit("active", models.PriorityHigh)
	require.NoError(t, q.MarkActive(active.ID))

	removed, ok := q.Remove(waiting.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatusCancelled, removed.Status)
	assert.Equal(t, 0, q.Stats().Waiting)
	_, err := q.Get(waiting.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	_, ok = q.Remove(active.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, q.Stats().Active)

	require.NoError(t, q.MarkCompleted(active.ID))
	_, ok = q.Remove(active.ID)
	assert.True(t, ok)
	assert.Equal(t, 0, q.Stats().Total)

	_, ok = q.Remove("unknown")
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	q := NewMemoryQueue(Options{})
	for i := 0; i < 4; i++ {
		_, err := q.Submit("topic", models.PriorityNormal)
		require.NoError(t, err)
	}
	first, _ := q.Claim()
	require.NoError(t, q.MarkCompleted(first.ID))
	second, _ := q.Claim()
	require.NoError(t, q.MarkFailed(second.ID, "x"))
	_, _ = q.Claim()

	assert.Equal(t, models.QueueStats{Waiting: 1, Active: 1, Completed: 1, Failed: 1, Total: 4}, q.Stats())
}

func TestPurgeTerminal(t *testing.T) {
	q := NewMemoryQueue(Options{})
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return clock }

	done, _ := q.Submit("done", models.PriorityNormal)
	_, _ = q.Submit("waiting", models.PriorityNormal)
	require.NoError(t, q.MarkActive(done.ID))
	require.NoError(t, q.MarkCompleted(done.ID))

	assert.Equal(t, 0, q.PurgeTerminal(clock))
	assert.Equal(t, 1, q.PurgeTerminal(clock.Add(time.Minute)))
	assert.Equal(t, 1, q.Stats().Total)
	_, err := q.Get(done.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestConcurrentClaimsNeverShareAJob(t *testing.T) {
	q := NewMemoryQueue(Options{})
	const jobs = 500
	for i := 0; i < jobs; i++ {
		_, err := q.Submit("topic", models.PriorityNormal)
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, ok := q.Claim()
				if !ok {
					return
				}
				mu.Lock()
				seen[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, jobs)
	for id, n := range seen {
		require.Equalf(t, 1, n, "job %s claimed %d times", id, n)
	}
}

func TestSubmitSignalsReady(t *testing.T) {
	q := NewMemoryQueue(Options{})
	_, err := q.Submit("topic", models.PriorityNormal)
	require.NoError(t, err)
	select {
	case <-q.Ready():
	default:
		t.Fatal("expected ready signal after submit")
	}
}
