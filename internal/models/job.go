package models

import (
	"fmt"
	"strings"
	"time"
)

// Status enumerates the lifecycle states of a research job.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Priority orders waiting jobs. It never affects how a job is executed.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Rank maps a priority to its scheduling weight; higher runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ParsePriority accepts low, normal or high (case-insensitive). Empty means normal.
func ParsePriority(v string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(v))) {
	case "", PriorityNormal:
		return PriorityNormal, nil
	case PriorityLow:
		return PriorityLow, nil
	case PriorityHigh:
		return PriorityHigh, nil
	default:
		return "", fmt.Errorf("%w: unknown priority %q", ErrInvalidInput, v)
	}
}

// Job is a unit of scheduled research work held in the in-memory queue.
type Job struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Priority  Priority  `json:"priority"`
	Status    Status    `json:"status"`
	Progress  int       `json:"progress"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobStatus is the caller-facing view returned by status lookups.
type JobStatus struct {
	ID       string  `json:"id"`
	Status   Status  `json:"status"`
	Progress int     `json:"progress"`
	Error    *string `json:"error,omitempty"`
}

// QueueStats is a point-in-time count of jobs per state.
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// ProgressUpdate is one checkpoint reported by the pipeline.
type ProgressUpdate struct {
	JobID    string `json:"job_id"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Step     string `json:"step"`
}

// LogEntry is a job log row kept by the result store.
type LogEntry struct {
	JobID    string    `json:"job_id"`
	Level    string    `json:"level"`
	Step     string    `json:"step"`
	Message  string    `json:"message"`
	Progress int       `json:"progress"`
	Recorded time.Time `json:"recorded_at"`
}
