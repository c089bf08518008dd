package models

import "errors"

var (
	// ErrInvalidInput rejects malformed submissions before they reach the queue.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned for unknown or purged job ids.
	ErrNotFound = errors.New("not found")
	// ErrQueueFull rejects submissions once the waiting set is at capacity.
	ErrQueueFull = errors.New("queue full")
	// ErrInvalidTransition guards the job state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)
