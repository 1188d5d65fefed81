package queue

import (
	"context"
	"errors"
	"time"
)

// ErrDisabled is returned by the no-op client when no queue backend is
// configured; callers take their degrade-gracefully branch.
var ErrDisabled = errors.New("queue: no backend configured")

// Task is a background job message: a stable type identifier plus opaque
// payload bytes. Payload encoding is up to callers.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a task. A non-nil error signals retry per backend
// policy, so handlers must be idempotent.
type Handler func(ctx context.Context, task Task) error

// EnqueueOption tunes enqueue behavior; zero values mean unspecified.
type EnqueueOption struct {
	Queue     string
	ProcessIn time.Duration
	MaxRetry  int
	UniqueTTL time.Duration
}

// Client enqueues tasks. The interface must be assumed fallible: a queue
// outage surfaces as an error and every caller has a fallback.
type Client interface {
	Enqueue(ctx context.Context, task Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server consumes tasks. Run blocks until the context is canceled.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Disabled is a Client for deployments without a job backend. Every
// enqueue fails with ErrDisabled, which pushes callers onto their inline
// fallback paths.
type Disabled struct{}

func (Disabled) Enqueue(context.Context, Task, ...EnqueueOption) (string, error) {
	return "", ErrDisabled
}

func (Disabled) Close() error { return nil }
