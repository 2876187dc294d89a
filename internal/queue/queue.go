// Package queue carries pipeline jobs between workers. Jobs are
// de-duplicated by idempotency key until they are acknowledged.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrClosed is returned by a closed queue.
var ErrClosed = errors.New("queue closed")

// Job is one unit of queued work.
type Job struct {
	ID         string          `json:"id"`
	Stage      string          `json:"stage"`
	Key        string          `json:"key"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	// lease is the raw entry a leasing queue handed out, used to settle it.
	lease string
}

// NewJob builds a job for stage with a JSON payload. key identifies the
// work for de-duplication.
func NewJob(stage, key string, payload any) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("encode %s payload: %w", stage, err)
	}
	return Job{
		ID:         uuid.NewString(),
		Stage:      stage,
		Key:        key,
		Payload:    data,
		EnqueuedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the job payload into v.
func (j Job) Decode(v any) error {
	if err := json.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", j.Stage, err)
	}
	return nil
}

// Queue is a de-duplicating work queue.
type Queue interface {
	// Enqueue adds job unless a job with the same key is pending or running.
	// It reports whether the job was added.
	Enqueue(ctx context.Context, job Job) (bool, error)

	// Dequeue blocks until a job is available or ctx is done.
	Dequeue(ctx context.Context) (Job, error)

	// Ack marks job finished and releases its key.
	Ack(ctx context.Context, job Job) error

	// Requeue returns an interrupted job without touching its key.
	Requeue(ctx context.Context, job Job) error

	Close() error
}

// Leaser is implemented by queues that hand a job back to the pending list
// when its consumer stops renewing it.
type Leaser interface {
	// Extend pushes the job's redelivery deadline forward.
	Extend(ctx context.Context, job Job) error
}
