package queue

import (
	"context"
	"sync"
)

// MemoryQueue is an in-process queue for single-instance deployments
// and tests.
type MemoryQueue struct {
	mu     sync.Mutex
	items  []Job
	keys   map[string]struct{}
	notify chan struct{}
	done   chan struct{}
	closed bool
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		keys:   make(map[string]struct{}),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, ErrClosed
	}
	if job.Key != "" {
		if _, held := q.keys[job.Key]; held {
			return false, nil
		}
		q.keys[job.Key] = struct{}{}
	}
	q.items = append(q.items, job)
	q.signal()
	return true, nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Job{}, ErrClosed
		}
		if len(q.items) > 0 {
			job := q.items[0]
			q.items = q.items[1:]
			if len(q.items) > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-q.done:
			return Job{}, ErrClosed
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) Ack(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.keys, job.Key)
	return nil
}

func (q *MemoryQueue) Requeue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.items = append([]Job{job}, q.items...)
	q.signal()
	return nil
}

// Len reports the number of pending jobs.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.done)
	}
	return nil
}

// signal wakes one waiting consumer. Callers hold q.mu.
func (q *MemoryQueue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
