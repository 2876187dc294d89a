package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type countingSink struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (s *countingSink) Record(eventType string, value float64, md map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcomes == nil {
		s.outcomes = map[string]int{}
	}
	s.outcomes[md["stage"]+":"+md["outcome"]]++
}

func (s *countingSink) get(k string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcomes[k]
}

func startRunner(t *testing.T, q Queue, setup func(r *Runner), opts ...RunnerOption) (context.CancelFunc, <-chan error) {
	t.Helper()
	opts = append([]RunnerOption{WithPoolSize(2), WithRunnerLogger(zaptest.NewLogger(t))}, opts...)
	r, err := NewRunner(q, opts...)
	require.NoError(t, err)
	setup(r)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()
	return cancel, errCh
}

func stop(t *testing.T, cancel context.CancelFunc, errCh <-chan error) {
	t.Helper()
	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop")
	}
}

func TestRunner_RetriesUntilSuccessAndReleasesKey(t *testing.T) {
	q := NewMemoryQueue()
	sink := &countingSink{}
	var calls atomic.Int32
	done := make(chan struct{})

	cancel, errCh := startRunner(t, q, func(r *Runner) {
		r.Handle("parse", func(ctx context.Context, job Job) error {
			if calls.Add(1) < 3 {
				return errors.New("provider timeout")
			}
			close(done)
			return nil
		}, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})
	}, WithRunnerMetrics(sink))
	defer stop(t, cancel, errCh)

	_, err := q.Enqueue(context.Background(), mustJob(t, "parse", "parse:d1", "d1"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never succeeded")
	}
	assert.Eventually(t, func() bool { return sink.get("parse:succeeded") == 1 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 3, calls.Load())

	added, err := q.Enqueue(context.Background(), mustJob(t, "parse", "parse:d1", "d1"))
	require.NoError(t, err)
	assert.True(t, added, "key released after completion")
}

func TestRunner_ExhaustsAttempts(t *testing.T) {
	q := NewMemoryQueue()
	sink := &countingSink{}
	var calls atomic.Int32

	cancel, errCh := startRunner(t, q, func(r *Runner) {
		r.Handle("embed", func(ctx context.Context, job Job) error {
			calls.Add(1)
			return errors.New("always down")
		}, RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Backoff: BackoffLinear})
	}, WithRunnerMetrics(sink))
	defer stop(t, cancel, errCh)

	_, err := q.Enqueue(context.Background(), mustJob(t, "embed", "embed:c1", "d"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return sink.get("embed:exhausted") == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, calls.Load())
}

func TestRunner_PermanentErrorsAreNotRetried(t *testing.T) {
	q := NewMemoryQueue()
	sink := &countingSink{}
	var calls atomic.Int32

	cancel, errCh := startRunner(t, q, func(r *Runner) {
		r.Handle("parse", func(ctx context.Context, job Job) error {
			calls.Add(1)
			return Permanent(errors.New("unsupported format"))
		}, RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond})
	}, WithRunnerMetrics(sink))
	defer stop(t, cancel, errCh)

	_, err := q.Enqueue(context.Background(), mustJob(t, "parse", "parse:d2", "d2"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return sink.get("parse:failed") == 1 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
}

func TestRunner_ShutdownDuringBackoffRequeues(t *testing.T) {
	q := NewMemoryQueue()
	failed := make(chan struct{})
	var once sync.Once

	cancel, errCh := startRunner(t, q, func(r *Runner) {
		r.Handle("chunk", func(ctx context.Context, job Job) error {
			once.Do(func() { close(failed) })
			return errors.New("db unavailable")
		}, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour})
	})

	_, err := q.Enqueue(context.Background(), mustJob(t, "chunk", "chunk:p1", "d"))
	require.NoError(t, err)
	<-failed
	stop(t, cancel, errCh)

	require.Equal(t, 1, q.Len())
	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "chunk:p1", job.Key)
	assert.Equal(t, 1, job.Attempt)
}

func TestRunner_GraceExpiryCancelsAndRequeues(t *testing.T) {
	q := NewMemoryQueue()
	started := make(chan struct{})

	cancel, errCh := startRunner(t, q, func(r *Runner) {
		r.Handle("embed", func(ctx context.Context, job Job) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		}, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})
	}, WithShutdownGrace(20*time.Millisecond))

	_, err := q.Enqueue(context.Background(), mustJob(t, "embed", "embed:c9", "d"))
	require.NoError(t, err)
	<-started
	stop(t, cancel, errCh)

	require.Equal(t, 1, q.Len())
	job, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, job.Attempt, "interrupted attempt does not count")
}

func TestRunner_UnknownStageIsDropped(t *testing.T) {
	q := NewMemoryQueue()
	sink := &countingSink{}
	cancel, errCh := startRunner(t, q, func(r *Runner) {}, WithRunnerMetrics(sink))
	defer stop(t, cancel, errCh)

	_, err := q.Enqueue(context.Background(), mustJob(t, "mystery", "k", "d"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return sink.get("mystery:unhandled") == 1 }, time.Second, 5*time.Millisecond)
}

type leasingQueue struct {
	*MemoryQueue
	extends atomic.Int32
}

func (q *leasingQueue) Extend(context.Context, Job) error {
	q.extends.Add(1)
	return nil
}

func TestRunner_RenewsLeaseBeforeEachRetry(t *testing.T) {
	q := &leasingQueue{MemoryQueue: NewMemoryQueue()}
	var calls atomic.Int32
	done := make(chan struct{})

	cancel, errCh := startRunner(t, q, func(r *Runner) {
		r.Handle("embed", func(ctx context.Context, job Job) error {
			if calls.Add(1) < 3 {
				return errors.New("provider throttled")
			}
			close(done)
			return nil
		}, RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond})
	})
	defer stop(t, cancel, errCh)

	_, err := q.Enqueue(context.Background(), mustJob(t, "embed", "embed:c1:m", "d1"))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not succeed")
	}
	assert.EqualValues(t, 2, q.extends.Load())
}
