package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"cv-retrieval/internal/logger"
)

// Handler processes one job. Returning an error schedules a retry unless
// the error is Permanent.
type Handler func(ctx context.Context, job Job) error

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	BackoffExponential Backoff = iota
	BackoffLinear
)

// RetryPolicy bounds the attempts of one stage.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Backoff     Backoff
}

// Delay returns the wait after the given failed attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.Backoff == BackoffLinear {
		return p.BaseDelay * time.Duration(attempt)
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}

// DefaultRetryPolicy is used for stages registered without one.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Backoff: BackoffExponential}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// MetricsSink accepts {type, value, metadata} events.
type MetricsSink interface {
	Record(eventType string, value float64, metadata map[string]string)
}

// MetricJobCompleted is recorded once per job with stage and outcome metadata.
const MetricJobCompleted = "pipeline_job"

type stage struct {
	handler Handler
	policy  RetryPolicy
}

// Runner pulls jobs from a Queue and executes them on an ants pool.
type Runner struct {
	queue      Queue
	pool       *ants.Pool
	poolSize   int
	stages     map[string]stage
	jobTimeout time.Duration
	grace      time.Duration
	metrics    MetricsSink
	log        *zap.Logger
	wg         sync.WaitGroup
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithPoolSize sets the number of concurrent workers.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) RunnerOption {
	return func(r *Runner) {
		if size < 1 {
			size = 1
		}
		r.poolSize = size
	}
}

// WithJobTimeout bounds a single handler attempt.
func WithJobTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.jobTimeout = d
		}
	}
}

// WithShutdownGrace sets how long in-flight jobs may run after shutdown
// starts before they are cancelled and requeued.
func WithShutdownGrace(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d >= 0 {
			r.grace = d
		}
	}
}

func WithRunnerMetrics(m MetricsSink) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

func WithRunnerLogger(l *zap.Logger) RunnerOption {
	return func(r *Runner) { r.log = logger.OrNop(l).Named("runner") }
}

func NewRunner(q Queue, opts ...RunnerOption) (*Runner, error) {
	r := &Runner{
		queue:      q,
		poolSize:   max(runtime.NumCPU()/2, 1),
		stages:     make(map[string]stage),
		jobTimeout: 5 * time.Minute,
		grace:      30 * time.Second,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	pool, err := ants.NewPool(r.poolSize)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	r.pool = pool
	return r, nil
}

// Handle registers the handler and retry policy for a stage.
// Register every stage before calling Run.
func (r *Runner) Handle(stageName string, h Handler, policy RetryPolicy) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	r.stages[stageName] = stage{handler: h, policy: policy}
}

// Run consumes jobs until ctx is cancelled or the queue closes, then waits
// for in-flight jobs. Jobs still running after the grace period are
// cancelled and put back on the queue.
func (r *Runner) Run(ctx context.Context) error {
	defer r.pool.Release()

	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	r.log.Info("workers started", zap.Int("pool_size", r.poolSize))

	var runErr error
	for {
		job, err := r.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, ErrClosed) {
				runErr = err
			}
			break
		}

		r.wg.Add(1)
		j := job
		if err := r.pool.Submit(func() {
			defer r.wg.Done()
			r.process(ctx, workCtx, j)
		}); err != nil {
			r.wg.Done()
			r.log.Error("submit failed, requeueing", zap.String("job_id", j.ID), zap.Error(err))
			r.requeue(j)
		}
	}

	r.log.Info("draining in-flight jobs", zap.Duration("grace", r.grace))
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(r.grace):
		r.log.Warn("grace period over, cancelling in-flight jobs")
		cancelWork()
		<-done
	}
	r.log.Info("workers stopped")
	return runErr
}

// process runs job with retries. stopCtx signals shutdown, workCtx is the
// parent of handler contexts and is cancelled only after the grace period.
func (r *Runner) process(stopCtx, workCtx context.Context, job Job) {
	log := r.log.With(zap.String("job_id", job.ID), zap.String("stage", job.Stage), zap.String("key", job.Key))

	st, ok := r.stages[job.Stage]
	if !ok {
		log.Error("no handler for stage, dropping job")
		r.ack(job)
		r.record(job.Stage, "unhandled")
		return
	}

	for first := true; job.Attempt < st.policy.MaxAttempts; first = false {
		if !first {
			r.extend(job)
		}
		job.Attempt++
		start := time.Now()

		hctx, cancel := context.WithTimeout(workCtx, r.jobTimeout)
		err := st.handler(hctx, job)
		cancel()

		if err == nil {
			log.Debug("job done", zap.Int("attempt", job.Attempt), zap.Duration("elapsed", time.Since(start)))
			r.ack(job)
			r.record(job.Stage, "succeeded")
			return
		}

		if workCtx.Err() != nil {
			// Interrupted by shutdown; this attempt does not count.
			job.Attempt--
			log.Warn("job interrupted, requeueing", zap.Error(err))
			r.requeue(job)
			r.record(job.Stage, "interrupted")
			return
		}

		if IsPermanent(err) {
			log.Error("job failed permanently", zap.Int("attempt", job.Attempt), zap.Error(err))
			r.ack(job)
			r.record(job.Stage, "failed")
			return
		}

		if job.Attempt >= st.policy.MaxAttempts {
			break
		}

		delay := st.policy.Delay(job.Attempt)
		log.Warn("job failed, will retry", zap.Int("attempt", job.Attempt),
			zap.Int("max_attempts", st.policy.MaxAttempts), zap.Duration("delay", delay), zap.Error(err))

		timer := time.NewTimer(delay)
		select {
		case <-stopCtx.Done():
			timer.Stop()
			r.requeue(job)
			r.record(job.Stage, "interrupted")
			return
		case <-timer.C:
		}
	}

	log.Error("job exhausted retries", zap.Int("attempts", job.Attempt))
	r.ack(job)
	r.record(job.Stage, "exhausted")
}

func (r *Runner) ack(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.queue.Ack(ctx, job); err != nil {
		r.log.Warn("ack failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (r *Runner) extend(job Job) {
	l, ok := r.queue.(Leaser)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Extend(ctx, job); err != nil {
		r.log.Warn("lease renewal failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (r *Runner) requeue(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.queue.Requeue(ctx, job); err != nil {
		r.log.Error("requeue failed, job returns when its lease expires", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (r *Runner) record(stageName, outcome string) {
	if r.metrics == nil {
		return
	}
	r.metrics.Record(MetricJobCompleted, 1, map[string]string{"stage": stageName, "outcome": outcome})
}
