package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cv-retrieval/internal/cache"
	"cv-retrieval/internal/logger"
)

const (
	// DefaultDedupTTL bounds how long a key outlives a job that was lost
	// outside the processing list. Running jobs refresh it.
	DefaultDedupTTL = time.Hour

	// DefaultVisibilityTimeout is how long a dequeued job may go without a
	// lease renewal before it is handed to another worker.
	DefaultVisibilityTimeout = 15 * time.Minute

	pollInterval = time.Second
)

// reclaimExpired moves processing entries whose lease ran out back to the
// consuming end of the pending list. Entries without a lease (a consumer
// died between the move and the lease write) get a fresh one.
//
// KEYS[1] pending list, KEYS[2] processing list, KEYS[3] lease zset
// ARGV[1] now (unix ms), ARGV[2] visibility (ms)
var reclaimExpired = redis.NewScript(`
local now = tonumber(ARGV[1])
local items = redis.call('LRANGE', KEYS[2], 0, -1)
local moved = 0
for _, item in ipairs(items) do
  local deadline = redis.call('ZSCORE', KEYS[3], item)
  if not deadline then
    redis.call('ZADD', KEYS[3], now + tonumber(ARGV[2]), item)
  elseif tonumber(deadline) <= now then
    redis.call('LREM', KEYS[2], 1, item)
    redis.call('ZREM', KEYS[3], item)
    redis.call('RPUSH', KEYS[1], item)
    moved = moved + 1
  end
end
return moved
`)

// RedisQueue is a list-backed queue shared by every service instance.
// Keys are guarded with SETNX so duplicate enqueues are dropped. A dequeued
// job stays in a processing list under a lease until it is acked or
// requeued; expired leases are redelivered.
type RedisQueue struct {
	rdb           redis.Cmdable
	listKey       string
	processingKey string
	leaseKey      string
	name          string
	dedupTTL      time.Duration
	visibility    time.Duration
	now           func() time.Time
	lastReclaim   atomic.Int64
	closed        atomic.Bool
	log           *zap.Logger
}

// RedisOption configures a RedisQueue.
type RedisOption func(*RedisQueue)

// WithVisibilityTimeout sets how long a job may run without renewing its
// lease. It must exceed one handler attempt plus its retry delay.
func WithVisibilityTimeout(d time.Duration) RedisOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.visibility = d
		}
	}
}

// WithQueueClock replaces time.Now for lease deadlines.
func WithQueueClock(now func() time.Time) RedisOption {
	return func(q *RedisQueue) { q.now = now }
}

func NewRedisQueue(rdb redis.Cmdable, name string, dedupTTL time.Duration, log *zap.Logger, opts ...RedisOption) *RedisQueue {
	if dedupTTL <= 0 {
		dedupTTL = DefaultDedupTTL
	}
	q := &RedisQueue{
		rdb:           rdb,
		listKey:       fmt.Sprintf(cache.KeyQueue, name),
		processingKey: fmt.Sprintf(cache.KeyQueueProcessing, name),
		leaseKey:      fmt.Sprintf(cache.KeyQueueLeases, name),
		name:          name,
		dedupTTL:      dedupTTL,
		visibility:    DefaultVisibilityTimeout,
		now:           time.Now,
		log:           logger.OrNop(log).Named("queue").With(zap.String("queue", name)),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) dedupKey(key string) string {
	return fmt.Sprintf(cache.KeyQueueDedup, q.name, key)
}

func (q *RedisQueue) deadline() float64 {
	return float64(q.now().Add(q.visibility).UnixMilli())
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) (bool, error) {
	if q.closed.Load() {
		return false, ErrClosed
	}
	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("encode job: %w", err)
	}

	if job.Key != "" {
		ok, err := q.rdb.SetNX(ctx, q.dedupKey(job.Key), job.ID, q.dedupTTL).Result()
		if err != nil {
			return false, fmt.Errorf("acquire job key %s: %w", job.Key, err)
		}
		if !ok {
			q.log.Debug("duplicate job dropped", zap.String("key", job.Key))
			return false, nil
		}
	}

	if err := q.rdb.LPush(ctx, q.listKey, data).Err(); err != nil {
		if job.Key != "" {
			q.rdb.Del(ctx, q.dedupKey(job.Key))
		}
		return false, fmt.Errorf("push job: %w", err)
	}
	return true, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (Job, error) {
	for {
		if q.closed.Load() {
			return Job{}, ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		q.maybeReclaim(ctx)

		raw, err := q.rdb.BLMove(ctx, q.listKey, q.processingKey, "RIGHT", "LEFT", pollInterval).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			q.log.Warn("dequeue failed, backing off", zap.Error(err))
			select {
			case <-ctx.Done():
				return Job{}, ctx.Err()
			case <-time.After(pollInterval):
			}
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			q.log.Error("dropping undecodable job", zap.Error(err))
			q.rdb.LRem(ctx, q.processingKey, 1, raw)
			continue
		}
		job.lease = raw

		// A crash before the lease lands leaves the entry unscored; the
		// reclaimer adopts it.
		if err := q.renew(ctx, job, false); err != nil {
			q.log.Warn("lease not recorded", zap.String("job_id", job.ID), zap.Error(err))
		}
		return job, nil
	}
}

// Extend renews the lease of a running job and keeps its key held.
func (q *RedisQueue) Extend(ctx context.Context, job Job) error {
	return q.renew(ctx, job, true)
}

func (q *RedisQueue) renew(ctx context.Context, job Job, existing bool) error {
	if job.lease == "" {
		return nil
	}
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		z := redis.Z{Score: q.deadline(), Member: job.lease}
		if existing {
			p.ZAddXX(ctx, q.leaseKey, z)
		} else {
			p.ZAdd(ctx, q.leaseKey, z)
		}
		if job.Key != "" {
			p.Expire(ctx, q.dedupKey(job.Key), q.dedupTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("renew lease %s: %w", job.ID, err)
	}
	return nil
}

func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	_, err := q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if job.lease != "" {
			p.LRem(ctx, q.processingKey, 1, job.lease)
			p.ZRem(ctx, q.leaseKey, job.lease)
		}
		if job.Key != "" {
			p.Del(ctx, q.dedupKey(job.Key))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("release job %s: %w", job.Key, err)
	}
	return nil
}

func (q *RedisQueue) Requeue(ctx context.Context, job Job) error {
	lease := job.lease
	job.lease = ""
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	// RPUSH puts the job at the consuming end so it runs next.
	_, err = q.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if lease != "" {
			p.LRem(ctx, q.processingKey, 1, lease)
			p.ZRem(ctx, q.leaseKey, lease)
		}
		p.RPush(ctx, q.listKey, data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}
	return nil
}

// Reclaim hands jobs whose lease expired back to the pending list and
// reports how many moved.
func (q *RedisQueue) Reclaim(ctx context.Context) (int, error) {
	q.lastReclaim.Store(q.now().UnixMilli())
	moved, err := reclaimExpired.Run(ctx, q.rdb,
		[]string{q.listKey, q.processingKey, q.leaseKey},
		q.now().UnixMilli(), q.visibility.Milliseconds(),
	).Int()
	if err != nil {
		return 0, fmt.Errorf("reclaim expired jobs: %w", err)
	}
	if moved > 0 {
		q.log.Warn("redelivering jobs with expired leases", zap.Int("count", moved))
	}
	return moved, nil
}

func (q *RedisQueue) maybeReclaim(ctx context.Context) {
	every := max(q.visibility/4, pollInterval)
	if q.now().UnixMilli()-q.lastReclaim.Load() < every.Milliseconds() {
		return
	}
	if _, err := q.Reclaim(ctx); err != nil && ctx.Err() == nil {
		q.log.Warn("reclaim failed", zap.Error(err))
	}
}

// Len reports the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.listKey).Result()
}

// InFlight reports the number of dequeued jobs not yet settled.
func (q *RedisQueue) InFlight(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.processingKey).Result()
}

func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}
