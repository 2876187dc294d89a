// Package ratelimit implements a sliding-window request limiter shared
// across service instances through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cv-retrieval/internal/cache"
	"cv-retrieval/internal/logger"
)

// MetricDegraded is recorded each time a check is admitted because Redis
// could not be reached.
const MetricDegraded = "ratelimit_degraded"

// Decision is the outcome of one check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration

	// Degraded is set when the limiter failed open.
	Degraded bool
}

// MetricsSink accepts {type, value, metadata} events.
type MetricsSink interface {
	Record(eventType string, value float64, metadata map[string]string)
}

// slidingWindow drops markers at or before now-window, then admits and
// records a marker if fewer than limit survive. It returns
// {admitted, survivors before this request, oldest surviving marker}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local admitted = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	admitted = 1
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local oldestScore = now
if oldest[2] then
	oldestScore = tonumber(oldest[2])
end
return {admitted, count, oldestScore}
`)

type Limiter struct {
	rdb     redis.Cmdable
	now     func() time.Time
	metrics MetricsSink
	log     *zap.Logger
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func WithMetrics(m MetricsSink) Option {
	return func(l *Limiter) { l.metrics = m }
}

func New(rdb redis.Cmdable, log *zap.Logger, opts ...Option) *Limiter {
	l := &Limiter{
		rdb: rdb,
		now: time.Now,
		log: logger.OrNop(log).Named("ratelimit"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow checks the window of one tenant and action.
func (l *Limiter) Allow(ctx context.Context, tenantID, action string, limit int, window time.Duration) Decision {
	return l.Check(ctx, fmt.Sprintf(cache.KeyRateLimit, tenantID, action), limit, window)
}

// Check admits or denies one request against the window stored at key. It
// never fails: a Redis error admits the request and logs a degraded event.
func (l *Limiter) Check(ctx context.Context, key string, limit int, window time.Duration) Decision {
	now := l.now()
	nowMs := now.UnixMilli()
	windowMs := window.Milliseconds()

	res, err := slidingWindow.Run(ctx, l.rdb, []string{key},
		nowMs, windowMs, limit, fmt.Sprintf("%d-%s", nowMs, uuid.NewString())).Int64Slice()
	if err != nil || len(res) != 3 {
		if err == nil {
			err = fmt.Errorf("unexpected script reply of %d values", len(res))
		}
		l.log.Warn("rate limiter unavailable, admitting request",
			zap.String("key", key), zap.Error(err))
		if l.metrics != nil {
			l.metrics.Record(MetricDegraded, 1, map[string]string{"key": key})
		}
		return Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: max(limit-1, 0),
			ResetAt:   now.Add(window),
			Degraded:  true,
		}
	}

	admitted, count, oldest := res[0] == 1, int(res[1]), res[2]
	resetAt := time.UnixMilli(oldest + windowMs)

	if admitted {
		return Decision{
			Allowed:   true,
			Limit:     limit,
			Remaining: max(limit-count-1, 0),
			ResetAt:   resetAt,
		}
	}

	retryAfter := resetAt.Sub(now)
	if retryAfter < time.Millisecond {
		retryAfter = time.Millisecond
	}
	return Decision{
		Allowed:    false,
		Limit:      limit,
		Remaining:  0,
		ResetAt:    resetAt,
		RetryAfter: retryAfter,
	}
}
