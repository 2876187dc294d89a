// Package cache holds best-effort Redis helpers. A Redis outage never
// fails a caller here: reads degrade to a miss and writes are dropped.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cv-retrieval/internal/logger"
)

// JSON stores values as JSON strings with a TTL.
type JSON struct {
	rdb redis.Cmdable
	log *zap.Logger
}

func NewJSON(rdb redis.Cmdable, log *zap.Logger) *JSON {
	return &JSON{rdb: rdb, log: logger.OrNop(log).Named("cache")}
}

// Get decodes key into dest and reports whether it was found.
func (c *JSON) Get(ctx context.Context, key string, dest any) bool {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("cache read failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		c.log.Warn("cache entry undecodable, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// Set encodes v under key. Failures are logged and dropped.
func (c *JSON) Set(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		c.log.Warn("cache entry not encodable", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		c.log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Delete removes keys. Failures are logged and dropped.
func (c *JSON) Delete(ctx context.Context, keys ...string) {
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}
