package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type payload struct {
	Name  string    `json:"name"`
	Score []float32 `json:"score"`
}

func TestJSON_RoundTripAndExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewJSON(redis.NewClient(&redis.Options{Addr: mr.Addr()}), zaptest.NewLogger(t))
	ctx := context.Background()

	c.Set(ctx, "k", payload{Name: "a", Score: []float32{0.5}}, time.Minute)

	var got payload
	require.True(t, c.Get(ctx, "k", &got))
	assert.Equal(t, "a", got.Name)

	mr.FastForward(2 * time.Minute)
	assert.False(t, c.Get(ctx, "k", &got))
}

func TestJSON_MissAndGarbage(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewJSON(redis.NewClient(&redis.Options{Addr: mr.Addr()}), nil)
	ctx := context.Background()

	var got payload
	assert.False(t, c.Get(ctx, "absent", &got))

	require.NoError(t, mr.Set("bad", "{not json"))
	assert.False(t, c.Get(ctx, "bad", &got))

	c.Set(ctx, "gone", payload{}, time.Minute)
	c.Delete(ctx, "gone")
	assert.False(t, mr.Exists("gone"))
}

func TestJSON_OutageDegradesToMiss(t *testing.T) {
	mr := miniredis.RunT(t)
	c := NewJSON(redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1}), zaptest.NewLogger(t))
	mr.Close()

	ctx := context.Background()
	c.Set(ctx, "k", payload{Name: "x"}, time.Minute)

	var got payload
	assert.False(t, c.Get(ctx, "k", &got))
}
