package embedding

import (
	"context"
	"fmt"
	"time"

	"cv-retrieval/internal/cache"
)

// DefaultCacheTTL is how long cached vectors and refs live.
const DefaultCacheTTL = 7 * 24 * time.Hour

// Cache maps (content hash, model) to a vector or to the embedding row that
// already stores the vector. It is an optimization only.
type Cache struct {
	store *cache.JSON
	ttl   time.Duration
}

func NewCache(store *cache.JSON, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{store: store, ttl: ttl}
}

func (c *Cache) GetVector(ctx context.Context, model, contentHash string) ([]float32, bool) {
	var vec []float32
	if !c.store.Get(ctx, fmt.Sprintf(cache.KeyEmbeddingVector, model, contentHash), &vec) || len(vec) == 0 {
		return nil, false
	}
	return vec, true
}

func (c *Cache) SetVector(ctx context.Context, model, contentHash string, vec []float32) {
	c.store.Set(ctx, fmt.Sprintf(cache.KeyEmbeddingVector, model, contentHash), vec, c.ttl)
}

// GetRef returns the id of an embedding row holding the vector for contentHash.
func (c *Cache) GetRef(ctx context.Context, model, contentHash string) (string, bool) {
	var id string
	if !c.store.Get(ctx, fmt.Sprintf(cache.KeyEmbeddingRef, model, contentHash), &id) || id == "" {
		return "", false
	}
	return id, true
}

func (c *Cache) SetRef(ctx context.Context, model, contentHash, embeddingID string) {
	c.store.Set(ctx, fmt.Sprintf(cache.KeyEmbeddingRef, model, contentHash), embeddingID, c.ttl)
}

// DropRef forgets a ref whose row no longer exists.
func (c *Cache) DropRef(ctx context.Context, model, contentHash string) {
	c.store.Delete(ctx, fmt.Sprintf(cache.KeyEmbeddingRef, model, contentHash))
}
