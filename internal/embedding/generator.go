// Package embedding produces vectors for chunks and queries through a
// content-hash cache in front of an external provider.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/logger"
)

// Store persists embeddings. Implementations enforce at most one row per
// (chunk, model version).
type Store interface {
	GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error)
	HasEmbedding(ctx context.Context, chunkID, model string) (bool, error)
	// InsertEmbedding reports false when the chunk already has a row for the model.
	InsertEmbedding(ctx context.Context, e *domain.Embedding) (bool, error)
	// CloneEmbedding copies the vector of sourceID onto chunkID server side.
	// It reports false when nothing was written.
	CloneEmbedding(ctx context.Context, sourceID, chunkID, newID string) (bool, error)
	FindEmbeddingByHash(ctx context.Context, contentHash, model string) (string, bool, error)
}

// MetricsSink accepts {type, value, metadata} events.
type MetricsSink interface {
	Record(eventType string, value float64, metadata map[string]string)
}

// Outcome describes what EmbedChunk did.
type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	OutcomeCached    Outcome = "cached"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeMissing   Outcome = "missing"
)

// MetricEmbeddingTokens is recorded for every provider call, valued at the
// estimated token count of the embedded text.
const MetricEmbeddingTokens = "embedding_tokens"

// ChunkResult is the per-chunk result of EmbedChunks.
type ChunkResult struct {
	ChunkID     string
	Outcome     Outcome
	EmbeddingID string
	Err         error
}

type Generator struct {
	provider      Provider
	cache         *Cache
	store         Store
	metrics       MetricsSink
	charsPerToken int
	log           *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithCharsPerToken sets the character to token ratio used for cost metrics.
func WithCharsPerToken(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.charsPerToken = n
		}
	}
}

// WithMetrics sets the sink for cost events.
func WithMetrics(m MetricsSink) Option {
	return func(g *Generator) { g.metrics = m }
}

// NewGenerator wires a provider, an optional cache and the store.
func NewGenerator(provider Provider, cache *Cache, store Store, log *zap.Logger, opts ...Option) *Generator {
	g := &Generator{
		provider:      provider,
		cache:         cache,
		store:         store,
		charsPerToken: 4,
		log:           logger.OrNop(log).Named("embedding"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Generator) Model() string { return g.provider.Model() }

// EmbedText calls the provider directly and validates the vector.
func (g *Generator) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := g.provider.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, domain.ErrEmbeddingProvider) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingProvider, err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: empty vector", domain.ErrEmbeddingProvider)
	}
	if d := g.provider.Dimensions(); d > 0 && len(vec) != d {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", domain.ErrEmbeddingProvider, len(vec), d)
	}
	g.recordCost(text, map[string]string{"model": g.provider.Model()})
	return vec, nil
}

// EmbedQuery embeds search text, serving repeats from the vector cache.
func (g *Generator) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	hash := domain.ContentHash(text)
	model := g.provider.Model()
	if g.cache != nil {
		if vec, ok := g.cache.GetVector(ctx, model, hash); ok {
			return vec, nil
		}
	}
	vec, err := g.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	if g.cache != nil {
		g.cache.SetVector(ctx, model, hash, vec)
	}
	return vec, nil
}

// EmbedChunk makes sure chunkID has an embedding under the current model.
//
// Text already embedded anywhere is re-linked by copying the stored vector
// in the database; only unseen text reaches the provider.
func (g *Generator) EmbedChunk(ctx context.Context, chunkID string) (ChunkResult, error) {
	res := ChunkResult{ChunkID: chunkID}
	model := g.provider.Model()

	chunk, err := g.store.GetChunk(ctx, chunkID)
	if errors.Is(err, domain.ErrNotFound) {
		res.Outcome = OutcomeMissing
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("load chunk %s: %w", chunkID, err)
	}

	exists, err := g.store.HasEmbedding(ctx, chunkID, model)
	if err != nil {
		return res, fmt.Errorf("check embedding for chunk %s: %w", chunkID, err)
	}
	if exists {
		res.Outcome = OutcomeSkipped
		return res, nil
	}

	hash := chunk.ContentHash
	if hash == "" {
		hash = domain.ContentHash(chunk.Text)
	}

	if id, ok, err := g.relink(ctx, chunkID, model, hash); err != nil {
		return res, err
	} else if ok {
		res.Outcome = OutcomeCached
		res.EmbeddingID = id
		return res, nil
	}

	vec, err := g.EmbedText(ctx, chunk.Text)
	if err != nil {
		return res, err
	}

	emb := &domain.Embedding{
		ID:           uuid.NewString(),
		ChunkID:      chunkID,
		ModelVersion: model,
		ContentHash:  hash,
		Vector:       vec,
		CreatedAt:    time.Now().UTC(),
	}
	created, err := g.store.InsertEmbedding(ctx, emb)
	if err != nil {
		return res, fmt.Errorf("store embedding for chunk %s: %w", chunkID, err)
	}
	if !created {
		// Another worker embedded the chunk first.
		res.Outcome = OutcomeSkipped
		return res, nil
	}
	if g.cache != nil {
		g.cache.SetRef(ctx, model, hash, emb.ID)
	}
	res.Outcome = OutcomeGenerated
	res.EmbeddingID = emb.ID
	return res, nil
}

// EmbedChunks runs EmbedChunk for every id. It keeps going past failures
// and returns them joined.
func (g *Generator) EmbedChunks(ctx context.Context, chunkIDs []string) ([]ChunkResult, error) {
	results := make([]ChunkResult, 0, len(chunkIDs))
	var errs []error
	for _, id := range chunkIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res, err := g.EmbedChunk(ctx, id)
		res.Err = err
		if err != nil {
			errs = append(errs, err)
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// relink copies an existing vector with the same content hash onto chunkID.
// The Redis ref is tried first, then the database index.
func (g *Generator) relink(ctx context.Context, chunkID, model, hash string) (string, bool, error) {
	if g.cache != nil {
		if src, ok := g.cache.GetRef(ctx, model, hash); ok {
			id, linked, err := g.clone(ctx, src, chunkID)
			if err != nil || linked {
				return id, linked, err
			}
			g.cache.DropRef(ctx, model, hash)
		}
	}

	src, ok, err := g.store.FindEmbeddingByHash(ctx, hash, model)
	if err != nil {
		return "", false, fmt.Errorf("find embedding by hash: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	id, linked, err := g.clone(ctx, src, chunkID)
	if err == nil && linked && g.cache != nil {
		g.cache.SetRef(ctx, model, hash, src)
	}
	return id, linked, err
}

func (g *Generator) clone(ctx context.Context, sourceID, chunkID string) (string, bool, error) {
	id := uuid.NewString()
	linked, err := g.store.CloneEmbedding(ctx, sourceID, chunkID, id)
	if err != nil {
		return "", false, fmt.Errorf("relink embedding %s to chunk %s: %w", sourceID, chunkID, err)
	}
	if linked {
		g.log.Debug("re-linked cached embedding", zap.String("chunk_id", chunkID), zap.String("source_id", sourceID))
	}
	return id, linked, nil
}

func (g *Generator) recordCost(text string, metadata map[string]string) {
	if g.metrics == nil {
		return
	}
	tokens := (len(text) + g.charsPerToken - 1) / g.charsPerToken
	g.metrics.Record(MetricEmbeddingTokens, float64(tokens), metadata)
}
