// Package retrieval answers tenant-scoped semantic candidate searches.
package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/logger"
)

const (
	DefaultRelevanceFloor    = 0.7
	DefaultMaxRelevantChunks = 5
)

// Store runs the tenant-scoped similarity query.
type Store interface {
	JobOwnedBy(ctx context.Context, jobID, tenantID string) (bool, error)
	SearchChunks(ctx context.Context, q domain.ChunkQuery) ([]domain.ChunkHit, error)
}

// QueryEmbedder embeds search text under the current model.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// RelevantChunk is evidence for a candidate match.
type RelevantChunk struct {
	ChunkID    string         `json:"chunkId"`
	Section    domain.Section `json:"section"`
	Text       string         `json:"text"`
	Similarity float64        `json:"similarity"`
}

// CandidateResult is one ranked candidate.
type CandidateResult struct {
	CandidateID       string          `json:"candidateId"`
	CandidateName     string          `json:"candidateName"`
	DocumentID        string          `json:"documentId"`
	MatchScore        int             `json:"matchScore"`
	AverageSimilarity float64         `json:"averageSimilarity"`
	RelevantChunks    []RelevantChunk `json:"relevantChunks"`
}

// Request is a validated search.
type Request struct {
	Query    string
	TenantID string
	ActorID  string
	JobID    string
	Filters  domain.SearchFilters
	Limit    int
	Offset   int
}

type Engine struct {
	store       Store
	embedder    QueryEmbedder
	floor       float64
	maxRelevant int
	log         *zap.Logger
}

type EngineOption func(*Engine)

func WithRelevanceFloor(f float64) EngineOption {
	return func(e *Engine) { e.floor = f }
}

func WithMaxRelevantChunks(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.maxRelevant = n
		}
	}
}

func NewEngine(store Store, embedder QueryEmbedder, log *zap.Logger, opts ...EngineOption) *Engine {
	e := &Engine{
		store:       store,
		embedder:    embedder,
		floor:       DefaultRelevanceFloor,
		maxRelevant: DefaultMaxRelevantChunks,
		log:         logger.OrNop(log).Named("retrieval"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search ranks the tenant's candidates against req.Query. A job context
// that is missing or owned by another tenant is ErrForbidden, checked
// before anything is embedded or queried.
func (e *Engine) Search(ctx context.Context, req Request) ([]CandidateResult, error) {
	if req.JobID != "" {
		owned, err := e.store.JobOwnedBy(ctx, req.JobID, req.TenantID)
		if err != nil {
			return nil, fmt.Errorf("check job ownership: %w", err)
		}
		if !owned {
			return nil, fmt.Errorf("%w: job %s is not accessible to this tenant", domain.ErrForbidden, req.JobID)
		}
	}

	vec, err := e.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := e.store.SearchChunks(ctx, domain.ChunkQuery{
		TenantID:     req.TenantID,
		JobID:        req.JobID,
		Vector:       vec,
		ModelVersion: e.embedder.Model(),
		Filters:      req.Filters,
		Limit:        req.Limit,
		Offset:       req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("similarity query: %w", err)
	}

	results := Rank(hits, e.floor, e.maxRelevant)
	e.log.Debug("search ranked",
		zap.String("tenant_id", req.TenantID),
		zap.Int("chunks", len(hits)),
		zap.Int("candidates", len(results)))
	return results, nil
}

// Rank groups chunk hits by candidate. Candidates are ordered by mean
// similarity, ties by first appearance. Relevant chunks are those strictly
// above floor, most similar first, at most maxRelevant of them.
func Rank(hits []domain.ChunkHit, floor float64, maxRelevant int) []CandidateResult {
	type group struct {
		result CandidateResult
		sum    float64
		n      int
	}
	var order []string
	groups := make(map[string]*group)

	for _, h := range hits {
		g, ok := groups[h.CandidateID]
		if !ok {
			g = &group{result: CandidateResult{
				CandidateID:    h.CandidateID,
				CandidateName:  h.CandidateName,
				DocumentID:     h.DocumentID,
				RelevantChunks: []RelevantChunk{},
			}}
			groups[h.CandidateID] = g
			order = append(order, h.CandidateID)
		}
		g.sum += h.Similarity
		g.n++
		if h.Similarity > floor {
			g.result.RelevantChunks = append(g.result.RelevantChunks, RelevantChunk{
				ChunkID:    h.ChunkID,
				Section:    h.Section,
				Text:       h.Text,
				Similarity: h.Similarity,
			})
		}
	}

	out := make([]CandidateResult, 0, len(order))
	for _, id := range order {
		g := groups[id]
		avg := g.sum / float64(g.n)
		g.result.AverageSimilarity = avg
		g.result.MatchScore = Score(avg)

		rc := g.result.RelevantChunks
		sort.SliceStable(rc, func(i, j int) bool { return rc[i].Similarity > rc[j].Similarity })
		if maxRelevant > 0 && len(rc) > maxRelevant {
			g.result.RelevantChunks = rc[:maxRelevant]
		}
		out = append(out, g.result)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AverageSimilarity > out[j].AverageSimilarity
	})
	return out
}

// Score maps a similarity onto the 0-100 display scale.
func Score(similarity float64) int {
	return int(math.Round(math.Max(0, math.Min(1, similarity)) * 100))
}
