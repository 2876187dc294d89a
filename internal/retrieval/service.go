package retrieval

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"cv-retrieval/internal/audit"
	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/logger"
	"cv-retrieval/internal/ratelimit"
)

// Request bounds.
const (
	MinQueryLength  = 3
	MaxQueryLength  = 500
	MaxExperience   = 50
	MaxSkills       = 20
	DefaultLimit    = 20
	MaxLimit        = 50
	RateLimitAction = "search"

	// MetricSearchDuration carries the request latency in seconds.
	MetricSearchDuration = "search_duration"
)

// Response is the search answer as served and cached.
type Response struct {
	Results         []CandidateResult `json:"results"`
	Total           int               `json:"total"`
	Query           string            `json:"query"`
	ExecutionTimeMs int64             `json:"executionTimeMs"`

	// Quota is the limiter decision that admitted the request.
	Quota ratelimit.Decision `json:"-"`
}

// Limiter is the sliding-window check per tenant and action.
type Limiter interface {
	Allow(ctx context.Context, tenantID, action string, limit int, window time.Duration) ratelimit.Decision
}

// AuditSink appends events and never fails the caller.
type AuditSink interface {
	Record(ctx context.Context, events ...domain.AuditEvent)
}

// MetricsSink accepts {type, value, metadata} events.
type MetricsSink interface {
	Record(eventType string, value float64, metadata map[string]string)
}

// Service is the search entry point: validate, rate limit, cache, search,
// audit.
type Service struct {
	engine  *Engine
	cache   *ResultCache
	limiter Limiter
	audit   AuditSink
	metrics MetricsSink

	rateLimit  int
	rateWindow time.Duration
	now        func() time.Time
	log        *zap.Logger
}

type ServiceOption func(*Service)

func WithResultCache(c *ResultCache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithRateLimit admits at most limit searches per tenant within window.
func WithRateLimit(l Limiter, limit int, window time.Duration) ServiceOption {
	return func(s *Service) {
		s.limiter = l
		s.rateLimit = limit
		s.rateWindow = window
	}
}

func WithAudit(a AuditSink) ServiceOption {
	return func(s *Service) { s.audit = a }
}

func WithMetrics(m MetricsSink) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

func NewService(engine *Engine, log *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		engine: engine,
		now:    time.Now,
		log:    logger.OrNop(log).Named("search"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validate normalizes req in place and rejects out-of-range input.
func Validate(req *Request) error {
	if req.TenantID == "" {
		return domain.ErrUnauthenticated
	}
	req.Query = strings.TrimSpace(req.Query)
	if n := utf8.RuneCountInString(req.Query); n < MinQueryLength || n > MaxQueryLength {
		return domain.Validationf("query must be between %d and %d characters", MinQueryLength, MaxQueryLength)
	}
	if req.Limit == 0 {
		req.Limit = DefaultLimit
	}
	if req.Limit < 1 || req.Limit > MaxLimit {
		return domain.Validationf("limit must be between 1 and %d", MaxLimit)
	}
	if req.Offset < 0 {
		return domain.Validationf("offset must not be negative")
	}
	f := req.Filters
	if f.MinExperience != nil && (*f.MinExperience < 0 || *f.MinExperience > MaxExperience) {
		return domain.Validationf("minExperience must be between 0 and %d", MaxExperience)
	}
	if len(f.Skills) > MaxSkills {
		return domain.Validationf("at most %d skills may be given", MaxSkills)
	}
	return nil
}

// Search answers req. Every call that returns candidates writes one audit
// event per candidate, including cache hits.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	start := s.now()
	if err := Validate(&req); err != nil {
		return nil, err
	}

	var quota ratelimit.Decision
	if s.limiter != nil {
		quota = s.limiter.Allow(ctx, req.TenantID, RateLimitAction, s.rateLimit, s.rateWindow)
		if !quota.Allowed {
			return nil, &domain.RateLimitedError{
				Limit:      quota.Limit,
				Remaining:  quota.Remaining,
				ResetAt:    quota.ResetAt,
				RetryAfter: quota.RetryAfter,
			}
		}
	}

	cacheState := "miss"
	resp, hit := s.cachedResponse(ctx, req)
	if hit {
		cacheState = "hit"
		// The entry may have been stored under a differently spelled query.
		resp.Query = req.Query
	} else {
		results, err := s.engine.Search(ctx, req)
		if err != nil {
			return nil, err
		}
		resp = &Response{Results: results, Total: len(results), Query: req.Query}
		resp.ExecutionTimeMs = s.now().Sub(start).Milliseconds()
		if s.cache != nil {
			s.cache.Set(ctx, req, resp)
		}
	}
	resp.Quota = quota

	s.recordAudit(ctx, req, resp.Results)

	elapsed := s.now().Sub(start)
	if hit {
		resp.ExecutionTimeMs = elapsed.Milliseconds()
	}
	if s.metrics != nil {
		s.metrics.Record(MetricSearchDuration, elapsed.Seconds(), map[string]string{"cache": cacheState})
	}
	s.log.Info("search served",
		zap.String("tenant_id", req.TenantID),
		zap.String("job_id", req.JobID),
		zap.Int("results", resp.Total),
		zap.String("cache", cacheState),
		zap.Duration("elapsed", elapsed))
	return resp, nil
}

func (s *Service) cachedResponse(ctx context.Context, req Request) (*Response, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, req)
}

func (s *Service) recordAudit(ctx context.Context, req Request, results []CandidateResult) {
	if s.audit == nil || len(results) == 0 {
		return
	}
	events := make([]domain.AuditEvent, 0, len(results))
	for _, r := range results {
		events = append(events, domain.AuditEvent{
			Action:      audit.ActionCandidateSearched,
			ActorID:     req.ActorID,
			TenantID:    req.TenantID,
			JobID:       req.JobID,
			Query:       req.Query,
			CandidateID: r.CandidateID,
		})
	}
	s.audit.Record(ctx, events...)
}
