package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"cv-retrieval/internal/cache"
	"cv-retrieval/internal/domain"
)

const DefaultResultTTL = 5 * time.Minute

// ResultCache stores whole search responses. Backend failures read as a
// miss.
type ResultCache struct {
	store *cache.JSON
	ttl   time.Duration
}

func NewResultCache(store *cache.JSON, ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	return &ResultCache{store: store, ttl: ttl}
}

func (c *ResultCache) Get(ctx context.Context, req Request) (*Response, bool) {
	var resp Response
	if !c.store.Get(ctx, c.key(req), &resp) {
		return nil, false
	}
	return &resp, true
}

func (c *ResultCache) Set(ctx context.Context, req Request, resp *Response) {
	c.store.Set(ctx, c.key(req), resp, c.ttl)
}

func (c *ResultCache) key(req Request) string {
	return fmt.Sprintf(cache.KeySearchResult, Fingerprint(req))
}

// Fingerprint hashes everything that changes a search answer. Query case
// and whitespace, skill order and skill case do not.
func Fingerprint(req Request) string {
	skills := make([]string, 0, len(req.Filters.Skills))
	for _, s := range req.Filters.Skills {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			skills = append(skills, s)
		}
	}
	slices.Sort(skills)

	f := req.Filters
	f.Location = strings.ToLower(strings.TrimSpace(f.Location))
	f.Skills = skills

	b, _ := json.Marshal(struct {
		Tenant  string               `json:"t"`
		Query   string               `json:"q"`
		Job     string               `json:"j"`
		Filters domain.SearchFilters `json:"f"`
		Limit   int                  `json:"l"`
		Offset  int                  `json:"o"`
	}{
		Tenant:  req.TenantID,
		Query:   normalizeQuery(req.Query),
		Job:     req.JobID,
		Filters: f,
		Limit:   req.Limit,
		Offset:  req.Offset,
	})
	return domain.ContentHash(string(b))
}

func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
