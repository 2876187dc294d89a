package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/policy"
	"cv-retrieval/internal/ratelimit"
	"cv-retrieval/internal/retrieval"
)

type fakeSearcher struct {
	got  retrieval.Request
	resp *retrieval.Response
	err  error
}

func (s *fakeSearcher) Search(_ context.Context, req retrieval.Request) (*retrieval.Response, error) {
	s.got = req
	return s.resp, s.err
}

type fakeIngestor struct {
	docs   map[string]*domain.Document
	queued map[string]bool
}

func (f *fakeIngestor) Ingest(_ context.Context, id string) (bool, error) {
	if _, ok := f.docs[id]; !ok {
		return false, domain.ErrNotFound
	}
	if f.queued[id] {
		return false, nil
	}
	f.queued[id] = true
	return true, nil
}

func (f *fakeIngestor) Status(_ context.Context, id string) (*domain.Document, error) {
	d, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

type fakePolicy struct {
	excluding string
	result    policy.Result
	err       error
}

func (p *fakePolicy) CanPublish(_ context.Context, _ string, excluding string) (policy.Result, error) {
	p.excluding = excluding
	return p.result, p.err
}

func (p *fakePolicy) Publish(context.Context, string, string) (policy.Result, error) {
	return p.result, p.err
}

type testServer struct {
	handler  http.Handler
	search   *fakeSearcher
	ingest   *fakeIngestor
	policy   *fakePolicy
	healthOK bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		search: &fakeSearcher{resp: &retrieval.Response{
			Results: []retrieval.CandidateResult{{CandidateID: "c1", MatchScore: 90}},
			Total:   1,
			Query:   "go developer",
			Quota:   ratelimit.Decision{Allowed: true, Limit: 30, Remaining: 29, ResetAt: time.Unix(1_700_000_060, 0)},
		}},
		ingest: &fakeIngestor{
			docs:   map[string]*domain.Document{"doc-1": {ID: "doc-1", Status: domain.StatusFailed, ProcessingError: "parse: boom"}},
			queued: map[string]bool{},
		},
		policy:   &fakePolicy{result: policy.Result{Allowed: true, Code: policy.CodeAllowed}},
		healthOK: true,
	}
	a := NewAPI(Services{
		Search:   ts.search,
		Pipeline: ts.ingest,
		Policy:   ts.policy,
		Health: map[string]HealthCheck{
			"postgres": func(context.Context) error {
				if !ts.healthOK {
					return errors.New("connection refused")
				}
				return nil
			},
		},
	}, HeaderAuthenticator{}, "secret", zaptest.NewLogger(t))
	ts.handler = NewRouter(a)
	return ts
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

var tenantHeaders = map[string]string{HeaderTenantID: "tenant-1", HeaderActorID: "user-1"}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestSearch_Success(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/search",
		`{"query":"go developer","jobId":"job-1","filters":{"skills":["go"],"minExperience":3},"limit":10,"offset":5}`,
		tenantHeaders)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "29", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Limit"))

	got := ts.search.got
	assert.Equal(t, "tenant-1", got.TenantID)
	assert.Equal(t, "user-1", got.ActorID)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, 10, got.Limit)
	assert.Equal(t, 5, got.Offset)
	assert.Equal(t, []string{"go"}, got.Filters.Skills)
	require.NotNil(t, got.Filters.MinExperience)
	assert.Equal(t, 3, *got.Filters.MinExperience)

	body := decode[map[string]any](t, rec)
	assert.EqualValues(t, 1, body["total"])
	assert.Contains(t, body, "executionTimeMs")
	assert.NotContains(t, body, "Quota")
}

func TestSearch_Unauthenticated(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/search", `{"query":"go developer"}`, map[string]string{HeaderTenantID: "tenant-1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthenticated", decode[ErrorResponse](t, rec).Error)
	assert.Empty(t, ts.search.got.TenantID)
}

func TestSearch_BadInput(t *testing.T) {
	ts := newTestServer(t)

	for _, body := range []string{`{not json`, `{"query":"go developer","limit":0}`} {
		rec := ts.do(http.MethodPost, "/api/search", body, tenantHeaders)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "validation_error", decode[ErrorResponse](t, rec).Error)
	}
}

func TestSearch_ErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.Validationf("query too short"), http.StatusBadRequest, "validation_error"},
		{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		ts := newTestServer(t)
		ts.search.err = tt.err
		rec := ts.do(http.MethodPost, "/api/search", `{"query":"go developer"}`, tenantHeaders)
		assert.Equal(t, tt.status, rec.Code)
		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, tt.code, resp.Error)
		if tt.status == http.StatusInternalServerError {
			assert.NotContains(t, resp.Message, "boom")
		}
	}
}

func TestSearch_RateLimited(t *testing.T) {
	ts := newTestServer(t)
	ts.search.err = &domain.RateLimitedError{
		Limit:      30,
		Remaining:  0,
		ResetAt:    time.Unix(1_700_000_060, 0),
		RetryAfter: 1500 * time.Millisecond,
	}

	rec := ts.do(http.MethodPost, "/api/search", `{"query":"go developer"}`, tenantHeaders)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1700000060", rec.Header().Get("X-RateLimit-Reset"))

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "rate_limited", resp.Error)
	assert.Equal(t, 2, resp.RetryAfter)
	require.NotNil(t, resp.Remaining)
	assert.Equal(t, 0, *resp.Remaining)
}

func TestInternalRoutes_RequireToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/internal/documents/doc-1/ingest", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(http.MethodPost, "/internal/documents/doc-1/ingest", "", map[string]string{HeaderInternalToken: "wrong"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, ts.ingest.queued)
}

func TestIngest(t *testing.T) {
	ts := newTestServer(t)
	auth := map[string]string{HeaderInternalToken: "secret"}

	rec := ts.do(http.MethodPost, "/internal/documents/doc-1/ingest", "", auth)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, IngestResponse{DocumentID: "doc-1", Queued: true}, decode[IngestResponse](t, rec))

	rec = ts.do(http.MethodPost, "/internal/documents/doc-1/ingest", "", auth)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.False(t, decode[IngestResponse](t, rec).Queued)

	rec = ts.do(http.MethodPost, "/internal/documents/nope/ingest", "", auth)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDocumentStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/internal/documents/doc-1/status", "", map[string]string{HeaderInternalToken: "secret"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[DocumentStatusResponse](t, rec)
	assert.Equal(t, domain.StatusFailed, resp.Status)
	assert.Equal(t, "parse: boom", resp.Error)
}

func TestPublishEligibility(t *testing.T) {
	ts := newTestServer(t)
	ts.policy.result = policy.Result{Allowed: false, Code: policy.CodeBillingNotEntitled, Message: "plan starter requires an active subscription"}

	rec := ts.do(http.MethodGet, "/api/publish/eligibility?excludingJobId=job-3", "", tenantHeaders)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[policy.Result](t, rec)
	assert.False(t, res.Allowed)
	assert.Equal(t, policy.CodeBillingNotEntitled, res.Code)
	assert.Equal(t, "job-3", ts.policy.excluding)
}

func TestPublishJob(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/jobs/job-1/publish", "", tenantHeaders)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.policy.result = policy.Result{Allowed: false, Code: policy.CodeLimitReached}
	rec = ts.do(http.MethodPost, "/api/jobs/job-1/publish", "", tenantHeaders)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, policy.CodeLimitReached, decode[policy.Result](t, rec).Code)

	ts.policy.err = domain.ErrForbidden
	rec = ts.do(http.MethodPost, "/api/jobs/job-1/publish", "", tenantHeaders)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)

	ts.healthOK = false
	rec = ts.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "connection refused", resp.Checks["postgres"])
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodGet, "/api/search", "", tenantHeaders)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
