// Package api exposes search, ingestion and publish policy over HTTP.
package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/logger"
	"cv-retrieval/internal/policy"
	"cv-retrieval/internal/retrieval"
)

// Searcher runs tenant-scoped semantic searches.
type Searcher interface {
	Search(ctx context.Context, req retrieval.Request) (*retrieval.Response, error)
}

// Ingestor starts and reports document processing.
type Ingestor interface {
	Ingest(ctx context.Context, documentID string) (bool, error)
	Status(ctx context.Context, documentID string) (*domain.Document, error)
}

// PublishPolicy gates the draft to published transition.
type PublishPolicy interface {
	CanPublish(ctx context.Context, tenantID, excludingJobID string) (policy.Result, error)
	Publish(ctx context.Context, tenantID, jobID string) (policy.Result, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Services struct {
	Search   Searcher
	Pipeline Ingestor
	Policy   PublishPolicy

	// Health checks keyed by dependency name.
	Health map[string]HealthCheck
}

type API struct {
	svc           Services
	auth          Authenticator
	internalToken string
	log           *zap.Logger
}

func NewAPI(svc Services, auth Authenticator, internalToken string, log *zap.Logger) *API {
	if auth == nil {
		auth = HeaderAuthenticator{}
	}
	return &API{
		svc:           svc,
		auth:          auth,
		internalToken: internalToken,
		log:           logger.OrNop(log).Named("api"),
	}
}

// HealthHandler pings every registered dependency
// @Summary Health check
// @Description Reports whether Postgres and Redis are reachable
// @Tags system
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy", Checks: map[string]string{}}
	status := http.StatusOK
	for name, check := range a.svc.Health {
		if err := check(r.Context()); err != nil {
			a.log.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
			resp.Checks[name] = err.Error()
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
