package api

import (
	"encoding/json"
	"net/http"

	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/retrieval"
)

const maxSearchBody = 64 << 10

// SearchRequest is the body of POST /api/search.
type SearchRequest struct {
	Query   string                `json:"query"`
	JobID   string                `json:"jobId,omitempty"`
	Filters *domain.SearchFilters `json:"filters,omitempty"`
	Limit   *int                  `json:"limit,omitempty"`
	Offset  *int                  `json:"offset,omitempty"`
}

// SearchHandler runs a semantic candidate search for the caller's tenant
// @Summary Semantic candidate search
// @Description Ranks the tenant's applicants by resume similarity to the query
// @Tags search
// @Accept json
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param X-Actor-ID header string true "Actor id"
// @Param request body SearchRequest true "Search request"
// @Success 200 {object} retrieval.Response
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/search [post]
func (a *API) SearchHandler(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())

	var body SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody)).Decode(&body); err != nil {
		a.writeError(w, r, domain.Validationf("invalid JSON body"))
		return
	}

	req := retrieval.Request{
		Query:    body.Query,
		TenantID: p.TenantID,
		ActorID:  p.ActorID,
		JobID:    body.JobID,
	}
	if body.Filters != nil {
		req.Filters = *body.Filters
	}
	if body.Limit != nil {
		if *body.Limit < 1 {
			a.writeError(w, r, domain.Validationf("limit must be between 1 and %d", retrieval.MaxLimit))
			return
		}
		req.Limit = *body.Limit
	}
	if body.Offset != nil {
		req.Offset = *body.Offset
	}

	resp, err := a.svc.Search.Search(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if q := resp.Quota; q.Allowed && q.Limit > 0 {
		setQuotaHeaders(w, q.Limit, q.Remaining, q.ResetAt.Unix())
	}
	writeJSON(w, http.StatusOK, resp)
}
