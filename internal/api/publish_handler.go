package api

import (
	"net/http"

	"cv-retrieval/internal/policy"
)

// PublishEligibilityHandler evaluates the publish rules without side effects
// @Summary Publish eligibility
// @Description Evaluates whether the tenant may publish another job. Denials are 200 with allowed=false and a code.
// @Tags publish
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param X-Actor-ID header string true "Actor id"
// @Param excludingJobId query string false "Job being transitioned, left out of the published count"
// @Success 200 {object} policy.Result
// @Failure 401 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/publish/eligibility [get]
func (a *API) PublishEligibilityHandler(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	res, err := a.svc.Policy.CanPublish(r.Context(), p.TenantID, r.URL.Query().Get("excludingJobId"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PublishJobHandler publishes a draft job when the tenant is entitled to
// @Summary Publish a job
// @Description Re-evaluates the publish rules under a tenant lock and publishes the job when allowed
// @Tags publish
// @Produce json
// @Param X-Tenant-ID header string true "Tenant id"
// @Param X-Actor-ID header string true "Actor id"
// @Param id path string true "Job id"
// @Success 200 {object} policy.Result
// @Failure 401 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} policy.Result
// @Router /api/jobs/{id}/publish [post]
func (a *API) PublishJobHandler(w http.ResponseWriter, r *http.Request) {
	p := principalFrom(r.Context())
	res, err := a.svc.Policy.Publish(r.Context(), p.TenantID, r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	switch {
	case res.Code == policy.CodeNotFound:
		status = http.StatusNotFound
	case !res.Allowed:
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}
