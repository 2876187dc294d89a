package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"cv-retrieval/internal/domain"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`

	// Rate limit details, set on 429 only.
	RetryAfter int   `json:"retryAfter,omitempty"`
	Remaining  *int  `json:"remaining,omitempty"`
	ResetAt    int64 `json:"resetAt,omitempty"`
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *domain.RateLimitedError
	switch {
	case errors.As(err, &rl):
		retry := int(math.Ceil(rl.RetryAfter.Seconds()))
		if retry < 1 {
			retry = 1
		}
		remaining := rl.Remaining
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		setQuotaHeaders(w, rl.Limit, rl.Remaining, rl.ResetAt.Unix())
		writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error:      "rate_limited",
			Message:    "too many requests",
			RetryAfter: retry,
			Remaining:  &remaining,
			ResetAt:    rl.ResetAt.Unix(),
		})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_error", Message: err.Error()})
	case errors.Is(err, domain.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "authentication required"})
	case errors.Is(err, domain.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "forbidden", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "not_found", Message: err.Error()})
	default:
		a.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"})
	}
}

func setQuotaHeaders(w http.ResponseWriter, limit, remaining int, resetUnix int64) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetUnix, 10))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
