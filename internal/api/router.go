package api

import (
	"net/http"
	"time"

	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
)

type RouterOption func(*http.ServeMux)

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) RouterOption {
	return func(mux *http.ServeMux) { mux.Handle("GET /metrics", h) }
}

func NewRouter(a *API, opts ...RouterOption) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/swagger/", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
	mux.HandleFunc("GET /health", a.HealthHandler)

	// Tenant API
	mux.HandleFunc("POST /api/search", a.authenticated(a.SearchHandler))
	mux.HandleFunc("GET /api/publish/eligibility", a.authenticated(a.PublishEligibilityHandler))
	mux.HandleFunc("POST /api/jobs/{id}/publish", a.authenticated(a.PublishJobHandler))

	// Service-to-service
	mux.HandleFunc("POST /internal/documents/{id}/ingest", a.internalOnly(a.IngestHandler))
	mux.HandleFunc("GET /internal/documents/{id}/status", a.internalOnly(a.DocumentStatusHandler))

	for _, opt := range opts {
		opt(mux)
	}
	return a.recoverer(a.accessLog(mux))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (a *API) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				a.log.Error("handler panic", zap.Any("panic", v), zap.String("path", r.URL.Path), zap.Stack("stack"))
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
