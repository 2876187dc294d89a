package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"cv-retrieval/internal/domain"
)

const (
	HeaderTenantID      = "X-Tenant-ID"
	HeaderActorID       = "X-Actor-ID"
	HeaderInternalToken = "X-Internal-Token"
)

// Principal is the resolved caller.
type Principal struct {
	TenantID string
	ActorID  string
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

// HeaderAuthenticator trusts identity headers set by the session layer in
// front of this service.
type HeaderAuthenticator struct{}

func (HeaderAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	p := Principal{
		TenantID: strings.TrimSpace(r.Header.Get(HeaderTenantID)),
		ActorID:  strings.TrimSpace(r.Header.Get(HeaderActorID)),
	}
	if p.TenantID == "" || p.ActorID == "" {
		return Principal{}, domain.ErrUnauthenticated
	}
	return p, nil
}

type principalKey struct{}

func principalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(principalKey{}).(Principal)
	return p
}

// authenticated rejects requests without a principal.
func (a *API) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := a.auth.Authenticate(r)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	}
}

// internalOnly admits callers presenting the shared internal token. With no
// token configured every call is rejected.
func (a *API) internalOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(HeaderInternalToken)
		if a.internalToken == "" || got == "" {
			a.writeError(w, r, domain.ErrUnauthenticated)
			return
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(a.internalToken)) != 1 {
			a.writeError(w, r, domain.ErrForbidden)
			return
		}
		next(w, r)
	}
}
