// Package blob fetches uploaded documents from their storage location.
package blob

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cv-retrieval/internal/domain"
	httpclient "cv-retrieval/pkg/http"
)

// MaxDocumentBytes caps a fetched resume.
const MaxDocumentBytes = 20 << 20

// Fetcher returns the bytes stored at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Router dispatches on the URL scheme.
type Router struct {
	byScheme map[string]Fetcher
}

func NewRouter() *Router {
	return &Router{byScheme: make(map[string]Fetcher)}
}

// Register serves the given schemes with f.
func (r *Router) Register(f Fetcher, schemes ...string) *Router {
	for _, s := range schemes {
		r.byScheme[strings.ToLower(s)] = f
	}
	return r
}

func (r *Router) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, domain.Validationf("storage url %q: %v", rawURL, err)
	}
	f, ok := r.byScheme[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, domain.Validationf("no fetcher for storage scheme %q", u.Scheme)
	}
	return f.Fetch(ctx, rawURL)
}

// HTTPFetcher downloads http(s) URLs.
type HTTPFetcher struct {
	client *httpclient.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{client: httpclient.NewClient(timeout)}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	data, err := f.client.Get(ctx, rawURL, MaxDocumentBytes)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	return data, nil
}
