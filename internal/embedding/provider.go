package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/logger"
	httpclient "cv-retrieval/pkg/http"
)

// Provider turns text into a fixed-dimension vector.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
	Dimensions() int
}

// HTTPConfig configures an OpenAI-compatible embeddings endpoint.
type HTTPConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration

	// RequestsPerSecond throttles provider calls; zero disables throttling.
	RequestsPerSecond float64
}

// HTTPProvider calls {Endpoint}/embeddings.
type HTTPProvider struct {
	url     string
	apiKey  string
	model   string
	dims    int
	client  *httpclient.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewHTTPProvider(cfg HTTPConfig, log *zap.Logger) (*HTTPProvider, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("embedding: missing endpoint")
	}
	if cfg.Model == "" {
		return nil, errors.New("embedding: model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.New("embedding: dimensions must be positive")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	p := &HTTPProvider{
		url:    strings.TrimRight(cfg.Endpoint, "/") + "/embeddings",
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		dims:   cfg.Dimensions,
		client: httpclient.NewClient(timeout),
		log:    logger.OrNop(log).Named("embedding_provider"),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return p, nil
}

func (p *HTTPProvider) Model() string   { return p.model }
func (p *HTTPProvider) Dimensions() int { return p.dims }

// Embed returns the vector for text. Transport failures, non-2xx answers,
// empty data and wrong dimensions all wrap ErrEmbeddingProvider.
func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: throttle: %v", domain.ErrEmbeddingProvider, err)
		}
	}

	reqBody := map[string]any{
		"model": p.model,
		"input": []string{text},
	}
	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	var parsed struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}

	start := time.Now()
	if err := p.client.PostJSON(ctx, p.url, headers, reqBody, &parsed); err != nil {
		p.log.Warn("embedding request failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingProvider, err)
	}

	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: no embedding returned", domain.ErrEmbeddingProvider)
	}
	vec := parsed.Data[0].Embedding
	if len(vec) != p.dims {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", domain.ErrEmbeddingProvider, len(vec), p.dims)
	}
	return vec, nil
}
