package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	_ "cv-retrieval/docs" // Swagger docs
	"cv-retrieval/internal/api"
	"cv-retrieval/internal/audit"
	"cv-retrieval/internal/blob"
	"cv-retrieval/internal/cache"
	"cv-retrieval/internal/chunker"
	"cv-retrieval/internal/config"
	"cv-retrieval/internal/cv"
	"cv-retrieval/internal/embedding"
	"cv-retrieval/internal/logger"
	"cv-retrieval/internal/metrics"
	"cv-retrieval/internal/pipeline"
	"cv-retrieval/internal/policy"
	"cv-retrieval/internal/queue"
	"cv-retrieval/internal/ratelimit"
	"cv-retrieval/internal/retrieval"
	"cv-retrieval/internal/storage"
)

// @title CV Retrieval API
// @version 1.0
// @description Tenant-scoped semantic candidate search, resume ingestion and publish eligibility.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @BasePath /

const (
	queueName    = "pipeline"
	jobTimeout   = 5 * time.Minute
	shutdownHTTP = 10 * time.Second
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("connecting to database")
	db, err := storage.NewDB(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer func() { _ = rdb.Close() }()
	if err := rdb.Ping(ctx).Err(); err != nil {
		// Caches and the limiter degrade without Redis; the queue does not.
		log.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	sink := metrics.NewSink("cv-retrieval", true)
	kv := cache.NewJSON(rdb, log)

	provider, err := embedding.NewHTTPProvider(embedding.HTTPConfig{
		Endpoint:          cfg.EmbeddingEndpoint,
		APIKey:            cfg.EmbeddingAPIKey,
		Model:             cfg.EmbeddingModel,
		Dimensions:        cfg.EmbeddingDimensions,
		Timeout:           cfg.EmbeddingTimeout,
		RequestsPerSecond: cfg.EmbeddingRPS,
	}, log)
	if err != nil {
		return err
	}
	generator := embedding.NewGenerator(provider, embedding.NewCache(kv, cfg.EmbeddingCacheTTL), db, log,
		embedding.WithMetrics(sink))

	fetcher, err := newFetcher(cfg)
	if err != nil {
		return err
	}

	exp := queue.RetryPolicy{MaxAttempts: cfg.StageMaxAttempts, BaseDelay: cfg.StageBaseDelay, Backoff: queue.BackoffExponential}
	lin := queue.RetryPolicy{MaxAttempts: cfg.StageMaxAttempts, BaseDelay: cfg.StageBaseDelay, Backoff: queue.BackoffLinear}

	// A lease covers one attempt plus the longest wait before it.
	visibility := jobTimeout + max(exp.Delay(cfg.StageMaxAttempts), lin.Delay(cfg.StageMaxAttempts)) + time.Minute
	q := newQueue(cfg, rdb, visibility, log)
	runner, err := queue.NewRunner(q,
		queue.WithPoolSize(cfg.WorkerPoolSize),
		queue.WithJobTimeout(jobTimeout),
		queue.WithShutdownGrace(cfg.ShutdownGrace),
		queue.WithRunnerMetrics(sink),
		queue.WithRunnerLogger(log))
	if err != nil {
		return err
	}

	coordinator := pipeline.NewCoordinator(q, db, fetcher, cv.NewParser(cfg.ExtractionTimeout, log), chunker.New(), generator,
		pipeline.WithLogger(log),
		pipeline.WithRetryPolicy(pipeline.StageParse, exp),
		pipeline.WithRetryPolicy(pipeline.StageChunk, exp),
		pipeline.WithRetryPolicy(pipeline.StageEmbed, lin))
	coordinator.Register(runner)

	search := retrieval.NewService(
		retrieval.NewEngine(db, generator, log, retrieval.WithRelevanceFloor(cfg.RelevanceFloor)),
		log,
		retrieval.WithResultCache(retrieval.NewResultCache(kv, cfg.SearchCacheTTL)),
		retrieval.WithRateLimit(ratelimit.New(rdb, log, ratelimit.WithMetrics(sink)), cfg.SearchRateLimit, cfg.SearchRateWindow),
		retrieval.WithAudit(audit.New(db, log)),
		retrieval.WithMetrics(sink),
	)

	apiSrv := api.NewAPI(api.Services{
		Search:   search,
		Pipeline: coordinator,
		Policy:   policy.NewEngine(db, policy.DefaultRules(), log),
		Health: map[string]api.HealthCheck{
			"postgres": db.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	}, api.HeaderAuthenticator{}, cfg.InternalToken, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewRouter(apiSrv, api.WithMetricsHandler(sink.Handler())),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runner.Run(gctx)
	})
	g.Go(func() error {
		log.Info("API server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownHTTP)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("server shutdown", zap.Error(err))
		}
		return nil
	})

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}

func newQueue(cfg *config.Config, rdb *redis.Client, visibility time.Duration, log *zap.Logger) queue.Queue {
	if cfg.QueueBackend == "memory" {
		log.Warn("using in-process job queue, jobs are lost on restart")
		return queue.NewMemoryQueue()
	}
	return queue.NewRedisQueue(rdb, queueName, queue.DefaultDedupTTL, log, queue.WithVisibilityTimeout(visibility))
}

func newFetcher(cfg *config.Config) (*blob.Router, error) {
	router := blob.NewRouter().Register(blob.NewHTTPFetcher(cfg.ExtractionTimeout), "http", "https")
	if cfg.MinioEndpoint == "" {
		return router, nil
	}
	m, err := blob.NewMinioFetcher(blob.MinioConfig{
		Endpoint:        cfg.MinioEndpoint,
		AccessKeyID:     cfg.MinioAccessKey,
		SecretAccessKey: cfg.MinioSecretKey,
		UseSSL:          cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: %w", err)
	}
	return router.Register(m, "s3"), nil
}
