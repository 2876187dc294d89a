package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"cv-retrieval/internal/config"
	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/logger"
	"cv-retrieval/internal/pipeline"
	"cv-retrieval/internal/queue"
	"cv-retrieval/internal/storage"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "reindex",
		Usage: "Re-queue resumes for parsing, chunking and embedding",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "List the documents that would be queued without queueing them",
				Value: true,
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Max number of documents to queue in one run (0 for all)",
				Value: 200,
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Comma-separated processing statuses to select",
				Value: "FAILED,UNPROCESSED,PARSING,CHUNKING,EMBEDDING",
			},
			&cli.DurationFlag{
				Name:  "stale-after",
				Usage: "Only select PARSING, CHUNKING or EMBEDDING documents untouched for this long",
				Value: 30 * time.Minute,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Action: reindex,
	}
}

func reindex(c *cli.Context) error {
	statuses, err := parseStatuses(c.String("status"))
	if err != nil {
		return err
	}
	if c.Int("limit") < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	if c.Duration("stale-after") < 0 {
		return fmt.Errorf("stale-after must not be negative")
	}

	cfg := config.Load()
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	log := logger.New(c.String("log-level"))
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(c.Context, 5*time.Minute)
	defer cancel()

	db, err := storage.NewDB(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer db.Close()

	docs, err := db.ListDocumentsByStatus(ctx, statuses, c.Int("limit"))
	if err != nil {
		return fmt.Errorf("list documents: %w", err)
	}
	docs = recoverable(docs, time.Now(), c.Duration("stale-after"))
	log.Info("documents selected", zap.Int("count", len(docs)), zap.Strings("status", statusNames(statuses)))

	if c.Bool("dry-run") {
		for _, d := range docs {
			fmt.Fprintf(c.App.Writer, "%s\t%s\t%s\n", d.ID, d.Status, d.ProcessingError)
		}
		return nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	defer func() { _ = rdb.Close() }()
	q := queue.NewRedisQueue(rdb, "pipeline", queue.DefaultDedupTTL, log)

	queued, skipped := 0, 0
	for _, d := range docs {
		added, err := pipeline.EnqueueParse(ctx, q, d)
		if err != nil {
			return fmt.Errorf("document %s: %w", d.ID, err)
		}
		if added {
			queued++
		} else {
			skipped++
		}
	}
	log.Info("reindex queued", zap.Int("queued", queued), zap.Int("already_pending", skipped))
	return nil
}

func parseStatuses(raw string) ([]domain.ProcessingStatus, error) {
	known := make(map[domain.ProcessingStatus]bool, len(domain.AllStatuses))
	for _, s := range domain.AllStatuses {
		known[s] = true
	}

	var out []domain.ProcessingStatus
	for _, part := range strings.Split(raw, ",") {
		s := domain.ProcessingStatus(strings.ToUpper(strings.TrimSpace(part)))
		if s == "" {
			continue
		}
		if !known[s] {
			return nil, fmt.Errorf("unknown status %q", part)
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("at least one status is required")
	}
	return out, nil
}

// recoverable drops in-flight documents that changed within staleAfter;
// their jobs may still be running.
func recoverable(docs []*domain.Document, now time.Time, staleAfter time.Duration) []*domain.Document {
	out := docs[:0:0]
	for _, d := range docs {
		switch d.Status {
		case domain.StatusParsing, domain.StatusChunking, domain.StatusEmbedding:
			if now.Sub(d.UpdatedAt) < staleAfter {
				continue
			}
		}
		out = append(out, d)
	}
	return out
}

func statusNames(statuses []domain.ProcessingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
