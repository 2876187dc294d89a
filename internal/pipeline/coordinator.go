// Package pipeline drives resumes through parse, chunk and embed. Each
// stage is a queued job that enqueues its successor only after its own
// writes have committed.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cv-retrieval/internal/chunker"
	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/embedding"
	"cv-retrieval/internal/logger"
	"cv-retrieval/internal/queue"
)

// Stage names double as queue job stages.
const (
	StageParse = "parse"
	StageChunk = "chunk"
	StageEmbed = "embed"
)

// Store is the persistence the pipeline needs.
type Store interface {
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// AdvanceStatus moves the document to status if the transition is allowed
	// from its current status. Entering PARSING clears any failure.
	AdvanceStatus(ctx context.Context, documentID string, to domain.ProcessingStatus) (bool, error)

	// MarkFailed records reason and moves an in-flight document to FAILED.
	MarkFailed(ctx context.Context, documentID, reason string) error

	// SaveParsedDocument upserts by document id and deletes the previous
	// chunks in the same transaction. It returns the stored row.
	SaveParsedDocument(ctx context.Context, p *domain.ParsedDocument) (*domain.ParsedDocument, error)
	GetParsedDocument(ctx context.Context, id string) (*domain.ParsedDocument, error)

	// ReplaceChunks swaps the chunk set of a parsed document and moves the
	// owning document to next, all in one transaction.
	ReplaceChunks(ctx context.Context, parsed *domain.ParsedDocument, chunks []domain.Chunk, next domain.ProcessingStatus) error

	// AllChunksEmbedded reports whether every chunk of the parsed document
	// has an embedding under model.
	AllChunksEmbedded(ctx context.Context, parsedDocumentID, model string) (bool, error)
}

// Fetcher returns document bytes from storage.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Extractor turns a document blob into normalized text.
type Extractor interface {
	Extract(ctx context.Context, blob []byte, kind domain.DocumentKind) (string, error)
}

// Embedder embeds one chunk idempotently.
type Embedder interface {
	EmbedChunk(ctx context.Context, chunkID string) (embedding.ChunkResult, error)
	Model() string
}

// ParsePayload is the input of the parse stage.
type ParsePayload struct {
	DocumentID string              `json:"document_id"`
	StorageURL string              `json:"storage_url"`
	Kind       domain.DocumentKind `json:"kind"`
}

// ChunkPayload is the input of the chunk stage.
type ChunkPayload struct {
	DocumentID       string `json:"document_id"`
	ParsedDocumentID string `json:"parsed_document_id"`
}

// EmbedPayload is the input of the embed stage.
type EmbedPayload struct {
	DocumentID       string `json:"document_id"`
	ParsedDocumentID string `json:"parsed_document_id"`
	ChunkID          string `json:"chunk_id"`
}

type stageFunc func(ctx context.Context, job queue.Job) error

// Coordinator owns the stage dispatch table.
type Coordinator struct {
	queue     queue.Queue
	store     Store
	fetcher   Fetcher
	extractor Extractor
	chunker   *chunker.Chunker
	embedder  Embedder
	policies  map[string]queue.RetryPolicy
	log       *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRetryPolicy overrides the retry policy of one stage.
func WithRetryPolicy(stage string, p queue.RetryPolicy) Option {
	return func(c *Coordinator) { c.policies[stage] = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.log = logger.OrNop(l).Named("pipeline") }
}

func NewCoordinator(q queue.Queue, store Store, fetcher Fetcher, extractor Extractor,
	ch *chunker.Chunker, embedder Embedder, opts ...Option) *Coordinator {
	c := &Coordinator{
		queue:     q,
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		chunker:   ch,
		embedder:  embedder,
		policies: map[string]queue.RetryPolicy{
			StageParse: queue.DefaultRetryPolicy,
			StageChunk: queue.DefaultRetryPolicy,
			StageEmbed: queue.DefaultRetryPolicy,
		},
		log: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register installs every stage handler on the runner.
func (c *Coordinator) Register(r *queue.Runner) {
	for stage, fn := range c.stages() {
		r.Handle(stage, c.guard(stage, fn), c.policies[stage])
	}
}

func (c *Coordinator) stages() map[string]stageFunc {
	return map[string]stageFunc{
		StageParse: c.parse,
		StageChunk: c.chunk,
		StageEmbed: c.embed,
	}
}

// Ingest enqueues the parse stage for a document. It reports false when a
// parse of the document is already queued or running.
func (c *Coordinator) Ingest(ctx context.Context, documentID string) (bool, error) {
	doc, err := c.store.GetDocument(ctx, documentID)
	if err != nil {
		return false, err
	}
	added, err := EnqueueParse(ctx, c.queue, doc)
	if err == nil && !added {
		c.log.Debug("stage already queued", zap.String("stage", StageParse), zap.String("document_id", doc.ID))
	}
	return added, err
}

// EnqueueParse queues the first stage for doc on q without a coordinator,
// for tools that only feed the queue.
func EnqueueParse(ctx context.Context, q queue.Queue, doc *domain.Document) (bool, error) {
	job, err := queue.NewJob(StageParse, "parse:"+doc.ID, ParsePayload{
		DocumentID: doc.ID,
		StorageURL: doc.StorageURL,
		Kind:       doc.Kind,
	})
	if err != nil {
		return false, err
	}
	added, err := q.Enqueue(ctx, job)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", StageParse, err)
	}
	return added, nil
}

// Status returns the document with its current processing status.
func (c *Coordinator) Status(ctx context.Context, documentID string) (*domain.Document, error) {
	return c.store.GetDocument(ctx, documentID)
}

func (c *Coordinator) enqueue(ctx context.Context, stage, key string, payload any) (bool, error) {
	job, err := queue.NewJob(stage, key, payload)
	if err != nil {
		return false, err
	}
	added, err := c.queue.Enqueue(ctx, job)
	if err != nil {
		return false, fmt.Errorf("enqueue %s: %w", stage, err)
	}
	if !added {
		c.log.Debug("stage already queued", zap.String("stage", stage), zap.String("key", key))
	}
	return added, nil
}

// guard records any stage failure on the document before handing the error
// back to the runner. Input and authorization errors are not retried.
func (c *Coordinator) guard(stage string, fn stageFunc) queue.Handler {
	return func(ctx context.Context, job queue.Job) error {
		err := fn(ctx, job)
		if err == nil {
			return nil
		}

		var ref struct {
			DocumentID string `json:"document_id"`
		}
		if decodeErr := job.Decode(&ref); decodeErr == nil && ref.DocumentID != "" {
			// Best effort: the failure flag must not mask the stage error.
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
			if markErr := c.store.MarkFailed(fctx, ref.DocumentID, fmt.Sprintf("%s: %v", stage, err)); markErr != nil {
				c.log.Warn("could not record processing failure",
					zap.String("document_id", ref.DocumentID), zap.Error(markErr))
			}
			cancel()
		}

		if isPermanent(err) {
			return queue.Permanent(err)
		}
		return err
	}
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrUnsupportedFormat) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrNotFound)
}
