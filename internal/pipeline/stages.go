package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/embedding"
	"cv-retrieval/internal/queue"
)

const failureWriteTimeout = 5 * time.Second

// parse fetches and extracts the document, stores its text and queues the
// chunk stage.
func (c *Coordinator) parse(ctx context.Context, job queue.Job) error {
	var p ParsePayload
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(err)
	}
	log := c.log.With(zap.String("stage", StageParse), zap.String("document_id", p.DocumentID))

	if _, err := c.store.AdvanceStatus(ctx, p.DocumentID, domain.StatusParsing); err != nil {
		return fmt.Errorf("mark parsing: %w", err)
	}

	blob, err := c.fetcher.Fetch(ctx, p.StorageURL)
	if err != nil {
		return fmt.Errorf("fetch document: %w", err)
	}
	text, err := c.extractor.Extract(ctx, blob, p.Kind)
	if err != nil {
		return err
	}

	parsed, err := c.store.SaveParsedDocument(ctx, &domain.ParsedDocument{
		ID:          uuid.NewString(),
		DocumentID:  p.DocumentID,
		Text:        text,
		ContentHash: domain.ContentHash(p.DocumentID, text),
	})
	if err != nil {
		return fmt.Errorf("save parsed document: %w", err)
	}

	if ok, err := c.store.AdvanceStatus(ctx, p.DocumentID, domain.StatusChunking); err != nil {
		return fmt.Errorf("mark chunking: %w", err)
	} else if !ok {
		log.Warn("document left PARSING while parsing, chunking anyway")
	}

	if _, err := c.enqueue(ctx, StageChunk, "chunk:"+parsed.ID, ChunkPayload{
		DocumentID:       p.DocumentID,
		ParsedDocumentID: parsed.ID,
	}); err != nil {
		return err
	}
	log.Info("document parsed", zap.String("parsed_document_id", parsed.ID), zap.Int("chars", len(text)))
	return nil
}

// chunk replaces the chunk set of a parsed document and queues one embed
// job per chunk.
func (c *Coordinator) chunk(ctx context.Context, job queue.Job) error {
	var p ChunkPayload
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(err)
	}
	log := c.log.With(zap.String("stage", StageChunk), zap.String("document_id", p.DocumentID))

	parsed, err := c.store.GetParsedDocument(ctx, p.ParsedDocumentID)
	if err != nil {
		return fmt.Errorf("load parsed document %s: %w", p.ParsedDocumentID, err)
	}

	chunks := c.chunker.Chunk(parsed.Text, parsed.ID, 0)
	next := domain.StatusEmbedding
	if len(chunks) == 0 {
		next = domain.StatusProcessed
	}
	if err := c.store.ReplaceChunks(ctx, parsed, chunks, next); err != nil {
		return fmt.Errorf("store chunks: %w", err)
	}

	model := c.embedder.Model()
	for _, ch := range chunks {
		if _, err := c.enqueue(ctx, StageEmbed, fmt.Sprintf("embed:%s:%s", ch.ID, model), EmbedPayload{
			DocumentID:       parsed.DocumentID,
			ParsedDocumentID: parsed.ID,
			ChunkID:          ch.ID,
		}); err != nil {
			return err
		}
	}
	log.Info("document chunked", zap.Int("chunks", len(chunks)))
	return nil
}

// embed embeds one chunk, then marks the document processed once every
// chunk of its parsed document has a vector.
func (c *Coordinator) embed(ctx context.Context, job queue.Job) error {
	var p EmbedPayload
	if err := job.Decode(&p); err != nil {
		return queue.Permanent(err)
	}
	log := c.log.With(zap.String("stage", StageEmbed), zap.String("chunk_id", p.ChunkID))

	res, err := c.embedder.EmbedChunk(ctx, p.ChunkID)
	if err != nil {
		return err
	}
	switch res.Outcome {
	case embedding.OutcomeSkipped:
		log.Debug("chunk already embedded")
	case embedding.OutcomeMissing:
		log.Debug("chunk no longer exists")
	}

	done, err := c.store.AllChunksEmbedded(ctx, p.ParsedDocumentID, c.embedder.Model())
	if err != nil {
		return fmt.Errorf("check completion: %w", err)
	}
	if !done {
		return nil
	}
	ok, err := c.store.AdvanceStatus(ctx, p.DocumentID, domain.StatusProcessed)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	if ok {
		log.Info("document processed", zap.String("document_id", p.DocumentID))
	}
	return nil
}
