package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"cv-retrieval/internal/domain"
)

func (db *DB) GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error) {
	c := &domain.Chunk{}
	err := db.connection.QueryRowContext(ctx, `
		SELECT id, parsed_document_id, section, section_index, position, text, token_count, content_hash
		FROM document_chunks WHERE id = $1`, chunkID,
	).Scan(&c.ID, &c.ParsedDocumentID, &c.Section, &c.SectionIndex, &c.Position, &c.Text,
		&c.TokenCount, &c.ContentHash)
	if err != nil {
		return nil, notFound(err, "chunk", chunkID)
	}
	return c, nil
}

func (db *DB) HasEmbedding(ctx context.Context, chunkID, model string) (bool, error) {
	var exists bool
	err := db.connection.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM embeddings WHERE chunk_id = $1 AND model_version = $2)`,
		chunkID, model).Scan(&exists)
	return exists, err
}

// InsertEmbedding stores a new vector. It reports false when the chunk
// already has one for the model.
func (db *DB) InsertEmbedding(ctx context.Context, e *domain.Embedding) (bool, error) {
	res, err := db.connection.ExecContext(ctx, `
		INSERT INTO embeddings (id, chunk_id, model_version, content_hash, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chunk_id, model_version) DO NOTHING`,
		e.ID, e.ChunkID, e.ModelVersion, e.ContentHash, pgvector.NewVector(e.Vector), e.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CloneEmbedding copies the vector of sourceID onto chunkID without moving
// it through the application. It reports false when the source is gone,
// the chunk is gone, or the chunk already has a vector for that model.
func (db *DB) CloneEmbedding(ctx context.Context, sourceID, chunkID, newID string) (bool, error) {
	res, err := db.connection.ExecContext(ctx, `
		INSERT INTO embeddings (id, chunk_id, model_version, content_hash, embedding)
		SELECT $3, c.id, src.model_version, src.content_hash, src.embedding
		FROM embeddings src
		JOIN document_chunks c ON c.id = $2
		WHERE src.id = $1
		ON CONFLICT (chunk_id, model_version) DO NOTHING`,
		sourceID, chunkID, newID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FindEmbeddingByHash returns the oldest embedding of identical text under
// model.
func (db *DB) FindEmbeddingByHash(ctx context.Context, contentHash, model string) (string, bool, error) {
	var id string
	err := db.connection.QueryRowContext(ctx, `
		SELECT id FROM embeddings
		WHERE content_hash = $1 AND model_version = $2
		ORDER BY created_at LIMIT 1`, contentHash, model).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lookup embedding by hash: %w", err)
	}
	return id, true, nil
}
