package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"cv-retrieval/internal/domain"
)

const documentColumns = `id, candidate_id, storage_url, kind, processing_status, processing_error,
	processed_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	d := &domain.Document{}
	var processedAt sql.NullTime
	err := row.Scan(&d.ID, &d.CandidateID, &d.StorageURL, &d.Kind, &d.Status, &d.ProcessingError,
		&processedAt, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if processedAt.Valid {
		t := processedAt.Time
		d.ProcessedAt = &t
	}
	return d, nil
}

func (db *DB) GetDocument(ctx context.Context, id string) (*domain.Document, error) {
	row := db.connection.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		return nil, notFound(err, "document", id)
	}
	return d, nil
}

// ListDocumentsByStatus returns up to limit documents in any of statuses,
// oldest first. A limit of zero means no limit.
func (db *DB) ListDocumentsByStatus(ctx context.Context, statuses []domain.ProcessingStatus, limit int) ([]*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
		WHERE processing_status = ANY($1) ORDER BY created_at`
	args := []any{pq.Array(statusStrings(statuses))}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := db.connection.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// AdvanceStatus moves a document to status when its current status allows
// it. Entering PARSING clears the failure and processed_at; entering
// PROCESSED stamps processed_at.
func (db *DB) AdvanceStatus(ctx context.Context, documentID string, to domain.ProcessingStatus) (bool, error) {
	return advanceStatus(ctx, db.connection, documentID, to)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func advanceStatus(ctx context.Context, ex execer, documentID string, to domain.ProcessingStatus) (bool, error) {
	if !to.Valid() {
		return false, domain.Validationf("unknown processing status %q", to)
	}
	query := `UPDATE documents
		SET processing_status = $2,
			processing_error = CASE WHEN $2 = 'PARSING' THEN '' ELSE processing_error END,
			processed_at = CASE
				WHEN $2 = 'PROCESSED' THEN NOW()
				WHEN $2 = 'PARSING' THEN NULL
				ELSE processed_at END,
			updated_at = NOW()
		WHERE id = $1 AND processing_status = ANY($3)`
	res, err := ex.ExecContext(ctx, query, documentID, string(to), pq.Array(statusStrings(domain.AllowedFrom(to))))
	if err != nil {
		return false, fmt.Errorf("update document %s status: %w", documentID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFailed records reason and moves an in-flight document to FAILED. A
// document that is not in flight keeps its status but still gets the reason.
func (db *DB) MarkFailed(ctx context.Context, documentID, reason string) error {
	query := `UPDATE documents
		SET processing_status = CASE WHEN processing_status = ANY($3) THEN $2 ELSE processing_status END,
			processing_error = $4,
			updated_at = NOW()
		WHERE id = $1`
	_, err := db.connection.ExecContext(ctx, query, documentID, string(domain.StatusFailed),
		pq.Array(statusStrings(domain.AllowedFrom(domain.StatusFailed))), reason)
	if err != nil {
		return fmt.Errorf("mark document %s failed: %w", documentID, err)
	}
	return nil
}

// SaveParsedDocument upserts the parsed text of a document and drops the
// chunks of the previous parse in the same transaction.
func (db *DB) SaveParsedDocument(ctx context.Context, p *domain.ParsedDocument) (*domain.ParsedDocument, error) {
	out := *p
	err := db.withTx(ctx, nil, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO parsed_documents (id, document_id, text, content_hash)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (document_id) DO UPDATE
				SET text = EXCLUDED.text,
					content_hash = EXCLUDED.content_hash,
					updated_at = NOW()
			RETURNING id, created_at, updated_at`,
			p.ID, p.DocumentID, p.Text, p.ContentHash,
		).Scan(&out.ID, &out.CreatedAt, &out.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert parsed document: %w", err)
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE parsed_document_id = $1`, out.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (db *DB) GetParsedDocument(ctx context.Context, id string) (*domain.ParsedDocument, error) {
	p := &domain.ParsedDocument{}
	err := db.connection.QueryRowContext(ctx, `
		SELECT id, document_id, text, content_hash, created_at, updated_at
		FROM parsed_documents WHERE id = $1`, id,
	).Scan(&p.ID, &p.DocumentID, &p.Text, &p.ContentHash, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "parsed document", id)
	}
	return p, nil
}

// ReplaceChunks swaps the chunk set of parsed and advances its document to
// next in one transaction.
func (db *DB) ReplaceChunks(ctx context.Context, parsed *domain.ParsedDocument, chunks []domain.Chunk, next domain.ProcessingStatus) error {
	return db.withTx(ctx, nil, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM document_chunks WHERE parsed_document_id = $1`, parsed.ID); err != nil {
			return fmt.Errorf("delete previous chunks: %w", err)
		}

		if len(chunks) > 0 {
			stmt, err := tx.PrepareContext(ctx, pq.CopyIn("document_chunks",
				"id", "parsed_document_id", "section", "section_index", "position",
				"text", "token_count", "content_hash"))
			if err != nil {
				return fmt.Errorf("prepare chunk copy: %w", err)
			}
			for _, c := range chunks {
				if _, err := stmt.ExecContext(ctx, c.ID, parsed.ID, string(c.Section), c.SectionIndex,
					c.Position, c.Text, c.TokenCount, c.ContentHash); err != nil {
					_ = stmt.Close()
					return fmt.Errorf("copy chunk %s: %w", c.ID, err)
				}
			}
			if _, err := stmt.ExecContext(ctx); err != nil {
				_ = stmt.Close()
				return fmt.Errorf("flush chunk copy: %w", err)
			}
			if err := stmt.Close(); err != nil {
				return err
			}
		}

		_, err := advanceStatus(ctx, tx, parsed.DocumentID, next)
		return err
	})
}

// AllChunksEmbedded reports whether the parsed document has at least one
// chunk and every chunk has an embedding under model.
func (db *DB) AllChunksEmbedded(ctx context.Context, parsedDocumentID, model string) (bool, error) {
	var total, missing int
	err := db.connection.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE NOT EXISTS (
		           SELECT 1 FROM embeddings e
		           WHERE e.chunk_id = c.id AND e.model_version = $2))
		FROM document_chunks c
		WHERE c.parsed_document_id = $1`, parsedDocumentID, model,
	).Scan(&total, &missing)
	if err != nil {
		return false, err
	}
	return total > 0 && missing == 0, nil
}

func statusStrings(statuses []domain.ProcessingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
