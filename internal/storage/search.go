package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"cv-retrieval/internal/domain"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// JobOwnedBy reports whether jobID exists and belongs to tenantID.
func (db *DB) JobOwnedBy(ctx context.Context, jobID, tenantID string) (bool, error) {
	var owner string
	err := db.connection.QueryRowContext(ctx, `SELECT tenant_id FROM jobs WHERE id = $1`, jobID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load job %s: %w", jobID, err)
	}
	return owner == tenantID, nil
}

// SearchChunks returns the chunks nearest to q.Vector among documents that
// applied to a job of q.TenantID, most similar first.
func (db *DB) SearchChunks(ctx context.Context, q domain.ChunkQuery) ([]domain.ChunkHit, error) {
	query, args, err := buildChunkSearch(q).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	rows, err := db.connection.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search chunks: %w", err)
	}
	defer rows.Close()

	var hits []domain.ChunkHit
	for rows.Next() {
		var h domain.ChunkHit
		if err := rows.Scan(&h.ChunkID, &h.DocumentID, &h.CandidateID, &h.CandidateName,
			&h.Section, &h.Text, &h.Similarity); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// buildChunkSearch assembles the similarity query. The tenant boundary is
// always the first predicate; every user value is a bound parameter.
func buildChunkSearch(q domain.ChunkQuery) sq.SelectBuilder {
	vec := pgvector.NewVector(q.Vector)

	b := psql.
		Select("c.id", "d.id", "cand.id", "cand.name", "c.section", "c.text").
		Column(sq.Alias(sq.Expr("1 - (e.embedding <=> ?)", vec), "similarity")).
		From("document_chunks c").
		Join("parsed_documents p ON p.id = c.parsed_document_id").
		Join("documents d ON d.id = p.document_id").
		Join("candidates cand ON cand.id = d.candidate_id").
		Join("embeddings e ON e.chunk_id = c.id").
		Where(sq.Expr(`EXISTS (SELECT 1 FROM applications a JOIN jobs j ON j.id = a.job_id
			WHERE a.document_id = d.id AND j.tenant_id = ?)`, q.TenantID))

	if q.JobID != "" {
		b = b.Where(sq.Expr(`EXISTS (SELECT 1 FROM applications a
			WHERE a.document_id = d.id AND a.job_id = ?)`, q.JobID))
	}

	b = b.Where(sq.Eq{"e.model_version": q.ModelVersion})

	f := q.Filters
	if loc := strings.TrimSpace(f.Location); loc != "" {
		b = b.Where(sq.ILike{"cand.location": "%" + escapeLike(loc) + "%"})
	}
	if f.MinExperience != nil {
		b = b.Where(sq.GtOrEq{"cand.years_experience": *f.MinExperience})
	}
	if patterns := skillPatterns(f.Skills); len(patterns) > 0 {
		b = b.Where(sq.Expr(`EXISTS (SELECT 1 FROM unnest(cand.skills) s WHERE s ILIKE ANY(?))`,
			pq.Array(patterns)))
	}

	b = b.OrderByClause("e.embedding <=> ?", vec)
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	if q.Offset > 0 {
		b = b.Offset(uint64(q.Offset))
	}
	return b
}

func skillPatterns(skills []string) []string {
	var out []string
	for _, s := range skills {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, "%"+escapeLike(s)+"%")
		}
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike makes s match literally inside a LIKE pattern.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
