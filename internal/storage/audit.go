package storage

import (
	"context"
	"database/sql"
	"fmt"

	"cv-retrieval/internal/domain"
)

// InsertAuditEvents writes events in one transaction.
func (db *DB) InsertAuditEvents(ctx context.Context, events []domain.AuditEvent) error {
	if len(events) == 0 {
		return nil
	}
	return db.withTx(ctx, nil, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO audit_log (id, action, actor_id, tenant_id, job_id, query, candidate_id, created_at)
			VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range events {
			if _, err := stmt.ExecContext(ctx, e.ID, e.Action, e.ActorID, e.TenantID,
				e.JobID, e.Query, e.CandidateID, e.CreatedAt); err != nil {
				return fmt.Errorf("insert audit event %s: %w", e.ID, err)
			}
		}
		return nil
	})
}
