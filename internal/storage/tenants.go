package storage

import (
	"context"
	"database/sql"
	"fmt"

	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/policy"
)

const tenantColumns = `id, name, plan, billing_status, verification_status, suspended, publish_limit`

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	var limit sql.NullInt64
	if err := row.Scan(&t.ID, &t.Name, &t.Plan, &t.BillingStatus, &t.VerificationStatus,
		&t.Suspended, &limit); err != nil {
		return nil, err
	}
	if limit.Valid {
		v := int(limit.Int64)
		t.PublishLimit = &v
	}
	return t, nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func countPublished(ctx context.Context, q queryer, tenantID, excludingJobID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM jobs
		WHERE tenant_id = $1 AND status = 'PUBLISHED' AND id <> $2`,
		tenantID, excludingJobID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count published jobs: %w", err)
	}
	return n, nil
}

// Snapshot reads the tenant and its published count in one read-only
// repeatable-read transaction.
func (db *DB) Snapshot(ctx context.Context, tenantID, excludingJobID string) (*domain.Tenant, int, error) {
	var (
		tenant *domain.Tenant
		count  int
	)
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := db.withTx(ctx, opts, func(tx *sql.Tx) error {
		var err error
		tenant, err = scanTenant(tx.QueryRowContext(ctx,
			`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, tenantID))
		if err != nil {
			return notFound(err, "tenant", tenantID)
		}
		count, err = countPublished(ctx, tx, tenantID, excludingJobID)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return tenant, count, nil
}

// WithTenantLock runs fn in a transaction whose first tenant read takes a
// row lock, so concurrent publishes for one tenant run one at a time.
func (db *DB) WithTenantLock(ctx context.Context, tenantID string, fn func(ctx context.Context, tx policy.TenantTx) error) error {
	return db.withTx(ctx, nil, func(tx *sql.Tx) error {
		return fn(ctx, &tenantTx{tx: tx, tenantID: tenantID})
	})
}

type tenantTx struct {
	tx       *sql.Tx
	tenantID string
}

func (t *tenantTx) Tenant(ctx context.Context) (*domain.Tenant, error) {
	tenant, err := scanTenant(t.tx.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1 FOR UPDATE`, t.tenantID))
	if err != nil {
		return nil, notFound(err, "tenant", t.tenantID)
	}
	return tenant, nil
}

func (t *tenantTx) Job(ctx context.Context, jobID string) (*domain.Job, error) {
	j := &domain.Job{}
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, tenant_id, title, status FROM jobs WHERE id = $1`, jobID,
	).Scan(&j.ID, &j.TenantID, &j.Title, &j.Status)
	if err != nil {
		return nil, notFound(err, "job", jobID)
	}
	return j, nil
}

func (t *tenantTx) CountPublished(ctx context.Context, excludingJobID string) (int, error) {
	return countPublished(ctx, t.tx, t.tenantID, excludingJobID)
}

func (t *tenantTx) PublishJob(ctx context.Context, jobID string) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE jobs SET status = 'PUBLISHED', published_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2`, jobID, t.tenantID)
	if err != nil {
		return fmt.Errorf("publish job %s: %w", jobID, err)
	}
	return nil
}
