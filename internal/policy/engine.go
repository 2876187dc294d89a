package policy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"cv-retrieval/internal/domain"
	"cv-retrieval/internal/logger"
)

// TenantTx is a transaction holding the tenant's lock.
type TenantTx interface {
	// Tenant returns the locked tenant or ErrNotFound.
	Tenant(ctx context.Context) (*domain.Tenant, error)
	Job(ctx context.Context, jobID string) (*domain.Job, error)
	CountPublished(ctx context.Context, excludingJobID string) (int, error)
	PublishJob(ctx context.Context, jobID string) error
}

// Store reads tenant state.
type Store interface {
	// Snapshot returns the tenant and its published count (excluding one
	// job, if given) from one consistent read. Missing tenants are ErrNotFound.
	Snapshot(ctx context.Context, tenantID, excludingJobID string) (*domain.Tenant, int, error)

	// WithTenantLock runs fn in a transaction that serializes all callers
	// for the same tenant. fn's error rolls the transaction back.
	WithTenantLock(ctx context.Context, tenantID string, fn func(ctx context.Context, tx TenantTx) error) error
}

type Engine struct {
	store Store
	rules Rules
	log   *zap.Logger
}

func NewEngine(store Store, rules Rules, log *zap.Logger) *Engine {
	return &Engine{store: store, rules: rules, log: logger.OrNop(log).Named("policy")}
}

// CanPublish evaluates the rule chain without side effects.
func (e *Engine) CanPublish(ctx context.Context, tenantID, excludingJobID string) (Result, error) {
	tenant, count, err := e.store.Snapshot(ctx, tenantID, excludingJobID)
	if errors.Is(err, domain.ErrNotFound) {
		return Evaluate(e.rules, nil, 0), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load tenant state: %w", err)
	}
	return Evaluate(e.rules, tenant, count), nil
}

// Publish re-evaluates the rules under the tenant lock and moves the job
// to PUBLISHED in the same transaction when allowed. A job of another
// tenant is ErrForbidden. Publishing an already published job is allowed
// and changes nothing.
func (e *Engine) Publish(ctx context.Context, tenantID, jobID string) (Result, error) {
	var res Result
	err := e.store.WithTenantLock(ctx, tenantID, func(ctx context.Context, tx TenantTx) error {
		tenant, err := tx.Tenant(ctx)
		if errors.Is(err, domain.ErrNotFound) {
			res = Evaluate(e.rules, nil, 0)
			return nil
		}
		if err != nil {
			return err
		}

		job, err := tx.Job(ctx, jobID)
		if err != nil {
			return err
		}
		if job.TenantID != tenantID {
			return fmt.Errorf("%w: job %s belongs to another tenant", domain.ErrForbidden, jobID)
		}

		count, err := tx.CountPublished(ctx, jobID)
		if err != nil {
			return err
		}
		res = Evaluate(e.rules, tenant, count)
		if !res.Allowed || job.Status == domain.JobPublished {
			return nil
		}
		return tx.PublishJob(ctx, jobID)
	})
	if err != nil {
		return Result{}, err
	}

	e.log.Info("publish evaluated",
		zap.String("tenant_id", tenantID),
		zap.String("job_id", jobID),
		zap.Bool("allowed", res.Allowed),
		zap.String("code", string(res.Code)),
		zap.Int("limit", res.Context.Limit),
		zap.Int("published", res.Context.PublishedCount))
	return res, nil
}
