// Package policy decides whether a tenant may publish another job.
package policy

import (
	"fmt"

	"cv-retrieval/internal/domain"
)

// Unlimited marks a plan without a publish cap.
const Unlimited = -1

// Code is the machine-readable outcome of an evaluation.
type Code string

const (
	CodeAllowed            Code = "ALLOWED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeSuspended          Code = "SUSPENDED"
	CodeNotVerified        Code = "NOT_VERIFIED"
	CodeBillingNotEntitled Code = "BILLING_NOT_ENTITLED"
	CodeLimitReached       Code = "LIMIT_REACHED"
)

// Context carries the resolved inputs so callers can log the decision.
type Context struct {
	Plan           domain.Plan          `json:"plan,omitempty"`
	BillingStatus  domain.BillingStatus `json:"billingStatus,omitempty"`
	Limit          int                  `json:"limit"`
	PublishedCount int                  `json:"publishedCount"`
}

// Result is the decision. A denial is a normal result, not an error.
type Result struct {
	Allowed bool    `json:"allowed"`
	Code    Code    `json:"code"`
	Message string  `json:"message"`
	Context Context `json:"context"`
}

// Rules holds the product constants behind the rule chain.
type Rules struct {
	// DefaultLimits is the publish cap per plan. Unlimited disables the cap.
	DefaultLimits map[domain.Plan]int

	// FallbackLimit applies to plans missing from DefaultLimits.
	FallbackLimit int

	// BlockedBilling statuses deny every plan.
	BlockedBilling map[domain.BillingStatus]bool

	// ActiveBilling statuses are required for plans not in FreePlans.
	ActiveBilling map[domain.BillingStatus]bool

	FreePlans map[domain.Plan]bool
}

func DefaultRules() Rules {
	return Rules{
		DefaultLimits: map[domain.Plan]int{
			domain.PlanFree:       1,
			domain.PlanStarter:    3,
			domain.PlanPro:        20,
			domain.PlanEnterprise: Unlimited,
		},
		FallbackLimit: 1,
		BlockedBilling: map[domain.BillingStatus]bool{
			domain.BillingPastDue:  true,
			domain.BillingUnpaid:   true,
			domain.BillingCanceled: true,
			domain.BillingPaused:   true,
		},
		ActiveBilling: map[domain.BillingStatus]bool{
			domain.BillingTrialing: true,
			domain.BillingActive:   true,
		},
		FreePlans: map[domain.Plan]bool{domain.PlanFree: true},
	}
}

// LimitFor resolves the effective publish cap of t.
func (r Rules) LimitFor(t *domain.Tenant) int {
	if t.PublishLimit != nil {
		return *t.PublishLimit
	}
	if limit, ok := r.DefaultLimits[t.Plan]; ok {
		return limit
	}
	return r.FallbackLimit
}

// Evaluate runs the rule chain against tenant and its current published
// count. The first failing rule decides. A nil tenant is NOT_FOUND.
func Evaluate(r Rules, tenant *domain.Tenant, published int) Result {
	if tenant == nil {
		return deny(CodeNotFound, "tenant not found", Context{})
	}

	ctx := Context{
		Plan:           tenant.Plan,
		BillingStatus:  tenant.BillingStatus,
		Limit:          r.LimitFor(tenant),
		PublishedCount: published,
	}

	switch {
	case tenant.Suspended:
		return deny(CodeSuspended, "tenant is suspended", ctx)
	case tenant.VerificationStatus != domain.VerificationVerified:
		return deny(CodeNotVerified, "tenant must be verified before publishing", ctx)
	case r.BlockedBilling[tenant.BillingStatus]:
		return deny(CodeBillingNotEntitled, fmt.Sprintf("billing status %s does not allow publishing", tenant.BillingStatus), ctx)
	case !r.FreePlans[tenant.Plan] && !r.ActiveBilling[tenant.BillingStatus]:
		return deny(CodeBillingNotEntitled, fmt.Sprintf("plan %s requires an active subscription", tenant.Plan), ctx)
	case ctx.Limit != Unlimited && published >= ctx.Limit:
		return deny(CodeLimitReached, fmt.Sprintf("published job limit of %d reached", ctx.Limit), ctx)
	}

	return Result{Allowed: true, Code: CodeAllowed, Message: "tenant may publish", Context: ctx}
}

func deny(code Code, msg string, ctx Context) Result {
	return Result{Allowed: false, Code: code, Message: msg, Context: ctx}
}
