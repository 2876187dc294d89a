package domain

type Plan string

const (
	PlanFree       Plan = "free"
	PlanStarter    Plan = "starter"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

type BillingStatus string

const (
	BillingNone     BillingStatus = "NONE"
	BillingTrialing BillingStatus = "TRIALING"
	BillingActive   BillingStatus = "ACTIVE"
	BillingPastDue  BillingStatus = "PAST_DUE"
	BillingUnpaid   BillingStatus = "UNPAID"
	BillingCanceled BillingStatus = "CANCELED"
	BillingPaused   BillingStatus = "PAUSED"
)

type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// Tenant is the company that owns jobs and searches candidates.
type Tenant struct {
	ID                 string
	Name               string
	Plan               Plan
	BillingStatus      BillingStatus
	VerificationStatus VerificationStatus
	Suspended          bool

	// PublishLimit overrides the plan default when set.
	PublishLimit *int
}

type JobStatus string

const (
	JobDraft     JobStatus = "DRAFT"
	JobPublished JobStatus = "PUBLISHED"
	JobClosed    JobStatus = "CLOSED"
)

// Job is a posting owned by a tenant.
type Job struct {
	ID       string
	TenantID string
	Title    string
	Status   JobStatus
}
