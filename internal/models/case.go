package models

import "time"

// CaseStatus is the lifecycle state of an incident case.
type CaseStatus string

const (
	CaseOpen       CaseStatus = "open"
	CaseInProgress CaseStatus = "in_progress"
	CaseResolved   CaseStatus = "resolved"
	// CaseClosed is terminal but rows stay queryable for audit.
	CaseClosed CaseStatus = "closed"
)

// ParseCaseStatus converts a string to CaseStatus.
// The second return is false for unrecognized values.
func ParseCaseStatus(s string) (CaseStatus, bool) {
	switch CaseStatus(s) {
	case CaseOpen, CaseInProgress, CaseResolved, CaseClosed:
		return CaseStatus(s), true
	default:
		return "", false
	}
}

// CasePriority orders cases in the incident queue.
type CasePriority string

const (
	PriorityLow    CasePriority = "low"
	PriorityNormal CasePriority = "normal"
	PriorityHigh   CasePriority = "high"
	PriorityUrgent CasePriority = "urgent"
)

// ParseCasePriority converts a string to CasePriority.
func ParseCasePriority(s string) (CasePriority, bool) {
	switch CasePriority(s) {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return CasePriority(s), true
	default:
		return "", false
	}
}

// Case is an operator-facing incident work item keyed by request id.
// Cases are never hard-deleted.
type Case struct {
	RequestID        string       `json:"request_id"`
	Status           CaseStatus   `json:"status"`
	Priority         CasePriority `json:"priority"`
	AssignedToUserID string       `json:"assigned_to_user_id,omitempty"`
	ClaimedAt        *time.Time   `json:"claimed_at,omitempty"`
	ResolvedAt       *time.Time   `json:"resolved_at,omitempty"`
	ClosedAt         *time.Time   `json:"closed_at,omitempty"`
	LastTouchedAt    time.Time    `json:"last_touched_at"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// ReasonCode identifies why a case exists. Codes are ordered by fixed
// precedence, highest first; precedence wins over recency.
type ReasonCode string

const (
	ReasonAlertFiring    ReasonCode = "ALERT_FIRING"
	ReasonWebhookFailure ReasonCode = "WEBHOOK_FAILURE"
	ReasonBillingRecheck ReasonCode = "BILLING_RECHECK"
	ReasonRateLimit      ReasonCode = "RATE_LIMIT"
	ReasonPortalError    ReasonCode = "PORTAL_ERROR"
	ReasonAlertRecent    ReasonCode = "ALERT_RECENT"
	ReasonTraining       ReasonCode = "TRAINING"
	ReasonManual         ReasonCode = "MANUAL"
	ReasonUnknown        ReasonCode = "UNKNOWN"
)

// ReasonPrecedence lists reason codes highest-precedence first.
var ReasonPrecedence = []ReasonCode{
	ReasonAlertFiring,
	ReasonWebhookFailure,
	ReasonBillingRecheck,
	ReasonRateLimit,
	ReasonPortalError,
	ReasonAlertRecent,
	ReasonTraining,
	ReasonManual,
	ReasonUnknown,
}

// CaseReasonSource is one candidate explanation for a case.
type CaseReasonSource struct {
	Code          ReasonCode `json:"code"`
	Count         int        `json:"count"`
	LastSeenAt    time.Time  `json:"last_seen_at"`
	PrimarySource string     `json:"primary_source"`
	Detail        string     `json:"detail,omitempty"`
}

// CaseReason is the resolved explanation, computed, never stored.
type CaseReason struct {
	Code          ReasonCode `json:"code"`
	Count         int        `json:"count"`
	LastSeenAt    time.Time  `json:"last_seen_at"`
	PrimarySource string     `json:"primary_source,omitempty"`
	Detail        string     `json:"detail,omitempty"`
}

// Actor carries role facts resolved by the calling layer. This core
// never makes authentication decisions itself.
type Actor struct {
	UserID  string `json:"user_id"`
	IsOps   bool   `json:"is_ops"`
	IsAdmin bool   `json:"is_admin"`
}
