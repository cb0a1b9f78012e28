package models

import "time"

// TimelineKind identifies the source event type of a timeline entry.
type TimelineKind string

const (
	TimelineCheckoutStarted TimelineKind = "checkout_started"
	TimelineCheckoutSuccess TimelineKind = "checkout_success"
	TimelineCheckoutError   TimelineKind = "checkout_error"
	TimelinePortalOpen      TimelineKind = "portal_open"
	TimelinePortalError     TimelineKind = "portal_error"
	TimelineWebhookReceived TimelineKind = "webhook_received"
	TimelineWebhookError    TimelineKind = "webhook_error"
	TimelineCreditsApplied  TimelineKind = "credits_applied"
)

// SourcePriority orders entries with equal timestamps: checkout events
// outrank webhook events, which outrank ledger events. The correlator
// needs a deterministic "latest relevant" pick.
func (k TimelineKind) SourcePriority() int {
	switch k {
	case TimelineCheckoutStarted, TimelineCheckoutSuccess, TimelineCheckoutError,
		TimelinePortalOpen, TimelinePortalError:
		return 2
	case TimelineWebhookReceived, TimelineWebhookError:
		return 1
	default:
		return 0
	}
}

// TimelineEntry is one event in the reconstructed billing timeline.
// Entries are ephemeral, rebuilt per request from source tables.
type TimelineEntry struct {
	Kind      TimelineKind `json:"kind"`
	At        time.Time    `json:"at"`
	RequestID string       `json:"request_id,omitempty"`
	Delta     int          `json:"delta,omitempty"`
	Detail    string       `json:"detail,omitempty"`
}

// LedgerEntry is a credit-ledger row supplied by the billing collaborator.
type LedgerEntry struct {
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// DelayState classifies where a purchase currently appears stuck.
type DelayState string

const (
	DelayNone           DelayState = "none"
	DelayWaitingWebhook DelayState = "waiting_webhook"
	DelayWaitingLedger  DelayState = "waiting_ledger"
	DelayUIStale        DelayState = "ui_stale"
	DelayUnknown        DelayState = "unknown"
)

// Confidence expresses how sure the correlator is about its diagnosis.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "med"
	ConfidenceHigh   Confidence = "high"
)

// BillingCorrelation is the correlator's derived diagnosis. Never persisted.
type BillingCorrelation struct {
	State       DelayState `json:"state"`
	Since       *time.Time `json:"since,omitempty"`
	Confidence  Confidence `json:"confidence"`
	Explanation string     `json:"explanation"`
}
