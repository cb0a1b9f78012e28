package models

import "time"

// Activity event type prefixes used when querying the event store.
const (
	EventTypeWebhookFailure  = "webhook.failure"
	EventTypeWebhookReceived = "webhook.received"
	EventTypeWebhookError    = "webhook.error"
	EventTypeCheckoutStarted = "checkout.started"
	EventTypeCheckoutSuccess = "checkout.success"
	EventTypeCheckoutError   = "checkout.error"
	EventTypePortalOpen      = "portal.open"
	EventTypePortalError     = "portal.error"
	EventTypeRateLimitHit    = "ratelimit.hit"
)

// ActivityEvent is one raw operational event row from the activity
// store. Bodies arrive pre-masked; this core never sees raw payloads.
type ActivityEvent struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	RequestID  string    `json:"request_id,omitempty"`
	Route      string    `json:"route,omitempty"`
	MaskedBody string    `json:"masked_body,omitempty"`
}

// AuditEntry is one best-effort audit-log row. Audit writes never
// abort the primary operation.
type AuditEntry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	RequestID string    `json:"request_id,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
