package models

import "time"

// Severity represents alert severity level.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity converts a string to Severity.
func ParseSeverity(s string) Severity {
	switch s {
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// AlertStateValue is the lifecycle state of an alert rule.
type AlertStateValue string

const (
	AlertOK     AlertStateValue = "ok"
	AlertFiring AlertStateValue = "firing"
)

// AlertState is the persisted per-rule state row, upserted every
// evaluation tick. StartedAt is set only on the ok->firing edge and
// cleared on recovery; LastNotifiedAt only advances forward.
type AlertState struct {
	Key             string          `json:"key"`
	State           AlertStateValue `json:"state"`
	StartedAt       *time.Time      `json:"started_at,omitempty"`
	LastSeenAt      time.Time       `json:"last_seen_at"`
	LastNotifiedAt  *time.Time      `json:"last_notified_at,omitempty"`
	LastPayloadHash string          `json:"last_payload_hash,omitempty"`
	SnoozedUntil    *time.Time      `json:"snoozed_until,omitempty"`
}

// Snoozed reports whether notifications for this rule are snoozed at now.
func (s *AlertState) Snoozed(now time.Time) bool {
	return s.SnoozedUntil != nil && now.Before(*s.SnoozedUntil)
}

// AlertTransition is a state change detected between two evaluation ticks.
type AlertTransition struct {
	Key      string          `json:"key"`
	From     AlertStateValue `json:"from"`
	To       AlertStateValue `json:"to"`
	Severity Severity        `json:"severity"`
	Summary  string          `json:"summary"`
}

// Resolution reports whether the transition is firing->ok.
func (t AlertTransition) Resolution() bool {
	return t.From == AlertFiring && t.To == AlertOK
}

// AlertEvent is one append-only row per transition, immutable once written.
type AlertEvent struct {
	ID            string            `json:"id"`
	Key           string            `json:"key"`
	State         AlertStateValue   `json:"state"`
	At            time.Time         `json:"at"`
	MaskedSummary string            `json:"masked_summary"`
	MaskedSignals map[string]string `json:"masked_signals,omitempty"`
	WindowLabel   string            `json:"window_label"`
	RulesVersion  string            `json:"rules_version"`
	AckedBy       string            `json:"acked_by,omitempty"`
	AckedAt       *time.Time        `json:"acked_at,omitempty"`
}

// DeliveryStatus classifies a notification delivery attempt.
type DeliveryStatus string

const (
	// DeliverySent is the optimistic record written before the network
	// call resolves.
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

// AlertDelivery is one append-only row per delivery attempt.
// The attempt number is derived by counting prior rows for the event.
type AlertDelivery struct {
	ID           string         `json:"id"`
	EventID      string         `json:"event_id"`
	Status       DeliveryStatus `json:"status"`
	At           time.Time      `json:"at"`
	MaskedReason string         `json:"masked_reason,omitempty"`
	ProviderRef  string         `json:"provider_ref,omitempty"`
	WindowLabel  string         `json:"window_label,omitempty"`
}
