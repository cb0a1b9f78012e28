package models

import (
	"fmt"
	"time"
)

// HealthBand is the three-band health classification for a signal.
type HealthBand string

const (
	BandGreen HealthBand = "green"
	BandAmber HealthBand = "amber"
	BandRed   HealthBand = "red"
)

// rank orders bands for severity comparison.
func (b HealthBand) rank() int {
	switch b {
	case BandRed:
		return 2
	case BandAmber:
		return 1
	default:
		return 0
	}
}

// Worse reports whether b is a worse band than other.
func (b HealthBand) Worse(other HealthBand) bool {
	return b.rank() > other.rank()
}

// MaxBand returns the worse of two bands.
func MaxBand(a, b HealthBand) HealthBand {
	if b.Worse(a) {
		return b
	}
	return a
}

// Signal keys for the fixed signal set.
const (
	SignalWebhookFailures         = "webhook_failures"
	SignalWebhookRepeatedFailures = "webhook_repeated_failures"
	SignalPortalErrors            = "portal_errors"
	SignalCheckoutErrors          = "checkout_errors"
	SignalRateLimitHits           = "rate_limit_hits"
	SignalCriticalRateLimitHits   = "critical_rate_limit_hits"
)

// Window describes the evaluation time window.
type Window struct {
	Minutes int       `json:"minutes"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
}

// Label returns a human-readable window label, e.g. "last 15m".
func (w Window) Label() string {
	if w.Minutes <= 0 {
		return "last 15m"
	}
	if w.Minutes%60 == 0 {
		return fmt.Sprintf("last %dh", w.Minutes/60)
	}
	return fmt.Sprintf("last %dm", w.Minutes)
}

// SignalSample is one raw count over the evaluation window.
// Samples are recomputed every tick and never persisted.
type SignalSample struct {
	Key    string `json:"key"`
	Count  int    `json:"count"`
	Window Window `json:"window"`
}

// SignalCounts holds the raw per-signal counts for one evaluation window.
type SignalCounts struct {
	WebhookFailures         int `json:"webhook_failures"`
	WebhookRepeatedFailures int `json:"webhook_repeated_failures"`
	PortalErrors            int `json:"portal_errors"`
	CheckoutErrors          int `json:"checkout_errors"`
	RateLimitHits           int `json:"rate_limit_hits"`
	CriticalRateLimitHits   int `json:"critical_rate_limit_hits"`
}

// SignalStatus is the classified state of one signal.
type SignalStatus struct {
	Count int        `json:"count"`
	State HealthBand `json:"state"`
}

// RemediationAction references a runbook step an operator can take.
type RemediationAction struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	URL   string `json:"url,omitempty"`
}

// RagIssue is one entry in the ranked issue list.
type RagIssue struct {
	Key     string              `json:"key"`
	State   HealthBand          `json:"state"`
	Count   int                 `json:"count"`
	Label   string              `json:"label"`
	Actions []RemediationAction `json:"actions,omitempty"`
}

// RagStatus is the aggregated health read model, recomputed per request.
type RagStatus struct {
	RulesVersion string                  `json:"rules_version"`
	Window       Window                  `json:"window"`
	Overall      HealthBand              `json:"overall"`
	Signals      map[string]SignalStatus `json:"signals"`
	TopIssues    []RagIssue              `json:"top_issues"`
	UpdatedAt    time.Time               `json:"updated_at"`
}
