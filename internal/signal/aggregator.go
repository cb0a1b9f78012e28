// Package signal classifies raw operational counts into RAG health
// bands and rolls them into one overall status with a ranked issue list.
package signal

import (
	"sort"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

// maxTopIssues caps the ranked issue list.
const maxTopIssues = 5

// Classify maps a raw count to a health band. Pure and monotonic in
// count. A red threshold of zero means the signal has no red ceiling.
func Classify(count, red, amberMin int) models.HealthBand {
	if red > 0 && count >= red {
		return models.BandRed
	}
	if amberMin > 0 && count >= amberMin {
		return models.BandAmber
	}
	return models.BandGreen
}

// issueLabels maps signal keys to operator-facing labels.
var issueLabels = map[string]string{
	models.SignalWebhookFailures:       "Webhook deliveries failing",
	models.SignalPortalErrors:          "Billing portal errors",
	models.SignalCheckoutErrors:        "Checkout errors",
	models.SignalRateLimitHits:         "Rate limit pressure",
	models.SignalCriticalRateLimitHits: "Rate limit hits on critical routes",
}

// issueActions maps signal keys to remediation action references.
var issueActions = map[string][]models.RemediationAction{
	models.SignalWebhookFailures: {
		{Key: "check_webhook_endpoint", Label: "Check webhook endpoint health"},
		{Key: "replay_failed_webhooks", Label: "Replay failed webhook deliveries"},
	},
	models.SignalPortalErrors: {
		{Key: "check_portal_sessions", Label: "Inspect recent portal sessions"},
	},
	models.SignalCheckoutErrors: {
		{Key: "check_provider_status", Label: "Check payment provider status"},
	},
	models.SignalRateLimitHits: {
		{Key: "review_rate_budgets", Label: "Review rate limit budgets"},
	},
	models.SignalCriticalRateLimitHits: {
		{Key: "review_rate_budgets", Label: "Review rate limit budgets"},
		{Key: "check_critical_routes", Label: "Check critical route traffic"},
	},
}

// Aggregator turns raw signal counts into a RagStatus.
type Aggregator struct {
	thresholds Thresholds
}

// NewAggregator creates an aggregator with the given thresholds.
func NewAggregator(t Thresholds) *Aggregator {
	return &Aggregator{thresholds: t}
}

// Thresholds returns the aggregator's current thresholds.
func (a *Aggregator) Thresholds() Thresholds {
	return a.thresholds
}

// ComputeRagStatus classifies each signal and derives the overall band
// as the maximum severity across all signals. Read-only; callers own
// fetching the raw counts for the window.
func (a *Aggregator) ComputeRagStatus(counts models.SignalCounts, window models.Window, rulesVersion string, now time.Time) models.RagStatus {
	t := a.thresholds

	signals := map[string]models.SignalStatus{
		models.SignalWebhookFailures: {
			Count: counts.WebhookFailures,
			State: Classify(counts.WebhookFailures, t.WebhookFailures.Red, t.WebhookFailures.Amber),
		},
		models.SignalPortalErrors: {
			Count: counts.PortalErrors,
			State: Classify(counts.PortalErrors, t.PortalErrors.Red, t.PortalErrors.Amber),
		},
		models.SignalCheckoutErrors: {
			Count: counts.CheckoutErrors,
			State: Classify(counts.CheckoutErrors, t.CheckoutErrors.Red, t.CheckoutErrors.Amber),
		},
		models.SignalRateLimitHits: {
			Count: counts.RateLimitHits,
			State: Classify(counts.RateLimitHits, t.RateLimitHits.Red, t.RateLimitHits.Amber),
		},
	}

	// Any hit on a critical route is amber on its own.
	if counts.CriticalRateLimitHits > 0 {
		signals[models.SignalCriticalRateLimitHits] = models.SignalStatus{
			Count: counts.CriticalRateLimitHits,
			State: models.BandAmber,
		}
	}

	overall := models.BandGreen
	for _, s := range signals {
		overall = models.MaxBand(overall, s.State)
	}

	return models.RagStatus{
		RulesVersion: rulesVersion,
		Window:       window,
		Overall:      overall,
		Signals:      signals,
		TopIssues:    topIssues(signals),
		UpdatedAt:    now,
	}
}

// topIssues ranks non-green or non-zero signals red-first, then
// amber-first, then by descending count, capped at maxTopIssues.
func topIssues(signals map[string]models.SignalStatus) []models.RagIssue {
	issues := make([]models.RagIssue, 0, len(signals))
	for key, s := range signals {
		if s.State == models.BandGreen && s.Count == 0 {
			continue
		}
		label := issueLabels[key]
		if label == "" {
			label = key
		}
		issues = append(issues, models.RagIssue{
			Key:     key,
			State:   s.State,
			Count:   s.Count,
			Label:   label,
			Actions: issueActions[key],
		})
	}

	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].State != issues[j].State {
			return issues[i].State.Worse(issues[j].State)
		}
		if issues[i].Count != issues[j].Count {
			return issues[i].Count > issues[j].Count
		}
		return issues[i].Key < issues[j].Key
	})

	if len(issues) > maxTopIssues {
		issues = issues[:maxTopIssues]
	}
	return issues
}
