package alerting

import (
	"fmt"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

// RulesVersion is bumped on any threshold or catalog change so that
// behavior changes stay traceable in recorded events.
const RulesVersion = "2026-07-ops-1"

// Rule firing thresholds. Deployment-tunable defaults; bump
// RulesVersion when changing any of them.
const (
	webhookFailuresFiring = 3
	webhookRepeatedFiring = 2
	webhookFailuresHigh   = 5
	portalErrorsFiring    = 5
	portalErrorsHigh      = 10
	rateLimitTotalFiring  = 20
)

// Catalog returns the fixed rule set, in stable order.
func Catalog() []Rule {
	return []Rule{
		{
			Key:      "rag_red",
			Severity: models.SeverityHigh,
			Evaluate: evalRagRed,
		},
		{
			Key:      "webhook_failures_spike",
			Severity: models.SeverityMedium,
			Evaluate: evalWebhookFailuresSpike,
		},
		{
			Key:      "portal_errors_spike",
			Severity: models.SeverityMedium,
			Evaluate: evalPortalErrorsSpike,
		},
		{
			Key:      "rate_limit_pressure",
			Severity: models.SeverityLow,
			Evaluate: evalRateLimitPressure,
		},
	}
}

func evalRagRed(in EvalInput) Result {
	r := Result{
		Key:      "rag_red",
		State:    models.AlertOK,
		Severity: models.SeverityHigh,
		Summary:  "Overall health is not red",
	}
	if in.Rag.Overall == models.BandRed {
		r.State = models.AlertFiring
		r.Summary = "Overall health is red"
		r.Signals = map[string]int{}
		for key, s := range in.Rag.Signals {
			if s.State == models.BandRed {
				r.Signals[key] = s.Count
			}
		}
		for _, issue := range in.Rag.TopIssues {
			r.Actions = append(r.Actions, issue.Actions...)
			break // primary issue's actions only
		}
	}
	return r
}

func evalWebhookFailuresSpike(in EvalInput) Result {
	failures := in.Counts.WebhookFailures
	repeated := in.Counts.WebhookRepeatedFailures

	r := Result{
		Key:      "webhook_failures_spike",
		State:    models.AlertOK,
		Severity: models.SeverityMedium,
		Summary:  "Webhook deliveries healthy",
	}
	if failures >= webhookFailuresFiring || repeated >= webhookRepeatedFiring {
		r.State = models.AlertFiring
		r.Summary = fmt.Sprintf("%d webhook failures (%d repeated) in window", failures, repeated)
		r.Signals = map[string]int{
			models.SignalWebhookFailures:         failures,
			models.SignalWebhookRepeatedFailures: repeated,
		}
		r.Actions = issueActionsFor(models.SignalWebhookFailures)
		if failures >= webhookFailuresHigh {
			r.Severity = models.SeverityHigh
		}
	}
	return r
}

func evalPortalErrorsSpike(in EvalInput) Result {
	errs := in.Counts.PortalErrors

	r := Result{
		Key:      "portal_errors_spike",
		State:    models.AlertOK,
		Severity: models.SeverityMedium,
		Summary:  "Billing portal healthy",
	}
	if errs >= portalErrorsFiring {
		r.State = models.AlertFiring
		r.Summary = fmt.Sprintf("%d portal errors in window", errs)
		r.Signals = map[string]int{models.SignalPortalErrors: errs}
		r.Actions = issueActionsFor(models.SignalPortalErrors)
		if errs >= portalErrorsHigh {
			r.Severity = models.SeverityHigh
		}
	}
	return r
}

func evalRateLimitPressure(in EvalInput) Result {
	total := in.Counts.RateLimitHits
	critical := in.Counts.CriticalRateLimitHits

	r := Result{
		Key:      "rate_limit_pressure",
		State:    models.AlertOK,
		Severity: models.SeverityLow,
		Summary:  "Rate limit pressure normal",
	}
	if total >= rateLimitTotalFiring || critical > 0 {
		r.State = models.AlertFiring
		r.Summary = fmt.Sprintf("%d rate limit hits (%d on critical routes) in window", total, critical)
		r.Signals = map[string]int{
			models.SignalRateLimitHits:         total,
			models.SignalCriticalRateLimitHits: critical,
		}
		r.Actions = issueActionsFor(models.SignalRateLimitHits)
		if critical > 0 {
			r.Severity = models.SeverityMedium
		}
	}
	return r
}

// issueActionsFor mirrors the aggregator's remediation references so
// alert payloads and the RAG issue list point at the same runbooks.
func issueActionsFor(signalKey string) []models.RemediationAction {
	switch signalKey {
	case models.SignalWebhookFailures:
		return []models.RemediationAction{
			{Key: "check_webhook_endpoint", Label: "Check webhook endpoint health"},
			{Key: "replay_failed_webhooks", Label: "Replay failed webhook deliveries"},
		}
	case models.SignalPortalErrors:
		return []models.RemediationAction{
			{Key: "check_portal_sessions", Label: "Inspect recent portal sessions"},
		}
	case models.SignalRateLimitHits:
		return []models.RemediationAction{
			{Key: "review_rate_budgets", Label: "Review rate limit budgets"},
		}
	default:
		return nil
	}
}

// EvaluateAll runs every catalog rule against the input.
func EvaluateAll(in EvalInput) []Result {
	rules := Catalog()
	results := make([]Result, 0, len(rules))
	for _, rule := range rules {
		results = append(results, rule.Evaluate(in))
	}
	return results
}
