package billing

import (
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

// DefaultStaleAfter is how long a checkout may sit without any webhook
// or ledger signal before the correlator escalates to unknown. Kept as
// a default, not a hard requirement; flagged for product confirmation.
const DefaultStaleAfter = 30 * time.Minute

// Correlator diagnoses where a purchase appears stuck in the
// checkout → webhook → ledger pipeline.
type Correlator struct {
	// StaleAfter overrides DefaultStaleAfter when positive.
	StaleAfter time.Duration
}

func (c *Correlator) staleAfter() time.Duration {
	if c != nil && c.StaleAfter > 0 {
		return c.StaleAfter
	}
	return DefaultStaleAfter
}

// Correlate classifies the delay state for the timeline's most recent
// purchase. ledgerTracked reports whether a ledger stream was actually
// supplied: a webhook receipt with no tracked ledger resolves to none,
// while a tracked ledger missing the credit means waiting_ledger.
// creditsAvailable is an optional balance hint from the caller; nil
// means unknown.
func (c *Correlator) Correlate(timeline []models.TimelineEntry, ledgerTracked bool, creditsAvailable *int, now time.Time) models.BillingCorrelation {
	anchor := latest(timeline, models.TimelineCheckoutSuccess)
	if anchor == nil {
		return models.BillingCorrelation{
			State:       models.DelayNone,
			Confidence:  models.ConfidenceHigh,
			Explanation: "no recent successful checkout; nothing to diagnose",
		}
	}

	cleanWebhook := firstAtOrAfter(timeline, anchor.At, models.TimelineWebhookReceived)
	webhookErr := firstAtOrAfter(timeline, anchor.At, models.TimelineWebhookError)
	creditAfter := firstAtOrAfter(timeline, anchor.At, models.TimelineCreditsApplied)
	creditBefore := latestBefore(timeline, anchor.At, models.TimelineCreditsApplied)

	// Ordering anomaly: the most recent credit predates this checkout,
	// so it belongs to a prior purchase. The front-end is likely
	// showing cached state, not a genuinely pending problem.
	if creditAfter == nil && creditBefore != nil {
		since := anchor.At
		return models.BillingCorrelation{
			State:       models.DelayUIStale,
			Since:       &since,
			Confidence:  models.ConfidenceMedium,
			Explanation: "latest ledger credit predates the current checkout; the UI is likely showing cached state",
		}
	}

	if cleanWebhook == nil && webhookErr == nil && creditAfter == nil {
		since := anchor.At
		if now.Sub(anchor.At) > c.staleAfter() {
			return models.BillingCorrelation{
				State:       models.DelayUnknown,
				Since:       &since,
				Confidence:  models.ConfidenceLow,
				Explanation: "checkout succeeded but no webhook or ledger activity followed within the expected window",
			}
		}
		return models.BillingCorrelation{
			State:       models.DelayWaitingWebhook,
			Since:       &since,
			Confidence:  models.ConfidenceHigh,
			Explanation: "payment succeeded; provider confirmation not yet observed",
		}
	}

	if creditAfter != nil {
		return models.BillingCorrelation{
			State:       models.DelayNone,
			Confidence:  models.ConfidenceHigh,
			Explanation: "credits applied after checkout",
		}
	}

	// A webhook error with no clean receipt after it: do not guess.
	if cleanWebhook == nil {
		since := webhookErr.At
		return models.BillingCorrelation{
			State:       models.DelayUnknown,
			Since:       &since,
			Confidence:  models.ConfidenceMedium,
			Explanation: "webhook error recorded with no successful receipt after it; share a support snippet for diagnosis",
		}
	}

	if ledgerTracked || (creditsAvailable != nil && *creditsAvailable <= 0) {
		since := cleanWebhook.At
		return models.BillingCorrelation{
			State:       models.DelayWaitingLedger,
			Since:       &since,
			Confidence:  models.ConfidenceHigh,
			Explanation: "provider confirmation received; credit application pending",
		}
	}

	return models.BillingCorrelation{
		State:       models.DelayNone,
		Confidence:  models.ConfidenceMedium,
		Explanation: "provider confirmation received; no ledger stream tracked for this purchase",
	}
}

func latest(entries []models.TimelineEntry, kind models.TimelineKind) *models.TimelineEntry {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Kind == kind {
			return &entries[i]
		}
	}
	return nil
}

func firstAtOrAfter(entries []models.TimelineEntry, at time.Time, kind models.TimelineKind) *models.TimelineEntry {
	for i := range entries {
		if entries[i].Kind != kind {
			continue
		}
		if entries[i].At.Before(at) {
			continue
		}
		return &entries[i]
	}
	return nil
}

func latestBefore(entries []models.TimelineEntry, at time.Time, kind models.TimelineKind) *models.TimelineEntry {
	var found *models.TimelineEntry
	for i := range entries {
		if entries[i].Kind != kind || !entries[i].At.Before(at) {
			continue
		}
		found = &entries[i]
	}
	return found
}
