package billing

import (
	"testing"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

func entry(kind models.TimelineKind, at time.Time) models.TimelineEntry {
	return models.TimelineEntry{Kind: kind, At: at}
}

func TestCorrelate(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base.Add(10 * time.Minute)

	tests := []struct {
		name          string
		timeline      []models.TimelineEntry
		ledgerTracked bool
		credits       *int
		now           time.Time
		wantState     models.DelayState
		wantConf      models.Confidence
	}{
		{
			name:      "empty timeline has nothing to diagnose",
			timeline:  nil,
			now:       now,
			wantState: models.DelayNone,
			wantConf:  models.ConfidenceHigh,
		},
		{
			name: "checkout with no follow-up is waiting for webhook",
			timeline: []models.TimelineEntry{
				entry(models.TimelineCheckoutSuccess, base),
			},
			now:       now,
			wantState: models.DelayWaitingWebhook,
			wantConf:  models.ConfidenceHigh,
		},
		{
			name: "checkout then webhook with no tracked ledger is resolved",
			timeline: []models.TimelineEntry{
				entry(models.TimelineCheckoutSuccess, base),
				entry(models.TimelineWebhookReceived, base.Add(time.Minute)),
			},
			now:       now,
			wantState: models.DelayNone,
			wantConf:  models.ConfidenceMedium,
		},
		{
			name: "tracked ledger missing the credit is waiting for ledger",
			timeline: []models.TimelineEntry{
				entry(models.TimelineCheckoutSuccess, base),
				entry(models.TimelineWebhookReceived, base.Add(time.Minute)),
			},
			ledgerTracked: true,
			now:           now,
			wantState:     models.DelayWaitingLedger,
			wantConf:      models.ConfidenceHigh,
		},
		{
			name: "zero balance hint also means waiting for ledger",
			timeline: []models.TimelineEntry{
				entry(models.TimelineCheckoutSuccess, base),
				entry(models.TimelineWebhookReceived, base.Add(time.Minute)),
			},
			credits:   intPtr(0),
			now:       now,
			wantState: models.DelayWaitingLedger,
			wantConf:  models.ConfidenceHigh,
		},
		{
			name: "credit applied after checkout is resolved",
			timeline: []models.TimelineEntry{
				entry(models.TimelineCheckoutSuccess, base),
				entry(models.TimelineWebhookReceived, base.Add(time.Minute)),
				entry(models.TimelineCreditsApplied, base.Add(2*time.Minute)),
			},
			ledgerTracked: true,
			now:           now,
			wantState:     models.DelayNone,
			wantConf:      models.ConfidenceHigh,
		},
		{
			name: "latest credit before checkout means stale UI",
			timeline: []models.TimelineEntry{
				entry(models.TimelineCreditsApplied, base.Add(-time.Hour)),
				entry(models.TimelineCheckoutSuccess, base),
			},
			ledgerTracked: true,
			now:           now,
			wantState:     models.DelayUIStale,
			wantConf:      models.ConfidenceMedium,
		},
		{
			name: "silent checkout past the stale window is unknown",
			timeline: []models.TimelineEntry{
				entry(models.TimelineCheckoutSuccess, base),
			},
			now:       base.Add(45 * time.Minute),
			wantState: models.DelayUnknown,
			wantConf:  models.ConfidenceLow,
		},
		{
			name: "webhook error with no clean receipt is unknown",
			timeline: []models.TimelineEntry{
				entry(models.TimelineCheckoutSuccess, base),
				entry(models.TimelineWebhookError, base.Add(time.Minute)),
			},
			now:       now,
			wantState: models.DelayUnknown,
			wantConf:  models.ConfidenceMedium,
		},
		{
			name: "clean webhook after an error recovers the diagnosis",
			timeline: []models.TimelineEntry{
				entry(models.TimelineCheckoutSuccess, base),
				entry(models.TimelineWebhookError, base.Add(time.Minute)),
				entry(models.TimelineWebhookReceived, base.Add(2*time.Minute)),
			},
			ledgerTracked: true,
			now:           now,
			wantState:     models.DelayWaitingLedger,
			wantConf:      models.ConfidenceHigh,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Correlator
			got := c.Correlate(tt.timeline, tt.ledgerTracked, tt.credits, tt.now)
			if got.State != tt.wantState {
				t.Errorf("state = %s, want %s", got.State, tt.wantState)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("confidence = %s, want %s", got.Confidence, tt.wantConf)
			}
			if got.Explanation == "" {
				t.Error("explanation is empty")
			}
		})
	}
}

func TestCorrelateCustomStaleWindow(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	timeline := []models.TimelineEntry{entry(models.TimelineCheckoutSuccess, base)}

	c := &Correlator{StaleAfter: 5 * time.Minute}
	got := c.Correlate(timeline, false, nil, base.Add(6*time.Minute))
	if got.State != models.DelayUnknown {
		t.Errorf("state = %s, want unknown past custom stale window", got.State)
	}

	got = c.Correlate(timeline, false, nil, base.Add(4*time.Minute))
	if got.State != models.DelayWaitingWebhook {
		t.Errorf("state = %s, want waiting_webhook inside custom stale window", got.State)
	}
}

func intPtr(v int) *int { return &v }
