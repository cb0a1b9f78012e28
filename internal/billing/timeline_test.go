package billing

import (
	"testing"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

func TestBuildTimelineOrdering(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	events := []*models.ActivityEvent{
		{Type: models.EventTypeWebhookReceived, OccurredAt: base.Add(2 * time.Minute)},
		{Type: models.EventTypeCheckoutSuccess, OccurredAt: base},
		{Type: "deploy.finished", OccurredAt: base}, // unmapped types are dropped
	}
	ledger := []*models.LedgerEntry{
		{Delta: 100, Reason: "purchase", CreatedAt: base.Add(3 * time.Minute)},
		{Delta: -5, Reason: "consumption", CreatedAt: base.Add(4 * time.Minute)},
	}

	got := BuildTimeline(events, ledger)

	wantKinds := []models.TimelineKind{
		models.TimelineCheckoutSuccess,
		models.TimelineWebhookReceived,
		models.TimelineCreditsApplied,
	}
	if len(got) != len(wantKinds) {
		t.Fatalf("entries = %d, want %d", len(got), len(wantKinds))
	}
	for i, want := range wantKinds {
		if got[i].Kind != want {
			t.Errorf("entries[%d].Kind = %s, want %s", i, got[i].Kind, want)
		}
	}
	if got[2].Delta != 100 {
		t.Errorf("credit delta = %d, want 100", got[2].Delta)
	}
}

func TestBuildTimelineTieBreak(t *testing.T) {
	// Equal timestamps order by source priority: checkout > webhook > ledger.
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	events := []*models.ActivityEvent{
		{Type: models.EventTypeWebhookReceived, OccurredAt: at},
		{Type: models.EventTypeCheckoutSuccess, OccurredAt: at},
	}
	ledger := []*models.LedgerEntry{
		{Delta: 50, CreatedAt: at},
	}

	got := BuildTimeline(events, ledger)
	wantKinds := []models.TimelineKind{
		models.TimelineCheckoutSuccess,
		models.TimelineWebhookReceived,
		models.TimelineCreditsApplied,
	}
	if len(got) != len(wantKinds) {
		t.Fatalf("entries = %d, want %d", len(got), len(wantKinds))
	}
	for i, want := range wantKinds {
		if got[i].Kind != want {
			t.Errorf("entries[%d].Kind = %s, want %s", i, got[i].Kind, want)
		}
	}
}
