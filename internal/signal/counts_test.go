package signal

import (
	"context"
	"testing"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
	"github.com/good-yellow-bee/opswatch/internal/storage"
)

func TestWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	w := Window(15, now)
	if w.Minutes != 15 || !w.To.Equal(now) || !w.From.Equal(now.Add(-15*time.Minute)) {
		t.Errorf("window = %+v", w)
	}

	// Non-positive minutes fall back to the default.
	w = Window(0, now)
	if w.Minutes != 15 {
		t.Errorf("default minutes = %d, want 15", w.Minutes)
	}
}

func TestCountsProvider(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := storage.NewMemoryEventStorage()

	in := func(m int) time.Time { return now.Add(-time.Duration(m) * time.Minute) }
	seed := []*models.ActivityEvent{
		// Three webhook failures, two sharing a request id.
		{Type: models.EventTypeWebhookFailure, OccurredAt: in(1), RequestID: "req-1"},
		{Type: models.EventTypeWebhookFailure, OccurredAt: in(2), RequestID: "req-1"},
		{Type: models.EventTypeWebhookFailure, OccurredAt: in(3), RequestID: "req-2"},
		{Type: models.EventTypePortalError, OccurredAt: in(4)},
		{Type: models.EventTypeCheckoutError, OccurredAt: in(5)},
		// Rate limit hits, one on a critical route.
		{Type: models.EventTypeRateLimitHit, OccurredAt: in(6), Route: "/api/checkout"},
		{Type: models.EventTypeRateLimitHit, OccurredAt: in(7), Route: "/api/search"},
		// Outside the window.
		{Type: models.EventTypeWebhookFailure, OccurredAt: in(20), RequestID: "req-3"},
	}
	if err := events.Insert(ctx, seed); err != nil {
		t.Fatalf("insert: %v", err)
	}

	provider := NewCountsProvider(events, []string{"/api/checkout"})
	counts, err := provider.Counts(ctx, Window(15, now))
	if err != nil {
		t.Fatalf("counts: %v", err)
	}

	want := models.SignalCounts{
		WebhookFailures:         3,
		WebhookRepeatedFailures: 1,
		PortalErrors:            1,
		CheckoutErrors:          1,
		RateLimitHits:           2,
		CriticalRateLimitHits:   1,
	}
	if counts != want {
		t.Errorf("counts = %+v, want %+v", counts, want)
	}
}

func TestCountsToRagStatus(t *testing.T) {
	// End to end over the real stores: six webhook failures must push
	// the overall band to red with webhook_failures as the top issue.
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	events := storage.NewMemoryEventStorage()

	var seed []*models.ActivityEvent
	for i := 0; i < 6; i++ {
		seed = append(seed, &models.ActivityEvent{
			Type:       models.EventTypeWebhookFailure,
			OccurredAt: now.Add(-time.Duration(i+1) * time.Minute),
			RequestID:  "req-" + string(rune('a'+i)),
		})
	}
	if err := events.Insert(ctx, seed); err != nil {
		t.Fatalf("insert: %v", err)
	}

	window := Window(15, now)
	counts, err := NewCountsProvider(events, nil).Counts(ctx, window)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}

	status := NewAggregator(DefaultThresholds()).ComputeRagStatus(counts, window, "test-v1", now)
	if status.Overall != models.BandRed {
		t.Errorf("overall = %s, want red", status.Overall)
	}
	if len(status.TopIssues) == 0 || status.TopIssues[0].Key != models.SignalWebhookFailures {
		t.Errorf("top issues = %+v", status.TopIssues)
	}
}
