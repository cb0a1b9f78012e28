package signal

import (
	"context"
	"fmt"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/models"
	"github.com/good-yellow-bee/opswatch/internal/storage"
)

// CountsProvider derives the per-window SignalCounts from the raw
// activity event store.
type CountsProvider struct {
	events storage.EventStorage
	// criticalRoutes is the allowlist of routes where any rate-limit
	// hit is treated as critical.
	criticalRoutes map[string]bool
}

// NewCountsProvider creates a provider over the given event store.
func NewCountsProvider(events storage.EventStorage, criticalRoutes []string) *CountsProvider {
	allow := make(map[string]bool, len(criticalRoutes))
	for _, r := range criticalRoutes {
		allow[r] = true
	}
	return &CountsProvider{events: events, criticalRoutes: allow}
}

// Window builds the evaluation window ending at now.
func Window(minutes int, now time.Time) models.Window {
	if minutes <= 0 {
		minutes = 15
	}
	return models.Window{
		Minutes: minutes,
		From:    now.Add(-time.Duration(minutes) * time.Minute),
		To:      now,
	}
}

// Counts fetches the raw counts for the window. Webhook failures are
// additionally scanned for repeats (multiple failures sharing a
// request id) and rate-limit hits for critical-route matches.
func (p *CountsProvider) Counts(ctx context.Context, window models.Window) (models.SignalCounts, error) {
	var counts models.SignalCounts

	byType, err := p.events.CountByType(ctx, window.From, window.To, []string{
		models.EventTypeWebhookFailure,
		models.EventTypePortalError,
		models.EventTypeCheckoutError,
		models.EventTypeRateLimitHit,
	})
	if err != nil {
		return counts, fmt.Errorf("count events: %w", err)
	}

	counts.WebhookFailures = byType[models.EventTypeWebhookFailure]
	counts.PortalErrors = byType[models.EventTypePortalError]
	counts.CheckoutErrors = byType[models.EventTypeCheckoutError]
	counts.RateLimitHits = byType[models.EventTypeRateLimitHit]

	if counts.WebhookFailures > 1 {
		failures, err := p.events.ListByWindow(ctx, window.From, window.To, models.EventTypeWebhookFailure, 0)
		if err != nil {
			return counts, fmt.Errorf("list webhook failures: %w", err)
		}
		perRequest := make(map[string]int)
		for _, e := range failures {
			if e.RequestID != "" {
				perRequest[e.RequestID]++
			}
		}
		for _, n := range perRequest {
			if n >= 2 {
				counts.WebhookRepeatedFailures++
			}
		}
	}

	if counts.RateLimitHits > 0 && len(p.criticalRoutes) > 0 {
		hits, err := p.events.ListByWindow(ctx, window.From, window.To, models.EventTypeRateLimitHit, 0)
		if err != nil {
			return counts, fmt.Errorf("list rate limit hits: %w", err)
		}
		for _, e := range hits {
			if p.criticalRoutes[e.Route] {
				counts.CriticalRateLimitHits++
			}
		}
	}

	return counts, nil
}
