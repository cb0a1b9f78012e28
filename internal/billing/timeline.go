// Package billing reconciles independently-arriving checkout, webhook,
// and ledger events into one causal timeline and classifies where a
// purchase currently appears stuck.
package billing

import (
	"sort"
	"strings"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

// eventKinds maps activity event types to timeline kinds.
var eventKinds = map[string]models.TimelineKind{
	models.EventTypeCheckoutStarted: models.TimelineCheckoutStarted,
	models.EventTypeCheckoutSuccess: models.TimelineCheckoutSuccess,
	models.EventTypeCheckoutError:   models.TimelineCheckoutError,
	models.EventTypePortalOpen:      models.TimelinePortalOpen,
	models.EventTypePortalError:     models.TimelinePortalError,
	models.EventTypeWebhookReceived: models.TimelineWebhookReceived,
	models.EventTypeWebhookError:    models.TimelineWebhookError,
}

// BuildTimeline merges activity events and ledger credits into one
// ordered timeline. Ordering is by `at`; ties break by source priority
// (checkout > webhook > ledger) so the "latest relevant" pick is
// deterministic. Arrival order is never trusted as causal order.
func BuildTimeline(events []*models.ActivityEvent, ledger []*models.LedgerEntry) []models.TimelineEntry {
	entries := make([]models.TimelineEntry, 0, len(events)+len(ledger))

	for _, e := range events {
		kind, ok := eventKinds[e.Type]
		if !ok {
			continue
		}
		entries = append(entries, models.TimelineEntry{
			Kind:      kind,
			At:        e.OccurredAt,
			RequestID: e.RequestID,
			Detail:    strings.TrimSpace(e.MaskedBody),
		})
	}

	for _, l := range ledger {
		if l.Delta <= 0 {
			continue // consumption rows are not credit applications
		}
		entries = append(entries, models.TimelineEntry{
			Kind:   models.TimelineCreditsApplied,
			At:     l.CreatedAt,
			Delta:  l.Delta,
			Detail: l.Reason,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].At.Equal(entries[j].At) {
			return entries[i].At.Before(entries[j].At)
		}
		return entries[i].Kind.SourcePriority() > entries[j].Kind.SourcePriority()
	})

	return entries
}
