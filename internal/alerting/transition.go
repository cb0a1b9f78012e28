package alerting

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/opswatch/internal/masking"
	"github.com/good-yellow-bee/opswatch/internal/models"
)

// TickOutcome is the transition detector's output for one evaluation
// tick: the transitions to notify, the full set of states to upsert,
// and the append-only event rows for each transition.
type TickOutcome struct {
	Transitions   []models.AlertTransition
	UpdatedStates []models.AlertState
	Events        []models.AlertEvent
	// EventIDByKey joins transitions to their recorded event rows.
	EventIDByKey map[string]string
}

// DetectTransitions diffs freshly evaluated results against the
// previously persisted states. A missing previous state is treated as
// ok: an unresolvable lookup must under-alert rather than storm.
//
// StartedAt is set only on the ok->firing edge and preserved across
// consecutive firing ticks so dashboards can show "firing for N
// minutes" accurately; it is cleared on recovery.
func DetectTransitions(results []Result, previous map[string]models.AlertState, window models.Window, now time.Time) TickOutcome {
	out := TickOutcome{
		EventIDByKey: make(map[string]string),
	}

	for _, res := range results {
		prev, havePrev := previous[res.Key]
		fromState := models.AlertOK
		if havePrev {
			fromState = prev.State
		}

		next := models.AlertState{
			Key:        res.Key,
			State:      res.State,
			LastSeenAt: now,
		}
		if havePrev {
			// Carry notification metadata; the dispatcher advances it.
			next.LastNotifiedAt = prev.LastNotifiedAt
			next.LastPayloadHash = prev.LastPayloadHash
			next.SnoozedUntil = prev.SnoozedUntil
		}

		switch {
		case fromState != models.AlertFiring && res.State == models.AlertFiring:
			t := now
			next.StartedAt = &t
		case res.State == models.AlertFiring:
			// Still firing: keep the original episode start.
			next.StartedAt = prev.StartedAt
		default:
			next.StartedAt = nil
		}

		out.UpdatedStates = append(out.UpdatedStates, next)

		if fromState == res.State {
			continue
		}

		out.Transitions = append(out.Transitions, models.AlertTransition{
			Key:      res.Key,
			From:     fromState,
			To:       res.State,
			Severity: res.Severity,
			Summary:  res.Summary,
		})

		event := models.AlertEvent{
			ID:            uuid.New().String(),
			Key:           res.Key,
			State:         res.State,
			At:            now,
			MaskedSummary: masking.String(res.Summary),
			MaskedSignals: maskSignals(res.Signals),
			WindowLabel:   window.Label(),
			RulesVersion:  RulesVersion,
		}
		out.Events = append(out.Events, event)
		out.EventIDByKey[res.Key] = event.ID
	}

	return out
}

func maskSignals(signals map[string]int) map[string]string {
	if len(signals) == 0 {
		return nil
	}
	masked := make(map[string]string, len(signals))
	for k, v := range signals {
		masked[k] = masking.String(fmt.Sprintf("%d", v))
	}
	return masked
}
