// Package engine runs the evaluation tick: aggregate signal counts,
// evaluate the rule catalog, diff against persisted alert states, and
// hand transitions to the notification dispatcher.
package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/alerting"
	"github.com/good-yellow-bee/opswatch/internal/cases"
	"github.com/good-yellow-bee/opswatch/internal/metrics"
	"github.com/good-yellow-bee/opswatch/internal/models"
	"github.com/good-yellow-bee/opswatch/internal/notifier"
	"github.com/good-yellow-bee/opswatch/internal/signal"
	"github.com/good-yellow-bee/opswatch/internal/storage"
)

// DefaultInterval is how often the background loop evaluates when no
// interval is configured.
const DefaultInterval = time.Minute

// ThresholdSource supplies the current signal thresholds. Satisfied by
// signal.ThresholdWatcher for hot reload and by StaticThresholds for
// fixed configuration and tests.
type ThresholdSource interface {
	Current() signal.Thresholds
}

// StaticThresholds is a ThresholdSource with a fixed value.
type StaticThresholds signal.Thresholds

func (t StaticThresholds) Current() signal.Thresholds { return signal.Thresholds(t) }

// TickResult is everything one evaluation produced.
type TickResult struct {
	Window      models.Window             `json:"window"`
	Rag         models.RagStatus          `json:"rag"`
	Results     []alerting.Result         `json:"results"`
	Transitions []models.AlertTransition  `json:"transitions"`
	Deliveries  []notifier.DeliveryResult `json:"deliveries"`
}

// Engine orchestrates one evaluation pipeline per tick. Concurrent
// ticks across processes are safe (last-write-wins per key, dedup
// bounds duplicate delivery); within one process a mutex serializes
// them so the background loop and the manual endpoint cannot
// interleave half-written state.
type Engine struct {
	mu sync.Mutex

	counts        *signal.CountsProvider
	thresholds    ThresholdSource
	states        storage.AlertStateRepository
	events        storage.AlertEventRepository
	dispatcher    *notifier.Dispatcher
	caseService   *cases.Service
	windowMinutes int
}

func New(counts *signal.CountsProvider, thresholds ThresholdSource, states storage.AlertStateRepository, events storage.AlertEventRepository, dispatcher *notifier.Dispatcher, caseService *cases.Service, windowMinutes int) *Engine {
	return &Engine{
		counts:        counts,
		thresholds:    thresholds,
		states:        states,
		events:        events,
		dispatcher:    dispatcher,
		caseService:   caseService,
		windowMinutes: windowMinutes,
	}
}

// Tick runs one full evaluation at the given time.
func (e *Engine) Tick(ctx context.Context, now time.Time) (*TickResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	metrics.EvaluationTicks.Inc()

	window := signal.Window(e.windowMinutes, now)
	counts, err := e.counts.Counts(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("aggregate signal counts: %w", err)
	}

	agg := signal.NewAggregator(e.thresholds.Current())
	rag := agg.ComputeRagStatus(counts, window, alerting.RulesVersion, now)

	results := alerting.EvaluateAll(alerting.EvalInput{Counts: counts, Rag: rag})

	prevList, err := e.states.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("load alert states: %w", err)
	}
	previous := make(map[string]models.AlertState, len(prevList))
	for _, st := range prevList {
		previous[st.Key] = *st
	}

	outcome := alerting.DetectTransitions(results, previous, window, now)

	for i := range outcome.Events {
		if err := e.events.Create(ctx, &outcome.Events[i]); err != nil {
			return nil, fmt.Errorf("record alert event %s: %w", outcome.Events[i].Key, err)
		}
	}
	for i := range outcome.UpdatedStates {
		if err := e.states.Upsert(ctx, &outcome.UpdatedStates[i]); err != nil {
			return nil, fmt.Errorf("upsert alert state %s: %w", outcome.UpdatedStates[i].Key, err)
		}
	}

	firing := 0
	resultsByKey := make(map[string]alerting.Result, len(results))
	for _, res := range results {
		resultsByKey[res.Key] = res
		if res.State == models.AlertFiring {
			firing++
		}
	}
	metrics.RulesFiring.Set(float64(firing))
	for _, tr := range outcome.Transitions {
		metrics.Transitions.WithLabelValues(tr.Key, string(tr.To)).Inc()
	}

	deliveries := e.dispatcher.Notify(ctx, outcome.Transitions, resultsByKey, previous, window, outcome.EventIDByKey, now)

	e.openCases(ctx, outcome.Transitions, now)

	return &TickResult{
		Window:      window,
		Rag:         rag,
		Results:     results,
		Transitions: outcome.Transitions,
		Deliveries:  deliveries,
	}, nil
}

// openCases auto-opens an incident case per newly firing rule.
// Best-effort: a failed case touch never fails the tick.
func (e *Engine) openCases(ctx context.Context, transitions []models.AlertTransition, now time.Time) {
	if e.caseService == nil {
		return
	}
	for _, tr := range transitions {
		if tr.To != models.AlertFiring {
			continue
		}
		if _, err := e.caseService.Touch(ctx, "alert-"+tr.Key, now); err != nil {
			log.Printf("Warning: auto-open case for %s failed: %v", tr.Key, err)
		}
	}
}

// Run evaluates on a fixed interval until the context is canceled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("alert evaluation loop started (interval %s)", interval)
	for {
		select {
		case <-ctx.Done():
			log.Printf("alert evaluation loop stopped")
			return
		case now := <-ticker.C:
			if _, err := e.Tick(ctx, now.UTC()); err != nil {
				log.Printf("evaluate alerts error: %v", err)
			}
		}
	}
}
