package notifier

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/opswatch/internal/alerting"
	"github.com/good-yellow-bee/opswatch/internal/masking"
	"github.com/good-yellow-bee/opswatch/internal/metrics"
	"github.com/good-yellow-bee/opswatch/internal/models"
	"github.com/good-yellow-bee/opswatch/internal/storage"
)

// DefaultCooldown is the minimum time between duplicate notifications
// for an unchanged firing condition.
const DefaultCooldown = 30 * time.Minute

// Skip reasons recorded on non-attempted deliveries.
const (
	ReasonMissingWebhook       = "missing_webhook"
	ReasonCooldown             = "cooldown"
	ReasonSnoozed              = "snoozed"
	ReasonResolutionSuppressed = "resolution_suppressed"
)

// Options configures the dispatcher.
type Options struct {
	// IncludeResolutions also delivers firing->ok transitions. Some
	// operators only want to know about onset.
	IncludeResolutions bool
	// Cooldown is the dedup window for unchanged firing payloads.
	Cooldown time.Duration
}

// DeliveryResult describes the dispatcher's outcome for one transition.
type DeliveryResult struct {
	Key       string                `json:"key"`
	EventID   string                `json:"event_id,omitempty"`
	Attempted bool                  `json:"attempted"`
	Status    models.DeliveryStatus `json:"status,omitempty"`
	Reason    string                `json:"reason,omitempty"`
}

// Dispatcher routes alert transitions to the webhook sink, recording
// one delivery row and one audit entry per attempt.
type Dispatcher struct {
	sink   *Sink
	opts   Options
	ack    *AckTokenService
	states storage.AlertStateRepository
	rows   storage.DeliveryRepository
	audit  storage.AuditRepository
}

// NewDispatcher creates a dispatcher. sink may be nil when no webhook
// is configured; transitions are then recorded but never sent.
func NewDispatcher(sink *Sink, ack *AckTokenService, states storage.AlertStateRepository, rows storage.DeliveryRepository, audit storage.AuditRepository, opts Options) *Dispatcher {
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	return &Dispatcher{
		sink:   sink,
		opts:   opts,
		ack:    ack,
		states: states,
		rows:   rows,
		audit:  audit,
	}
}

// Notify processes the tick's transitions. Deduplication: a firing
// transition whose payload hash matches the stored one inside the
// cooldown window is skipped without an attempt; a changed hash still
// delivers. Notification metadata advances after any attempt,
// regardless of outcome, so cooldown means "we tried", not "we
// succeeded".
func (d *Dispatcher) Notify(ctx context.Context, transitions []models.AlertTransition, results map[string]alerting.Result, previous map[string]models.AlertState, window models.Window, eventIDByKey map[string]string, now time.Time) []DeliveryResult {
	out := make([]DeliveryResult, 0, len(transitions))

	for _, tr := range transitions {
		eventID := eventIDByKey[tr.Key]
		res := results[tr.Key]
		prev, havePrev := previous[tr.Key]

		if tr.Resolution() && !d.opts.IncludeResolutions {
			out = append(out, DeliveryResult{Key: tr.Key, EventID: eventID, Reason: ReasonResolutionSuppressed})
			continue
		}

		if havePrev && prev.Snoozed(now) {
			metrics.NotificationsSkipped.WithLabelValues(ReasonSnoozed).Inc()
			out = append(out, DeliveryResult{Key: tr.Key, EventID: eventID, Reason: ReasonSnoozed})
			continue
		}

		payloadHash := alerting.PayloadHash(res)

		if tr.To == models.AlertFiring && havePrev && prev.LastNotifiedAt != nil {
			inCooldown := now.Sub(*prev.LastNotifiedAt) < d.opts.Cooldown
			if inCooldown && prev.LastPayloadHash == payloadHash {
				metrics.NotificationsSkipped.WithLabelValues(ReasonCooldown).Inc()
				out = append(out, DeliveryResult{Key: tr.Key, EventID: eventID, Reason: ReasonCooldown})
				continue
			}
		}

		if d.sink == nil || !d.sink.config.Configured() {
			// Unmet precondition, not a dispatcher failure. Still
			// leaves an auditable record.
			d.record(ctx, &models.AlertDelivery{
				ID:           uuid.New().String(),
				EventID:      eventID,
				Status:       models.DeliveryFailed,
				At:           now,
				MaskedReason: ReasonMissingWebhook,
				WindowLabel:  window.Label(),
			})
			metrics.NotificationsSkipped.WithLabelValues(ReasonMissingWebhook).Inc()
			out = append(out, DeliveryResult{Key: tr.Key, EventID: eventID, Reason: ReasonMissingWebhook})
			continue
		}

		out = append(out, d.attempt(ctx, tr, res, eventID, payloadHash, window, now))
	}

	return out
}

// attempt performs one delivery, writing the optimistic "sent" row
// before dispatch so a crash mid-flight still leaves an auditable
// attempt.
func (d *Dispatcher) attempt(ctx context.Context, tr models.AlertTransition, res alerting.Result, eventID, payloadHash string, window models.Window, now time.Time) DeliveryResult {
	delivery := &models.AlertDelivery{
		ID:          uuid.New().String(),
		EventID:     eventID,
		Status:      models.DeliverySent,
		At:          now,
		WindowLabel: window.Label(),
	}
	d.record(ctx, delivery)

	payload := d.buildPayload(tr, res, eventID, window, now)

	sendCtx, cancel := context.WithTimeout(ctx, d.sink.httpClient.Timeout)
	err := d.sink.Send(sendCtx, payload)
	cancel()

	status := models.DeliveryDelivered
	reason := ""
	if err != nil {
		status = models.DeliveryFailed
		reason = masking.Reason(err)
	}

	if fErr := d.rows.Finalize(ctx, delivery.ID, status, reason); fErr != nil {
		log.Printf("notify: finalize delivery %s: %v", delivery.ID, fErr)
	}

	// Cooldown semantics track attempts, not successes.
	if sErr := d.states.RecordNotifyAttempt(ctx, tr.Key, now, payloadHash); sErr != nil {
		log.Printf("notify: record attempt for %s: %v", tr.Key, sErr)
	}

	d.auditNote(ctx, eventID, tr.Key, string(status), reason, now)

	metrics.NotificationAttempts.WithLabelValues(string(status)).Inc()

	return DeliveryResult{
		Key:       tr.Key,
		EventID:   eventID,
		Attempted: true,
		Status:    status,
		Reason:    reason,
	}
}

func (d *Dispatcher) buildPayload(tr models.AlertTransition, res alerting.Result, eventID string, window models.Window, now time.Time) *Payload {
	signals := make(map[string]string, len(res.Signals))
	for k, v := range res.Signals {
		signals[k] = masking.Truncate(masking.String(strconv.Itoa(v)), 64)
	}
	actions := make([]string, 0, len(res.Actions))
	for _, a := range res.Actions {
		actions = append(actions, a.Key)
	}

	p := &Payload{
		EventID:     eventID,
		Key:         tr.Key,
		State:       string(tr.To),
		Severity:    string(tr.Severity),
		Summary:     masking.String(tr.Summary),
		Signals:     signals,
		Actions:     actions,
		WindowFrom:  window.From,
		WindowTo:    window.To,
		WindowLabel: window.Label(),
		SentAt:      now,
	}

	if d.ack != nil && eventID != "" {
		token, err := d.ack.Issue(eventID, now)
		if err != nil {
			log.Printf("notify: issue ack token for %s: %v", eventID, err)
		} else {
			p.AckURL = ackURL(d.sink.config.AckBaseURL, eventID, token)
		}
	}

	return p
}

// record writes a delivery row, best-effort.
func (d *Dispatcher) record(ctx context.Context, delivery *models.AlertDelivery) {
	if err := d.rows.Create(ctx, delivery); err != nil {
		log.Printf("notify: record delivery for event %s: %v", delivery.EventID, err)
	}
}

// auditNote appends an audit entry, best-effort; audit failures never
// abort notification.
func (d *Dispatcher) auditNote(ctx context.Context, eventID, key, status, reason string, now time.Time) {
	if d.audit == nil {
		return
	}
	entry := &models.AuditEntry{
		ID:        uuid.New().String(),
		Kind:      "alert.delivery",
		RequestID: eventID,
		Detail:    key + " " + status + " " + reason,
		CreatedAt: now,
	}
	if err := d.audit.Append(ctx, entry); err != nil {
		log.Printf("notify: audit append: %v", err)
	}
}
