// Package alerts provides HTTP handlers for the alert dashboard model,
// evaluation ticks, snooze, and acknowledgement endpoints.
package alerts

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/good-yellow-bee/opswatch/internal/alerting"
	"github.com/good-yellow-bee/opswatch/internal/api/middleware"
	"github.com/good-yellow-bee/opswatch/internal/engine"
	"github.com/good-yellow-bee/opswatch/internal/models"
	"github.com/good-yellow-bee/opswatch/internal/notifier"
	"github.com/good-yellow-bee/opswatch/internal/storage"
)

// Response helpers (local to avoid import cycle with api package)

type apiError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
	Status    int    `json:"-"`
}

type apiResponse struct {
	Data      interface{} `json:"data,omitempty"`
	Error     *apiError   `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

const (
	errCodeBadRequest    = "BAD_REQUEST"
	errCodeUnauthorized  = "UNAUTHORIZED"
	errCodeNotFound      = "NOT_FOUND"
	errCodeInternalError = "INTERNAL_ERROR"

	recentEventLimit = 50
	maxSnoozeMinutes = 7 * 24 * 60
)

func jsonError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID := middleware.GetRequestID(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(apiResponse{
		Error:     &apiError{Code: code, Message: message, RequestID: requestID},
		RequestID: requestID,
	})
}

func jsonOK(w http.ResponseWriter, r *http.Request, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(apiResponse{Data: data, RequestID: middleware.GetRequestID(r.Context())})
}

// Handler handles alert endpoints.
type Handler struct {
	engine     *engine.Engine
	states     storage.AlertStateRepository
	events     storage.AlertEventRepository
	deliveries storage.DeliveryRepository
	audit      storage.AuditRepository
	ack        *notifier.AckTokenService
}

// NewHandler creates a new alerts handler.
func NewHandler(eng *engine.Engine, states storage.AlertStateRepository, events storage.AlertEventRepository, deliveries storage.DeliveryRepository, audit storage.AuditRepository, ack *notifier.AckTokenService) *Handler {
	return &Handler{
		engine:     eng,
		states:     states,
		events:     events,
		deliveries: deliveries,
		audit:      audit,
		ack:        ack,
	}
}

// EventModel is a transition event with its delivery attempts.
type EventModel struct {
	*models.AlertEvent
	Attempts   int                     `json:"attempts"`
	Deliveries []*models.AlertDelivery `json:"deliveries,omitempty"`
}

// OpsAlertsModel is the dashboard read model: current states, recent
// transition events with delivery attempts, and the snooze map.
type OpsAlertsModel struct {
	States       []*models.AlertState `json:"states"`
	Events       []*EventModel        `json:"events"`
	Snoozes      map[string]time.Time `json:"snoozes,omitempty"`
	RulesVersion string               `json:"rules_version"`
	GeneratedAt  time.Time            `json:"generated_at"`
}

// List returns the dashboard model.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := time.Now().UTC()

	states, err := h.states.List(ctx)
	if err != nil {
		log.Printf("list alert states error: %v", err)
		jsonError(w, r, http.StatusInternalServerError, errCodeInternalError, "failed to load alert states")
		return
	}

	events, err := h.events.ListRecent(ctx, recentEventLimit)
	if err != nil {
		log.Printf("list alert events error: %v", err)
		jsonError(w, r, http.StatusInternalServerError, errCodeInternalError, "failed to load alert events")
		return
	}

	model := &OpsAlertsModel{
		States:       states,
		Snoozes:      make(map[string]time.Time),
		RulesVersion: alerting.RulesVersion,
		GeneratedAt:  now,
	}
	for _, st := range states {
		if st.Snoozed(now) {
			model.Snoozes[st.Key] = *st.SnoozedUntil
		}
	}

	for _, ev := range events {
		rows, err := h.deliveries.ListByEvent(ctx, ev.ID)
		if err != nil {
			log.Printf("list deliveries for event %s error: %v", ev.ID, err)
			jsonError(w, r, http.StatusInternalServerError, errCodeInternalError, "failed to load deliveries")
			return
		}
		model.Events = append(model.Events, &EventModel{
			AlertEvent: ev,
			Attempts:   len(rows),
			Deliveries: rows,
		})
	}

	jsonOK(w, r, model)
}

// Evaluate runs one evaluation tick immediately and returns the
// transitions and delivery results it produced.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.Tick(r.Context(), time.Now().UTC())
	if err != nil {
		log.Printf("evaluate alerts error: %v", err)
		jsonError(w, r, http.StatusInternalServerError, errCodeInternalError, "evaluation failed")
		return
	}
	jsonOK(w, r, result)
}

// SnoozeRequest sets or clears a rule's snooze.
type SnoozeRequest struct {
	// Minutes to snooze from now; 0 clears the snooze.
	Minutes int `json:"minutes"`
}

// Snooze sets a per-rule snooze. Snoozed rules still evaluate and
// record transitions; only notification is suppressed.
func (h *Handler) Snooze(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !validRuleKey(key) {
		jsonError(w, r, http.StatusNotFound, errCodeNotFound, "unknown rule key")
		return
	}

	var req SnoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if req.Minutes < 0 || req.Minutes > maxSnoozeMinutes {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "minutes must be between 0 and 10080")
		return
	}

	var until *time.Time
	if req.Minutes > 0 {
		t := time.Now().UTC().Add(time.Duration(req.Minutes) * time.Minute)
		until = &t
	}

	if err := h.states.SetSnooze(r.Context(), key, until); err != nil {
		log.Printf("set snooze for %s error: %v", key, err)
		jsonError(w, r, http.StatusInternalServerError, errCodeInternalError, "failed to set snooze")
		return
	}

	actor := middleware.GetActor(r.Context())
	h.auditNote(r, "alert.snooze", key, actor.UserID)

	jsonOK(w, r, map[string]any{"key": key, "snoozed_until": until})
}

// Ack records a manual acknowledgement of a transition event. The
// signed token from the notification payload is the authorization.
func (h *Handler) Ack(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	token := r.URL.Query().Get("token")
	if token == "" {
		jsonError(w, r, http.StatusUnauthorized, errCodeUnauthorized, "ack token required")
		return
	}
	eventID, err := h.ack.Verify(token)
	if err != nil || eventID != id {
		jsonError(w, r, http.StatusUnauthorized, errCodeUnauthorized, "invalid ack token")
		return
	}

	actorID := middleware.GetActor(r.Context()).UserID
	if actorID == "" {
		actorID = "ack-link"
	}

	if err := h.events.Acknowledge(r.Context(), id, actorID, time.Now().UTC()); err != nil {
		if err == storage.ErrNotFound {
			jsonError(w, r, http.StatusNotFound, errCodeNotFound, "alert event not found")
			return
		}
		log.Printf("acknowledge event %s error: %v", id, err)
		jsonError(w, r, http.StatusInternalServerError, errCodeInternalError, "failed to acknowledge")
		return
	}

	h.auditNote(r, "alert.ack", id, actorID)

	event, err := h.events.GetByID(r.Context(), id)
	if err != nil || event == nil {
		jsonOK(w, r, map[string]string{"id": id, "status": "acknowledged"})
		return
	}
	jsonOK(w, r, event)
}

func (h *Handler) auditNote(r *http.Request, kind, subject, actorID string) {
	if h.audit == nil {
		return
	}
	entry := &models.AuditEntry{
		ID:        uuid.New().String(),
		Kind:      kind,
		RequestID: middleware.GetRequestID(r.Context()),
		ActorID:   actorID,
		Detail:    subject,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.audit.Append(r.Context(), entry); err != nil {
		log.Printf("Warning: audit append failed for %s: %v", kind, err)
	}
}

func validRuleKey(key string) bool {
	for _, rule := range alerting.Catalog() {
		if rule.Key == key {
			return true
		}
	}
	return false
}
