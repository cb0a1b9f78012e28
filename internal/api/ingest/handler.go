// Package ingest accepts operational event rows and ledger entries
// from external collaborators. Bodies arrive pre-masked; this layer
// masks again defensively before storing.
package ingest

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/good-yellow-bee/opswatch/internal/api/middleware"
	"github.com/good-yellow-bee/opswatch/internal/masking"
	"github.com/good-yellow-bee/opswatch/internal/models"
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
	errCodeInternalError = "INTERNAL_ERROR"

	maxBatchSize = 1000
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

func jsonCreated(w http.ResponseWriter, r *http.Request, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(apiResponse{Data: data, RequestID: middleware.GetRequestID(r.Context())})
}

// Handler handles event and ledger ingestion.
type Handler struct {
	events storage.EventStorage
	ledger storage.LedgerRepository
}

// NewHandler creates a new ingest handler.
func NewHandler(events storage.EventStorage, ledger storage.LedgerRepository) *Handler {
	return &Handler{events: events, ledger: ledger}
}

// EventInput is one inbound activity event. Strict decoding: unknown
// or malformed shapes are rejected at the boundary rather than
// threaded through the evaluators.
type EventInput struct {
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	RequestID  string    `json:"request_id"`
	Route      string    `json:"route"`
	Body       string    `json:"body"`
}

// validEventTypes is the accepted shape vocabulary.
var validEventTypes = map[string]bool{
	models.EventTypeWebhookFailure:  true,
	models.EventTypeWebhookReceived: true,
	models.EventTypeWebhookError:    true,
	models.EventTypeCheckoutStarted: true,
	models.EventTypeCheckoutSuccess: true,
	models.EventTypeCheckoutError:   true,
	models.EventTypePortalOpen:      true,
	models.EventTypePortalError:     true,
	models.EventTypeRateLimitHit:    true,
}

// Events inserts a batch of activity events.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	var inputs []EventInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&inputs); err != nil {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if len(inputs) == 0 || len(inputs) > maxBatchSize {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "batch must contain between 1 and 1000 events")
		return
	}

	now := time.Now().UTC()
	events := make([]*models.ActivityEvent, 0, len(inputs))
	for i, in := range inputs {
		if !validEventTypes[in.Type] {
			jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "unknown event type at index "+strconv.Itoa(i))
			return
		}
		occurredAt := in.OccurredAt
		if occurredAt.IsZero() {
			occurredAt = now
		}
		events = append(events, &models.ActivityEvent{
			ID:         uuid.New().String(),
			Type:       in.Type,
			OccurredAt: occurredAt.UTC(),
			RequestID:  in.RequestID,
			Route:      in.Route,
			MaskedBody: masking.String(in.Body),
		})
	}

	if err := h.events.Insert(r.Context(), events); err != nil {
		log.Printf("insert activity events error: %v", err)
		jsonError(w, r, http.StatusInternalServerError, errCodeInternalError, "failed to store events")
		return
	}

	jsonCreated(w, r, map[string]int{"inserted": len(events)})
}

// LedgerInput is one inbound credit-ledger row.
type LedgerInput struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}

// Ledger inserts one credit-ledger row for a request.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	if requestID == "" {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "request id is required")
		return
	}

	var in LedgerInput
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if in.Delta == 0 {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "delta must be non-zero")
		return
	}

	entry := &models.LedgerEntry{
		Delta:     in.Delta,
		Reason:    masking.String(in.Reason),
		CreatedAt: time.Now().UTC(),
	}
	if err := h.ledger.Insert(r.Context(), requestID, entry); err != nil {
		log.Printf("insert ledger row for %s error: %v", requestID, err)
		jsonError(w, r, http.StatusInternalServerError, errCodeInternalError, "failed to store ledger row")
		return
	}

	jsonCreated(w, r, entry)
}
