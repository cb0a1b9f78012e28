// Package billing provides the webhook-status endpoint for support
// tooling.
package billing

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/opswatch/internal/api/middleware"
	"github.com/good-yellow-bee/opswatch/internal/billing"
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

	maxRequestIDLen = 128
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

// Handler serves billing correlation snapshots.
type Handler struct {
	status *billing.StatusService
}

// NewHandler creates a new billing handler.
func NewHandler(status *billing.StatusService) *Handler {
	return &Handler{status: status}
}

// WebhookStatus returns the reconstructed timeline, delay-state
// diagnosis, and best-effort provider snapshot for one request id. A
// failed provider lookup degrades to a partial result with an error
// code; it never fails the request.
func (h *Handler) WebhookStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	if requestID == "" || len(requestID) > maxRequestIDLen {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "invalid request id")
		return
	}

	status, err := h.status.Snapshot(r.Context(), requestID, time.Now().UTC())
	if err != nil {
		log.Printf("webhook status for %s error: %v", requestID, err)
		jsonError(w, r, http.StatusInternalServerError, errCodeInternalError, "failed to assemble webhook status")
		return
	}

	jsonOK(w, r, status)
}
