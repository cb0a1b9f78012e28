// Package status provides the RAG status read endpoint for dashboards.
package status

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/good-yellow-bee/opswatch/internal/alerting"
	"github.com/good-yellow-bee/opswatch/internal/api/middleware"
	"github.com/good-yellow-bee/opswatch/internal/signal"
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

	maxWindowMinutes = 24 * 60
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

// ThresholdSource supplies current signal thresholds.
type ThresholdSource interface {
	Current() signal.Thresholds
}

// Handler serves the aggregated RAG status.
type Handler struct {
	counts        *signal.CountsProvider
	thresholds    ThresholdSource
	windowMinutes int
}

// NewHandler creates a new status handler.
func NewHandler(counts *signal.CountsProvider, thresholds ThresholdSource, windowMinutes int) *Handler {
	return &Handler{counts: counts, thresholds: thresholds, windowMinutes: windowMinutes}
}

// GetRag computes the current RAG status over the recent window.
// Read-only: no alert state is touched.
func (h *Handler) GetRag(w http.ResponseWriter, r *http.Request) {
	minutes := h.windowMinutes
	if v := r.URL.Query().Get("window_minutes"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxWindowMinutes {
			jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "window_minutes must be between 1 and 1440")
			return
		}
		minutes = parsed
	}

	now := time.Now().UTC()
	window := signal.Window(minutes, now)

	counts, err := h.counts.Counts(r.Context(), window)
	if err != nil {
		log.Printf("rag status: count signals error: %v", err)
		jsonError(w, r, http.StatusInternalServerError, errCodeInternalError, "failed to aggregate signals")
		return
	}

	agg := signal.NewAggregator(h.thresholds.Current())
	rag := agg.ComputeRagStatus(counts, window, alerting.RulesVersion, now)

	jsonOK(w, r, rag)
}
