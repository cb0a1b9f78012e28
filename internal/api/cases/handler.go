// Package cases provides HTTP handlers for the incident-case queue.
package cases

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/opswatch/internal/api/middleware"
	"github.com/good-yellow-bee/opswatch/internal/cases"
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
	errCodeForbidden     = "FORBIDDEN"
	errCodeNotFound      = "NOT_FOUND"
	errCodeCaseConflict  = "CASE_CONFLICT"
	errCodeInternalError = "INTERNAL_ERROR"

	maxRequestIDLen      = 128
	defaultReasonWindow  = 60 // minutes
	reasonEventLimit     = 100
	recentAlertThreshold = 15 * time.Minute
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

// Handler handles case endpoints.
type Handler struct {
	service     *cases.Service
	events      storage.EventStorage
	alertEvents storage.AlertEventRepository
}

// NewHandler creates a new cases handler.
func NewHandler(service *cases.Service, events storage.EventStorage, alertEvents storage.AlertEventRepository) *Handler {
	return &Handler{service: service, events: events, alertEvents: alertEvents}
}

// CaseModel is a case with its computed reason.
type CaseModel struct {
	*models.Case
	Reason *models.CaseReason `json:"reason,omitempty"`
}

// List returns cases for the incident queue.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := storage.CaseFilter{Limit: 100}

	if v := r.URL.Query().Get("status"); v != "" {
		status, ok := models.ParseCaseStatus(v)
		if !ok {
			jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "unknown status")
			return
		}
		filter.Status = status
	}
	filter.AssignedTo = r.URL.Query().Get("assigned_to")
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 || limit > 500 {
			jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "limit must be between 1 and 500")
			return
		}
		filter.Limit = limit
	}

	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		log.Printf("list cases error: %v", err)
		jsonError(w, r, http.StatusInternalServerError, errCodeInternalError, "failed to list cases")
		return
	}

	jsonOK(w, r, map[string]any{"items": list, "total": len(list)})
}

// TouchRequest opens or refreshes a case.
type TouchRequest struct {
	RequestID string `json:"request_id"`
}

// Touch creates the case on first contact or refreshes it.
func (h *Handler) Touch(w http.ResponseWriter, r *http.Request) {
	var req TouchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if req.RequestID == "" || len(req.RequestID) > maxRequestIDLen {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "request_id is required")
		return
	}

	c, err := h.service.Touch(r.Context(), req.RequestID, time.Now().UTC())
	if err != nil {
		log.Printf("touch case %s error: %v", req.RequestID, err)
		jsonError(w, r, http.StatusInternalServerError, errCodeInternalError, "failed to touch case")
		return
	}
	jsonOK(w, r, c)
}

// Get returns one case with its computed reason.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	c, err := h.service.Get(r.Context(), requestID)
	if err != nil {
		h.writeServiceError(w, r, requestID, err)
		return
	}

	windowMinutes := defaultReasonWindow
	if v := r.URL.Query().Get("window_minutes"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 24*60 {
			jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "window_minutes must be between 1 and 1440")
			return
		}
		windowMinutes = parsed
	}

	reason := h.computeReason(r, requestID, windowMinutes)
	jsonOK(w, r, &CaseModel{Case: c, Reason: reason})
}

// Claim assigns the case to the calling actor.
func (h *Handler) Claim(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	actor := middleware.GetActor(r.Context())

	c, err := h.service.Claim(r.Context(), requestID, actor, time.Now().UTC())
	if err != nil {
		h.writeServiceError(w, r, requestID, err)
		return
	}
	jsonOK(w, r, c)
}

// Release clears the case assignment.
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	actor := middleware.GetActor(r.Context())

	c, err := h.service.Release(r.Context(), requestID, actor, time.Now().UTC())
	if err != nil {
		h.writeServiceError(w, r, requestID, err)
		return
	}
	jsonOK(w, r, c)
}

// StatusRequest changes a case's lifecycle status.
type StatusRequest struct {
	Status string `json:"status"`
}

// SetStatus moves the case through its lifecycle.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	status, ok := models.ParseCaseStatus(req.Status)
	if !ok {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "unknown status")
		return
	}

	actor := middleware.GetActor(r.Context())
	c, err := h.service.SetStatus(r.Context(), requestID, status, actor, time.Now().UTC())
	if err != nil {
		h.writeServiceError(w, r, requestID, err)
		return
	}
	jsonOK(w, r, c)
}

// PriorityRequest changes a case's priority.
type PriorityRequest struct {
	Priority string `json:"priority"`
}

// SetPriority changes the case priority.
func (h *Handler) SetPriority(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")

	var req PriorityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	priority, ok := models.ParseCasePriority(req.Priority)
	if !ok {
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "unknown priority")
		return
	}

	actor := middleware.GetActor(r.Context())
	c, err := h.service.SetPriority(r.Context(), requestID, priority, actor, time.Now().UTC())
	if err != nil {
		h.writeServiceError(w, r, requestID, err)
		return
	}
	jsonOK(w, r, c)
}

// computeReason derives the case reason from the freshest signals.
// Best-effort: lookup failures degrade to an absent reason.
func (h *Handler) computeReason(r *http.Request, requestID string, windowMinutes int) *models.CaseReason {
	ctx := r.Context()
	now := time.Now().UTC()

	var activity []*models.ActivityEvent
	if h.events != nil {
		var err error
		activity, err = h.events.ListByRequestID(ctx, requestID, reasonEventLimit)
		if err != nil {
			log.Printf("Warning: list events for case %s failed: %v", requestID, err)
		}
	}

	var alertEvents []*models.AlertEvent
	if h.alertEvents != nil {
		var err error
		alertEvents, err = h.alertEvents.ListRecent(ctx, reasonEventLimit)
		if err != nil {
			log.Printf("Warning: list alert events for case %s failed: %v", requestID, err)
		}
	}

	sources := cases.GatherReasonSources(activity, alertEvents, recentAlertThreshold, now)
	windowStart := now.Add(-time.Duration(windowMinutes) * time.Minute)
	reason := cases.ResolveCaseReason(sources, windowStart, now)
	return &reason
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, requestID string, err error) {
	var conflict *cases.ConflictError
	switch {
	case errors.As(err, &conflict):
		jsonError(w, r, http.StatusConflict, errCodeCaseConflict, conflict.Error())
	case errors.Is(err, cases.ErrForbidden):
		jsonError(w, r, http.StatusForbidden, errCodeForbidden, "not authorized for this case operation")
	case errors.Is(err, cases.ErrInvalidTransition):
		jsonError(w, r, http.StatusBadRequest, errCodeBadRequest, "invalid status transition")
	case errors.Is(err, storage.ErrNotFound):
		jsonError(w, r, http.StatusNotFound, errCodeNotFound, "case not found")
	default:
		log.Printf("case %s operation error: %v", requestID, err)
		jsonError(w, r, http.StatusInternalServerError, errCodeInternalError, "case operation failed")
	}
}
