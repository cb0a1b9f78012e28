package api

import (
	"encoding/json"
	"net/http"

	"github.com/good-yellow-bee/opswatch/internal/api/middleware"
)

// Response is a standard API response wrapper. RequestID rides on
// every body so failures and results alike can be correlated.
type Response struct {
	Data      any    `json:"data,omitempty"`
	Error     *Error `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{Data: data, RequestID: middleware.GetRequestID(r.Context())}
	json.NewEncoder(w).Encode(resp)
}

// JSONError writes a JSON error response.
func JSONError(w http.ResponseWriter, r *http.Request, apiErr *Error) {
	requestID := middleware.GetRequestID(r.Context())

	// Copy before stamping the request id: the standard errors are
	// shared package vars.
	e := *apiErr
	e.RequestID = requestID

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)

	resp := Response{Error: &e, RequestID: requestID}
	json.NewEncoder(w).Encode(resp)
}

// Created writes a 201 Created response.
func Created(w http.ResponseWriter, r *http.Request, data any) {
	JSON(w, r, http.StatusCreated, data)
}

// OK writes a 200 OK response.
func OK(w http.ResponseWriter, r *http.Request, data any) {
	JSON(w, r, http.StatusOK, data)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
