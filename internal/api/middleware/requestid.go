// Package middleware provides HTTP middleware for the API.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is a private type for context values set by middleware.
type contextKey string

const requestIDKey contextKey = "request_id"

// requestIDHeader carries the id back to callers and accepts one from
// trusted upstream proxies so support correlation spans services.
const requestIDHeader = "X-Request-ID"

// GetRequestID returns the request id from context, or "".
func GetRequestID(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RequestID assigns every request an id, reusing an upstream-supplied
// one when present.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.New().String()
		}

		w.Header().Set(requestIDHeader, requestID)
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
