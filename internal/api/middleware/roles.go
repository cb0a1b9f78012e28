package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/good-yellow-bee/opswatch/internal/models"
)

const actorKey contextKey = "actor"

// Headers carrying already-resolved identity facts from the upstream
// auth layer. This core never makes authentication decisions itself;
// the deployment must ensure these headers only arrive from the
// trusted proxy.
const (
	actorHeader = "X-Opswatch-User"
	opsHeader   = "X-Opswatch-Ops"
	adminHeader = "X-Opswatch-Admin"
)

// GetActor returns the actor resolved for this request. The zero Actor
// carries no roles.
func GetActor(ctx context.Context) models.Actor {
	if v := ctx.Value(actorKey); v != nil {
		if a, ok := v.(models.Actor); ok {
			return a
		}
	}
	return models.Actor{}
}

// ResolveActor reads the upstream identity headers into an Actor.
// Admin implies ops.
func ResolveActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := models.Actor{
			UserID:  r.Header.Get(actorHeader),
			IsOps:   r.Header.Get(opsHeader) == "true",
			IsAdmin: r.Header.Get(adminHeader) == "true",
		}
		if actor.IsAdmin {
			actor.IsOps = true
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOps rejects requests whose actor lacks the ops role.
func RequireOps(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := GetActor(r.Context())
		if actor.UserID == "" {
			jsonForbidden(w, r, "UNAUTHORIZED", "identity not resolved", http.StatusUnauthorized)
			return
		}
		if !actor.IsOps {
			jsonForbidden(w, r, "FORBIDDEN", "ops role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests whose actor lacks the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := GetActor(r.Context())
		if actor.UserID == "" {
			jsonForbidden(w, r, "UNAUTHORIZED", "identity not resolved", http.StatusUnauthorized)
			return
		}
		if !actor.IsAdmin {
			jsonForbidden(w, r, "FORBIDDEN", "admin role required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jsonForbidden writes an auth error response. Local to avoid an
// import cycle with the api package.
func jsonForbidden(w http.ResponseWriter, r *http.Request, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":       code,
			"message":    message,
			"request_id": GetRequestID(r.Context()),
		},
		"request_id": GetRequestID(r.Context()),
	})
}
