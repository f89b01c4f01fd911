package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/metrics"
)

type contextKey string

const actorContextKey contextKey = "actor"

// ActorMiddleware extracts the authenticated user from the X-User-ID header
// set by the auth proxy in front of this service. Requests without a valid
// identity are rejected before reaching any handler.
func ActorMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-User-ID")
			if raw == "" {
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "missing X-User-ID header")
				return
			}

			actor, err := uuid.Parse(raw)
			if err != nil {
				logger.Debug("rejected request with malformed user id",
					zap.String("value", raw),
				)
				writeProblem(w, http.StatusUnauthorized, "unauthorized", "malformed X-User-ID header")
				return
			}

			ctx := context.WithValue(r.Context(), actorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFromContext returns the authenticated user set by ActorMiddleware.
func ActorFromContext(ctx context.Context) (uuid.UUID, bool) {
	actor, ok := ctx.Value(actorContextKey).(uuid.UUID)
	return actor, ok
}

// KeyFunc derives the rate-limit bucket key for a request.
type KeyFunc func(r *http.Request) string

// ActorKeyFunc buckets by authenticated user, falling back to remote address
// when the actor is missing (the actor middleware runs first, so this is
// only a safety net).
func ActorKeyFunc(r *http.Request) string {
	if actor, ok := ActorFromContext(r.Context()); ok {
		return actor.String()
	}
	return r.RemoteAddr
}

// IPKeyFunc buckets by client address.
func IPKeyFunc(r *http.Request) string {
	return r.RemoteAddr
}

// rateLimit wraps a handler with the sliding-window limiter. A nil limiter
// disables limiting.
func (h *Handler) rateLimit(keyFn KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFn(r)
			allowed, err := h.limiter.Allow(r.Context(), key)
			if err != nil {
				h.logger.Warn("rate limiter error, allowing request", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				metrics.RecordRateLimitRejection(key)
				h.logger.Warn("rate limit exceeded", zap.String("key", key))
				writeProblem(w, http.StatusTooManyRequests, "rate limit exceeded",
					"too many trigger requests, slow down")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeProblem is the middleware-level error writer (no handler receiver
// available there).
func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{Status: status, Title: title, Detail: detail})
}
