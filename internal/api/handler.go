// Package api implements the HTTP interface: alert lifecycle endpoints,
// emergency contact management, profile and admin routes.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/alert"
	"github.com/guardline/guardline/internal/db"
	"github.com/guardline/guardline/internal/dispatch"
	"github.com/guardline/guardline/internal/metrics"
	"github.com/guardline/guardline/internal/redis"
)

// AlertService is the lifecycle engine surface the handlers use.
type AlertService interface {
	Trigger(ctx context.Context, userID uuid.UUID, loc *alert.Location, method db.TriggerMethod) (*db.Alert, error)
	Resolve(ctx context.Context, alertID, actor uuid.UUID) (*db.Alert, error)
	Cancel(ctx context.Context, alertID, actor uuid.UUID) (*db.Alert, error)
	Escalate(ctx context.Context, alertID, actor uuid.UUID) (*db.Alert, error)
}

// DeliveryService accepts delivery-outcome callbacks.
type DeliveryService interface {
	UpdateDeliveryStatus(ctx context.Context, notificationID uuid.UUID, status db.DeliveryStatus, sentAt *time.Time) (*db.AlertNotification, error)
}

// Repository defines the read and CRUD operations the handlers use directly.
type Repository interface {
	GetAlert(ctx context.Context, id uuid.UUID) (*db.Alert, error)
	GetActiveAlertByUser(ctx context.Context, userID uuid.UUID) (*db.Alert, error)
	ListAlerts(ctx context.Context, status *db.AlertStatus, limit, offset int) ([]*db.Alert, error)
	ListAlertsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*db.Alert, error)
	GetAlertStats(ctx context.Context) (*db.AlertStats, error)

	ListNotificationsByAlert(ctx context.Context, alertID uuid.UUID) ([]*db.AlertNotification, error)
	ListPendingNotifications(ctx context.Context, limit int) ([]*db.AlertNotification, error)

	CreateContact(ctx context.Context, contact *db.EmergencyContact) error
	GetContact(ctx context.Context, id uuid.UUID) (*db.EmergencyContact, error)
	ListContactsByUser(ctx context.Context, userID uuid.UUID) ([]*db.EmergencyContact, error)
	UpdateContact(ctx context.Context, userID uuid.UUID, contact *db.EmergencyContact) error
	DeleteContact(ctx context.Context, userID, id uuid.UUID) error

	GetProfile(ctx context.Context, id uuid.UUID) (*db.Profile, error)
	UpsertProfile(ctx context.Context, profile *db.Profile) error
}

// Authorizer answers role questions for admin routes.
type Authorizer interface {
	HasAnyRole(ctx context.Context, userID uuid.UUID, roles ...db.Role) (bool, error)
}

// Health reports component readiness.
type Health interface {
	Health(ctx context.Context) error
}

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	alerts      AlertService
	deliveries  DeliveryService
	repo        Repository
	authz       Authorizer
	idempotency *redis.IdempotencyStore
	limiter     *redis.RateLimiter
	dbHealth    Health
	redisHealth Health
	logger      *zap.Logger
}

// Config wires handler dependencies. idempotency, limiter and the health
// checks may be nil.
type Config struct {
	Alerts      AlertService
	Deliveries  DeliveryService
	Repo        Repository
	Authz       Authorizer
	Idempotency *redis.IdempotencyStore
	Limiter     *redis.RateLimiter
	DBHealth    Health
	RedisHealth Health
	Logger      *zap.Logger
}

// NewHandler creates the HTTP handler set.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		alerts:      cfg.Alerts,
		deliveries:  cfg.Deliveries,
		repo:        cfg.Repo,
		authz:       cfg.Authz,
		idempotency: cfg.Idempotency,
		limiter:     cfg.Limiter,
		dbHealth:    cfg.DBHealth,
		redisHealth: cfg.RedisHealth,
		logger:      cfg.Logger,
	}
}

// Routes builds the chi router with all middleware and routes.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(metrics.Middleware)

	r.Get("/healthz", h.handleLiveness)
	r.Get("/readyz", h.handleReadiness)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(ActorMiddleware(h.logger))

		r.Route("/alerts", func(r chi.Router) {
			r.With(h.rateLimit(ActorKeyFunc)).Post("/", h.handleTriggerAlert)
			r.Get("/", h.handleListAlerts)
			r.Get("/active", h.handleGetActiveAlert)
			r.Get("/{id}", h.handleGetAlert)
			r.Post("/{id}/resolve", h.handleResolveAlert)
			r.Post("/{id}/cancel", h.handleCancelAlert)
			r.Post("/{id}/escalate", h.handleEscalateAlert)
			r.Get("/{id}/notifications", h.handleListAlertNotifications)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/pending", h.handleListPendingNotifications)
			r.Patch("/{id}/status", h.handleUpdateDeliveryStatus)
		})

		r.Route("/contacts", func(r chi.Router) {
			r.Post("/", h.handleCreateContact)
			r.Get("/", h.handleListContacts)
			r.Put("/{id}", h.handleUpdateContact)
			r.Delete("/{id}", h.handleDeleteContact)
		})

		r.Route("/profiles", func(r chi.Router) {
			r.Get("/me", h.handleGetProfile)
			r.Put("/me", h.handleUpsertProfile)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireOperator)
			r.Get("/stats", h.handleAdminStats)
		})
	})

	return r
}

func (h *Handler) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}
	healthy := true

	if h.dbHealth != nil {
		if err := h.dbHealth.Health(r.Context()); err != nil {
			checks["database"] = err.Error()
			healthy = false
		} else {
			checks["database"] = "ok"
		}
	}
	if h.redisHealth != nil {
		if err := h.redisHealth.Health(r.Context()); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, checks)
}

// requireOperator guards admin routes.
func (h *Handler) requireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor identity")
			return
		}

		isOp, err := h.authz.HasAnyRole(r.Context(), actor, db.RoleAdmin, db.RoleModerator)
		if err != nil {
			h.writeInternalError(w, r, err)
			return
		}
		if !isOp {
			h.writeError(w, r, http.StatusForbidden, "forbidden", "operator role required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// problem is the error response body (problem+json style).
type problem struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Status: status, Title: title, Detail: detail}); err != nil {
		h.logger.Error("failed to write error response", zap.Error(err))
	}
}

func (h *Handler) writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Error("internal error",
		zap.Error(err),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
	)
	h.writeError(w, r, http.StatusInternalServerError, "internal error", "")
}

// mapError translates domain errors to HTTP responses.
func (h *Handler) mapError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, alert.ErrActiveAlertExists):
		h.writeError(w, r, http.StatusConflict, "active alert exists",
			"resolve your existing alert before starting a new one")
	case errors.Is(err, alert.ErrInvalidTransition):
		h.writeError(w, r, http.StatusConflict, "invalid transition", err.Error())
	case errors.Is(err, alert.ErrNotAuthorized):
		h.writeError(w, r, http.StatusForbidden, "forbidden", "not allowed to perform this transition")
	case errors.Is(err, alert.ErrAlertNotFound):
		h.writeError(w, r, http.StatusNotFound, "alert not found", "")
	case errors.Is(err, alert.ErrProfileNotFound):
		h.writeError(w, r, http.StatusNotFound, "profile not found", "")
	case errors.Is(err, db.ErrNotFound):
		h.writeError(w, r, http.StatusNotFound, "not found", "")
	case errors.Is(err, dispatch.ErrInvalidDeliveryStatus):
		h.writeError(w, r, http.StatusBadRequest, "invalid delivery status", err.Error())
	default:
		h.writeInternalError(w, r, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	return uuid.Parse(chi.URLParam(r, name))
}
