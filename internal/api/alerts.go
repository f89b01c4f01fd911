package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/alert"
	"github.com/guardline/guardline/internal/db"
	"github.com/guardline/guardline/internal/redis"
)

type triggerAlertRequest struct {
	Latitude      *float64 `json:"latitude"`
	Longitude     *float64 `json:"longitude"`
	TriggerMethod string   `json:"trigger_method"`
}

// handleTriggerAlert starts an SOS for the calling user. An Idempotency-Key
// header makes retries safe: a repeat within the TTL returns the original
// alert instead of hitting the active-alert conflict.
func (h *Handler) handleTriggerAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor identity")
		return
	}

	var req triggerAlertRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid request body", err.Error())
			return
		}
	}

	idemKey := r.Header.Get("Idempotency-Key")
	if idemKey != "" && h.idempotency != nil {
		result, err := h.idempotency.CheckOrReserve(r.Context(), actor, idemKey)
		if err != nil {
			if errors.Is(err, redis.ErrDuplicateInFlight) {
				h.writeError(w, r, http.StatusConflict, "duplicate request",
					"a request with this idempotency key is being processed")
				return
			}
			// Redis trouble never blocks an SOS.
			h.logger.Warn("idempotency check failed, proceeding", zap.Error(err))
		} else if result != nil {
			a, err := h.repo.GetAlert(r.Context(), result.AlertID)
			if err != nil {
				h.mapError(w, r, err)
				return
			}
			writeJSON(w, result.StatusCode, a)
			return
		}
	}

	var loc *alert.Location
	if req.Latitude != nil && req.Longitude != nil {
		loc = &alert.Location{Latitude: *req.Latitude, Longitude: *req.Longitude}
	}

	a, err := h.alerts.Trigger(r.Context(), actor, loc, db.TriggerMethod(req.TriggerMethod))
	if err != nil {
		if idemKey != "" && h.idempotency != nil {
			h.idempotency.Release(r.Context(), actor, idemKey)
		}
		h.mapError(w, r, err)
		return
	}

	if idemKey != "" && h.idempotency != nil {
		storeErr := h.idempotency.Store(r.Context(), actor, idemKey, redis.IdempotencyResult{
			AlertID:    a.ID,
			StatusCode: http.StatusCreated,
		})
		if storeErr != nil {
			h.logger.Warn("failed to store idempotency result", zap.Error(storeErr))
		}
	}

	writeJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid alert id", err.Error())
		return
	}

	a, err := h.repo.GetAlert(r.Context(), id)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// handleGetActiveAlert returns the caller's currently active alert, if any.
func (h *Handler) handleGetActiveAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor identity")
		return
	}

	a, err := h.repo.GetActiveAlertByUser(r.Context(), actor)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// handleListAlerts lists the caller's own alerts. Operators may list all
// alerts with ?scope=all and filter with ?status=.
func (h *Handler) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor identity")
		return
	}

	limit, offset := paginationParams(r)

	if r.URL.Query().Get("scope") == "all" {
		isOp, err := h.authz.HasAnyRole(r.Context(), actor, db.RoleAdmin, db.RoleModerator)
		if err != nil {
			h.writeInternalError(w, r, err)
			return
		}
		if !isOp {
			h.writeError(w, r, http.StatusForbidden, "forbidden", "operator role required")
			return
		}

		var status *db.AlertStatus
		if s := r.URL.Query().Get("status"); s != "" {
			st := db.AlertStatus(s)
			if !st.Valid() {
				h.writeError(w, r, http.StatusBadRequest, "invalid status filter", s)
				return
			}
			status = &st
		}

		alerts, err := h.repo.ListAlerts(r.Context(), status, limit, offset)
		if err != nil {
			h.mapError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Items: alerts, Count: len(alerts)})
		return
	}

	alerts, err := h.repo.ListAlertsByUser(r.Context(), actor, limit, offset)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: alerts, Count: len(alerts)})
}

func (h *Handler) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.alerts.Resolve)
}

func (h *Handler) handleCancelAlert(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.alerts.Cancel)
}

func (h *Handler) handleEscalateAlert(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.alerts.Escalate)
}

func (h *Handler) handleTransition(
	w http.ResponseWriter,
	r *http.Request,
	fn func(ctx context.Context, alertID, actor uuid.UUID) (*db.Alert, error),
) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing actor identity")
		return
	}

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid alert id", err.Error())
		return
	}

	a, err := fn(r.Context(), id, actor)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

func (h *Handler) handleListAlertNotifications(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid alert id", err.Error())
		return
	}

	if _, err := h.repo.GetAlert(r.Context(), id); err != nil {
		h.mapError(w, r, err)
		return
	}

	notifs, err := h.repo.ListNotificationsByAlert(r.Context(), id)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Items: notifs, Count: len(notifs)})
}

func (h *Handler) handleListPendingNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := paginationParams(r)

	notifs, err := h.repo.ListPendingNotifications(r.Context(), limit)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Items: notifs, Count: len(notifs)})
}

type updateDeliveryStatusRequest struct {
	Status string     `json:"status"`
	SentAt *time.Time `json:"sent_at"`
}

// handleUpdateDeliveryStatus is the callback for external delivery paths:
// the client app or a provider webhook reports sent/failed per notification.
func (h *Handler) handleUpdateDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid notification id", err.Error())
		return
	}

	var req updateDeliveryStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	notif, err := h.deliveries.UpdateDeliveryStatus(r.Context(), id, db.DeliveryStatus(req.Status), req.SentAt)
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, notif)
}

func (h *Handler) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.GetAlertStats(r.Context())
	if err != nil {
		h.mapError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

type listResponse struct {
	Items any `json:"items"`
	Count int `json:"count"`
}

func paginationParams(r *http.Request) (limit, offset int) {
	limit = 50
	offset = 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}
