// Package alert implements the alert lifecycle engine: the SOS trigger and
// the active -> resolved/cancelled/escalated state machine, including the
// one-active-alert-per-user guarantee and transition authorization.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/db"
	"github.com/guardline/guardline/internal/metrics"
)

// Repository defines the persistence operations the engine needs.
type Repository interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*db.Profile, error)
	GetAlert(ctx context.Context, id uuid.UUID) (*db.Alert, error)
	GetActiveAlertByUser(ctx context.Context, userID uuid.UUID) (*db.Alert, error)
	CreateAlert(ctx context.Context, alert *db.Alert) error
	TransitionAlert(ctx context.Context, id uuid.UUID, from, to db.AlertStatus, resolvedAt *time.Time) (*db.Alert, error)
	ListContactsByUser(ctx context.Context, userID uuid.UUID) ([]*db.EmergencyContact, error)
}

// Authorizer answers role-set membership questions.
type Authorizer interface {
	HasAnyRole(ctx context.Context, userID uuid.UUID, roles ...db.Role) (bool, error)
}

// Dispatcher performs notification fan-out after a successful trigger.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *db.Alert, contacts []*db.EmergencyContact) ([]*db.AlertNotification, error)
	DispatchOperator(ctx context.Context, alert *db.Alert) (*db.AlertNotification, error)
}

// Location is a geographic reading captured at trigger time.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Locator acquires the caller's current location. Implementations are
// expected to respect context cancellation; the engine caps each acquisition
// with LocationTimeout.
type Locator interface {
	Locate(ctx context.Context) (*Location, error)
}

// EventPublisher receives an event after every persisted state change, so
// external consumers can re-query instead of holding a database subscription.
type EventPublisher interface {
	PublishAlertEvent(ctx context.Context, alert *db.Alert) error
}

// OpsBroadcaster notifies the operations channel when an alert is escalated.
type OpsBroadcaster interface {
	BroadcastEscalation(ctx context.Context, alert *db.Alert) error
}

// Config holds engine tunables.
type Config struct {
	// LocationTimeout caps the best-effort location acquisition on trigger.
	LocationTimeout time.Duration

	// AllowEscalatedClosure additionally permits escalated -> resolved and
	// escalated -> cancelled. Off by default: escalated alerts stay open
	// until an operator policy says otherwise.
	AllowEscalatedClosure bool
}

// Engine owns alert lifecycle transitions.
type Engine struct {
	repo       Repository
	authz      Authorizer
	dispatcher Dispatcher
	locator    Locator        // optional
	events     EventPublisher // optional
	ops        OpsBroadcaster // optional
	config     Config
	logger     *zap.Logger
}

// New creates a lifecycle engine. locator, events and ops may be nil.
func New(
	repo Repository,
	authz Authorizer,
	dispatcher Dispatcher,
	locator Locator,
	events EventPublisher,
	ops OpsBroadcaster,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.LocationTimeout == 0 {
		cfg.LocationTimeout = 5 * time.Second
	}

	return &Engine{
		repo:       repo,
		authz:      authz,
		dispatcher: dispatcher,
		locator:    locator,
		events:     events,
		ops:        ops,
		config:     cfg,
		logger:     logger,
	}
}

// Trigger opens a new alert for the user and fans out notifications to their
// emergency contacts. At most one alert per user may be active: a second
// trigger fails with ErrActiveAlertExists. When loc is nil and a locator is
// configured, one best-effort acquisition runs under LocationTimeout; a
// timeout or denial never fails the trigger, the alert is simply created
// without coordinates.
func (e *Engine) Trigger(ctx context.Context, userID uuid.UUID, loc *Location, method db.TriggerMethod) (*db.Alert, error) {
	if method == "" {
		method = db.TriggerTap
	}
	if !method.Valid() {
		return nil, fmt.Errorf("unknown trigger method %q", method)
	}

	if _, err := e.repo.GetProfile(ctx, userID); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}

	// Eager check for the common case; the partial unique index on the
	// alerts table closes the remaining read-then-write race below.
	if _, err := e.repo.GetActiveAlertByUser(ctx, userID); err == nil {
		return nil, ErrActiveAlertExists
	} else if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("check active alert: %w", err)
	}

	if loc == nil && e.locator != nil {
		loc = e.acquireLocation(ctx, userID)
	}

	a := &db.Alert{
		ID:            uuid.New(),
		UserID:        userID,
		Status:        db.AlertActive,
		TriggerMethod: method,
	}
	if loc != nil {
		a.Latitude = &loc.Latitude
		a.Longitude = &loc.Longitude
	}

	if err := e.repo.CreateAlert(ctx, a); err != nil {
		if db.IsUniqueViolation(err) {
			// Lost the race with a concurrent trigger for the same user.
			return nil, ErrActiveAlertExists
		}
		return nil, fmt.Errorf("create alert: %w", err)
	}

	metrics.RecordAlertTriggered(string(method))

	contacts, err := e.repo.ListContactsByUser(ctx, userID)
	if err != nil {
		// The alert row is already committed; fan-out is recoverable because
		// dispatch is idempotent. Surface nothing to the caller beyond logs.
		e.logger.Error("failed to load contacts after trigger",
			zap.Error(err),
			zap.String("alert_id", a.ID.String()),
		)
	} else if _, err := e.dispatcher.Dispatch(ctx, a, contacts); err != nil {
		e.logger.Error("notification fan-out failed",
			zap.Error(err),
			zap.String("alert_id", a.ID.String()),
		)
	}

	e.publishEvent(ctx, a)

	e.logger.Info("alert triggered",
		zap.String("alert_id", a.ID.String()),
		zap.String("user_id", userID.String()),
		zap.String("trigger_method", string(method)),
		zap.Bool("has_location", loc != nil),
	)

	return a, nil
}

// Resolve transitions an alert to resolved. Allowed for the alert's owner or
// an operator; sets resolved_at.
func (e *Engine) Resolve(ctx context.Context, alertID, actor uuid.UUID) (*db.Alert, error) {
	a, err := e.loadAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if a.UserID != actor {
		if err := e.requireOperator(ctx, actor); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	return e.transition(ctx, a, db.AlertResolved, &now)
}

// Cancel transitions an alert to cancelled (operator only, used to dismiss
// false alarms). resolved_at stays null.
func (e *Engine) Cancel(ctx context.Context, alertID, actor uuid.UUID) (*db.Alert, error) {
	a, err := e.loadAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if err := e.requireOperator(ctx, actor); err != nil {
		return nil, err
	}

	return e.transition(ctx, a, db.AlertCancelled, nil)
}

// Escalate marks an alert's severity upgraded (operator only). The alert is
// not closed; an operator notification is recorded and the operations
// channel is broadcast to.
func (e *Engine) Escalate(ctx context.Context, alertID, actor uuid.UUID) (*db.Alert, error) {
	a, err := e.loadAlert(ctx, alertID)
	if err != nil {
		return nil, err
	}

	if err := e.requireOperator(ctx, actor); err != nil {
		return nil, err
	}

	updated, err := e.transition(ctx, a, db.AlertEscalated, nil)
	if err != nil {
		return nil, err
	}

	if _, err := e.dispatcher.DispatchOperator(ctx, updated); err != nil {
		e.logger.Error("failed to record operator notification",
			zap.Error(err),
			zap.String("alert_id", updated.ID.String()),
		)
	}

	if e.ops != nil {
		if err := e.ops.BroadcastEscalation(ctx, updated); err != nil {
			e.logger.Error("escalation broadcast failed",
				zap.Error(err),
				zap.String("alert_id", updated.ID.String()),
			)
		}
	}

	return updated, nil
}

func (e *Engine) loadAlert(ctx context.Context, alertID uuid.UUID) (*db.Alert, error) {
	a, err := e.repo.GetAlert(ctx, alertID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, ErrAlertNotFound
		}
		return nil, fmt.Errorf("load alert: %w", err)
	}
	return a, nil
}

func (e *Engine) requireOperator(ctx context.Context, actor uuid.UUID) error {
	ok, err := e.authz.HasAnyRole(ctx, actor, db.RoleAdmin, db.RoleModerator)
	if err != nil {
		return fmt.Errorf("check operator role: %w", err)
	}
	if !ok {
		return ErrNotAuthorized
	}
	return nil
}

func (e *Engine) transition(ctx context.Context, a *db.Alert, to db.AlertStatus, resolvedAt *time.Time) (*db.Alert, error) {
	if !e.canTransition(a.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, to)
	}

	updated, err := e.repo.TransitionAlert(ctx, a.ID, a.Status, to, resolvedAt)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			// The row left the expected state between read and update.
			return nil, fmt.Errorf("%w: alert no longer %s", ErrInvalidTransition, a.Status)
		}
		return nil, fmt.Errorf("persist transition: %w", err)
	}

	metrics.RecordAlertTransition(string(to))
	e.publishEvent(ctx, updated)

	return updated, nil
}

// acquireLocation is the single best-effort location attempt. Errors are
// swallowed: an SOS must never fail because location is unavailable.
func (e *Engine) acquireLocation(ctx context.Context, userID uuid.UUID) *Location {
	locCtx, cancel := context.WithTimeout(ctx, e.config.LocationTimeout)
	defer cancel()

	loc, err := e.locator.Locate(locCtx)
	if err != nil {
		e.logger.Warn("location acquisition failed, triggering without coordinates",
			zap.Error(err),
			zap.String("user_id", userID.String()),
		)
		return nil
	}
	return loc
}

func (e *Engine) publishEvent(ctx context.Context, a *db.Alert) {
	if e.events == nil {
		return
	}
	if err := e.events.PublishAlertEvent(ctx, a); err != nil {
		e.logger.Warn("failed to publish alert event",
			zap.Error(err),
			zap.String("alert_id", a.ID.String()),
		)
	}
}
