package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/db"
	"github.com/guardline/guardline/internal/metrics"
)

// Repository defines the persistence operations the delivery worker needs.
type Repository interface {
	GetPendingDeliveries(ctx context.Context, limit int) ([]*db.PendingDelivery, error)
	UpdateNotificationDelivery(ctx context.Context, id uuid.UUID, status db.DeliveryStatus, attempt int, errorMsg *string, nextRetryAt *time.Time, sentAt *time.Time) error
}

// Worker consumes pending alert notifications as a work queue and sends them
// over the channel senders. It is the in-process delivery collaborator: the
// dispatcher only records intent, the worker performs transmission and calls
// the delivery-status update path with the outcome.
type Worker struct {
	repo   Repository
	sender Sender
	config Config
	logger *zap.Logger
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
}

func New(repo Repository, sender Sender, cfg Config, logger *zap.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 10
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}

	return &Worker{
		repo:   repo,
		sender: sender,
		config: cfg,
		logger: logger,
	}
}

// Start polls for pending deliveries until the context is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("delivery worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx)
		}
	}
}

func (w *Worker) processBatch(ctx context.Context) {
	deliveries, err := w.repo.GetPendingDeliveries(ctx, w.config.BatchSize)
	if err != nil {
		w.logger.Error("failed to get pending deliveries", zap.Error(err))
		return
	}

	for _, delivery := range deliveries {
		w.processDelivery(ctx, delivery)
	}
}

func (w *Worker) processDelivery(ctx context.Context, delivery *db.PendingDelivery) {
	notif := &delivery.Notification

	// Mark as processing first to prevent duplicate picks.
	_ = w.repo.UpdateNotificationDelivery(ctx, notif.ID, db.DeliveryProcessing, notif.Attempt, nil, notif.NextRetryAt, nil)

	err := w.sender.Send(ctx, delivery)
	newAttempt := notif.Attempt + 1
	channel := string(notif.Channel)

	if err != nil {
		w.logger.Error("failed to send notification",
			zap.Error(err),
			zap.String("notification_id", notif.ID.String()),
			zap.String("channel", channel),
			zap.Int("attempt", newAttempt),
		)

		errMsg := err.Error()

		if newAttempt >= w.config.MaxRetries {
			// Delivery exhausted; the failed row stays as per-contact history.
			if uerr := w.repo.UpdateNotificationDelivery(ctx, notif.ID, db.DeliveryFailed, newAttempt, &errMsg, nil, nil); uerr != nil {
				w.logger.Error("failed to mark notification failed",
					zap.String("notification_id", notif.ID.String()),
					zap.Error(uerr),
				)
			}
			metrics.RecordNotificationDelivered(channel, string(db.DeliveryFailed))
		} else {
			nextRetry := w.calculateNextRetry(newAttempt)
			_ = w.repo.UpdateNotificationDelivery(ctx, notif.ID, db.DeliveryPending, newAttempt, &errMsg, &nextRetry, nil)
		}
		return
	}

	now := time.Now().UTC()
	if uerr := w.repo.UpdateNotificationDelivery(ctx, notif.ID, db.DeliverySent, newAttempt, nil, nil, &now); uerr != nil {
		w.logger.Error("failed to mark notification sent",
			zap.String("notification_id", notif.ID.String()),
			zap.Error(uerr),
		)
		return
	}

	metrics.RecordNotificationDelivered(channel, string(db.DeliverySent))
	metrics.RecordDeliveryLatency(channel, now.Sub(notif.CreatedAt))

	w.logger.Info("notification delivered",
		zap.String("notification_id", notif.ID.String()),
		zap.String("channel", channel),
	)
}

// calculateNextRetry returns the backoff delay for the given attempt.
func (w *Worker) calculateNextRetry(attempt int) time.Time {
	delays := []time.Duration{
		1 * time.Minute,
		5 * time.Minute,
		15 * time.Minute,
	}

	idx := attempt - 1
	if idx >= len(delays) {
		idx = len(delays) - 1
	}

	return time.Now().Add(delays[idx])
}
