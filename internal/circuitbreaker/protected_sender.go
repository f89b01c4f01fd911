package circuitbreaker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/db"
)

// Sender mirrors worker.Sender so delivery senders can be wrapped without
// an import cycle.
type Sender interface {
	Send(ctx context.Context, delivery *db.PendingDelivery) error
	SupportsChannel(channel db.Channel) bool
}

// ProtectedSender wraps a Sender with a circuit breaker. When the downstream
// service is failing, sends are rejected fast and the delivery stays queued
// for the worker's retry pass instead of burning an attempt on a dead service.
type ProtectedSender struct {
	sender  Sender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps the given sender with circuit breaker protection.
func NewProtectedSender(sender Sender, cfg Config, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: New(cfg, logger),
		logger:  logger,
	}
}

func (p *ProtectedSender) Send(ctx context.Context, delivery *db.PendingDelivery) error {
	if !p.breaker.Allow() {
		p.logger.Warn("send rejected by circuit breaker",
			zap.String("breaker", p.breaker.config.Name),
			zap.String("notification_id", delivery.Notification.ID.String()),
			zap.String("channel", string(delivery.Notification.Channel)),
		)
		return fmt.Errorf("%s: %w", p.breaker.config.Name, ErrCircuitOpen)
	}

	err := p.sender.Send(ctx, delivery)
	if err != nil {
		p.breaker.RecordFailure()
		return err
	}

	p.breaker.RecordSuccess()
	return nil
}

func (p *ProtectedSender) SupportsChannel(channel db.Channel) bool {
	return p.sender.SupportsChannel(channel)
}

// Breaker exposes the underlying circuit breaker for stats endpoints.
func (p *ProtectedSender) Breaker() *CircuitBreaker {
	return p.breaker
}
