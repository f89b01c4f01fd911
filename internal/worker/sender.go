package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/db"
)

// Sender is the unified interface for all delivery channels.
// Implementations: email (SES), SMS (SNS), operator webhook.
type Sender interface {
	Send(ctx context.Context, delivery *db.PendingDelivery) error
	SupportsChannel(channel db.Channel) bool
}

// MultiSender routes deliveries to the first sender that supports the
// notification's channel.
type MultiSender struct {
	senders []Sender
	logger  *zap.Logger
}

// NewMultiSender creates a router over multiple underlying senders.
func NewMultiSender(logger *zap.Logger, senders ...Sender) *MultiSender {
	return &MultiSender{
		senders: senders,
		logger:  logger,
	}
}

// Send routes the delivery to the appropriate sender based on channel.
func (m *MultiSender) Send(ctx context.Context, delivery *db.PendingDelivery) error {
	channel := delivery.Notification.Channel
	for _, sender := range m.senders {
		if sender.SupportsChannel(channel) {
			m.logger.Debug("routing delivery to sender",
				zap.String("channel", string(channel)),
				zap.String("notification_id", delivery.Notification.ID.String()),
			)
			return sender.Send(ctx, delivery)
		}
	}

	return fmt.Errorf("no sender found for channel: %s", channel)
}

// SupportsChannel checks if any underlying sender supports the channel.
func (m *MultiSender) SupportsChannel(channel db.Channel) bool {
	for _, sender := range m.senders {
		if sender.SupportsChannel(channel) {
			return true
		}
	}
	return false
}

// LogSender logs deliveries instead of sending them (development mode).
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, delivery *db.PendingDelivery) error {
	s.logger.Info("logging delivery (development mode)",
		zap.String("notification_id", delivery.Notification.ID.String()),
		zap.String("channel", string(delivery.Notification.Channel)),
		zap.String("alert_id", delivery.Alert.ID.String()),
		zap.String("message", ComposeMessage(delivery)),
	)
	return nil
}

func (s *LogSender) SupportsChannel(channel db.Channel) bool {
	return channel.Valid()
}
