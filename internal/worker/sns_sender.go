package worker

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/db"
)

// SNSSender sends SMS alerts via AWS SNS direct publish.
type SNSSender struct {
	client *sns.Client
	logger *zap.Logger
}

type SNSConfig struct {
	Region string
}

// NewSNSSender creates a new SNS sender for SMS notifications.
func NewSNSSender(ctx context.Context, cfg SNSConfig, logger *zap.Logger) (*SNSSender, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load default AWS config for SNS: %w", err)
	}

	return &SNSSender{
		client: sns.NewFromConfig(awsCfg),
		logger: logger,
	}, nil
}

// Send delivers an SMS alert to the contact's phone number.
func (s *SNSSender) Send(ctx context.Context, delivery *db.PendingDelivery) error {
	if delivery.Notification.Channel != db.ChannelSMS {
		return fmt.Errorf("SNS sender only supports SMS, got: %s", delivery.Notification.Channel)
	}

	if delivery.ContactPhone == nil || *delivery.ContactPhone == "" {
		return fmt.Errorf("contact has no phone number")
	}

	input := &sns.PublishInput{
		PhoneNumber: aws.String(*delivery.ContactPhone),
		Message:     aws.String(ComposeMessage(delivery)),
	}

	result, err := s.client.Publish(ctx, input)
	if err != nil {
		return fmt.Errorf("sns publish failed: %w", err)
	}

	s.logger.Info("alert SMS sent via SNS",
		zap.String("notification_id", delivery.Notification.ID.String()),
		zap.String("phone_number", *delivery.ContactPhone),
		zap.String("message_id", *result.MessageId),
	)

	return nil
}

// SupportsChannel checks if this sender supports the SMS channel.
func (s *SNSSender) SupportsChannel(channel db.Channel) bool {
	return channel == db.ChannelSMS
}
