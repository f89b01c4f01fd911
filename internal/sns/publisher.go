// Package sns broadcasts escalated alerts to the operations SNS topic,
// fanning out to whatever the on-call team has subscribed (pager, email,
// chat webhook).
package sns

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/db"
)

// Config holds SNS configuration.
type Config struct {
	OpsTopicARN string
	Region      string
}

// Publisher broadcasts escalations to the ops topic.
type Publisher struct {
	client   *sns.Client
	topicARN string
	logger   *zap.Logger
}

// NewPublisher creates an SNS publisher for the ops topic.
func NewPublisher(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	logger.Info("sns publisher created",
		zap.String("topic_arn", cfg.OpsTopicARN),
		zap.String("region", cfg.Region),
	)

	return &Publisher{
		client:   sns.NewFromConfig(awsCfg),
		topicARN: cfg.OpsTopicARN,
		logger:   logger,
	}, nil
}

type escalationMessage struct {
	AlertID     string    `json:"alert_id"`
	UserID      string    `json:"user_id"`
	TriggeredAt time.Time `json:"triggered_at"`
	EscalatedAt time.Time `json:"escalated_at"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
}

// BroadcastEscalation publishes an escalated alert to the ops topic.
func (p *Publisher) BroadcastEscalation(ctx context.Context, alert *db.Alert) error {
	msg := escalationMessage{
		AlertID:     alert.ID.String(),
		UserID:      alert.UserID.String(),
		TriggeredAt: alert.CreatedAt,
		EscalatedAt: time.Now().UTC(),
		Latitude:    alert.Latitude,
		Longitude:   alert.Longitude,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation message: %w", err)
	}

	subject := fmt.Sprintf("ESCALATED ALERT %s", alert.ID)

	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"severity": {
				DataType:    aws.String("String"),
				StringValue: aws.String("critical"),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish escalation: %w", err)
	}

	p.logger.Info("broadcast escalation to ops topic",
		zap.String("alert_id", alert.ID.String()),
	)

	return nil
}
