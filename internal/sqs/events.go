// Package sqs publishes alert lifecycle events to an SQS queue so downstream
// systems (dashboards, audit pipelines) can follow alert state changes
// without polling the database.
package sqs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/db"
)

// Event is the wire format for an alert lifecycle change.
type Event struct {
	AlertID       uuid.UUID      `json:"alert_id"`
	UserID        uuid.UUID      `json:"user_id"`
	Status        db.AlertStatus `json:"status"`
	TriggerMethod string         `json:"trigger_method"`
	Latitude      *float64       `json:"latitude,omitempty"`
	Longitude     *float64       `json:"longitude,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// Config holds SQS configuration.
type Config struct {
	QueueURL string
	Region   string
}

// Publisher sends alert events to SQS.
type Publisher struct {
	client   *sqs.Client
	queueURL string
	logger   *zap.Logger
}

// NewPublisher creates an SQS publisher for the alert event queue.
func NewPublisher(ctx context.Context, cfg Config, logger *zap.Logger) (*Publisher, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	logger.Info("sqs publisher created",
		zap.String("queue_url", cfg.QueueURL),
		zap.String("region", cfg.Region),
	)

	return &Publisher{
		client:   sqs.NewFromConfig(awsCfg),
		queueURL: cfg.QueueURL,
		logger:   logger,
	}, nil
}

// PublishAlertEvent sends one event to the queue for the alert's current
// state. Events carry message attributes so consumers can filter by status
// without parsing the body.
func (p *Publisher) PublishAlertEvent(ctx context.Context, alert *db.Alert) error {
	event := Event{
		AlertID:       alert.ID,
		UserID:        alert.UserID,
		Status:        alert.Status,
		TriggerMethod: string(alert.TriggerMethod),
		Latitude:      alert.Latitude,
		Longitude:     alert.Longitude,
		OccurredAt:    time.Now().UTC(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"status": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(event.Status)),
			},
			"user_id": {
				DataType:    aws.String("String"),
				StringValue: aws.String(event.UserID.String()),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to publish alert event: %w", err)
	}

	p.logger.Debug("published alert event",
		zap.String("alert_id", event.AlertID.String()),
		zap.String("status", string(event.Status)),
	)

	return nil
}
