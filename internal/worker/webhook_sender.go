package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/db"
)

// WebhookSender delivers operator notifications (contact_id NULL) by POSTing
// the alert to the configured operations endpoint.
type WebhookSender struct {
	client *http.Client
	url    string
	logger *zap.Logger
}

type WebhookConfig struct {
	// URL is the operations endpoint alerts are posted to.
	URL string

	// Timeout bounds each webhook request.
	Timeout time.Duration
}

// webhookBody is the JSON payload posted to the operations endpoint.
type webhookBody struct {
	NotificationID string    `json:"notification_id"`
	AlertID        string    `json:"alert_id"`
	UserID         string    `json:"user_id"`
	Status         string    `json:"status"`
	TriggerMethod  string    `json:"trigger_method"`
	Latitude       *float64  `json:"latitude,omitempty"`
	Longitude      *float64  `json:"longitude,omitempty"`
	Message        string    `json:"message"`
	TriggeredAt    time.Time `json:"triggered_at"`
}

// NewWebhookSender creates a new webhook sender.
func NewWebhookSender(logger *zap.Logger, cfg WebhookConfig) *WebhookSender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &WebhookSender{
		client: &http.Client{Timeout: timeout},
		url:    cfg.URL,
		logger: logger,
	}
}

// Send posts the alert to the operations endpoint.
func (s *WebhookSender) Send(ctx context.Context, delivery *db.PendingDelivery) error {
	if delivery.Notification.Channel != db.ChannelWebhook {
		return fmt.Errorf("webhook sender only supports webhooks, got: %s", delivery.Notification.Channel)
	}

	if s.url == "" {
		return fmt.Errorf("operations webhook URL not configured")
	}

	body, err := json.Marshal(webhookBody{
		NotificationID: delivery.Notification.ID.String(),
		AlertID:        delivery.Alert.ID.String(),
		UserID:         delivery.Alert.UserID.String(),
		Status:         string(delivery.Alert.Status),
		TriggerMethod:  string(delivery.Alert.TriggerMethod),
		Latitude:       delivery.Alert.Latitude,
		Longitude:      delivery.Alert.Longitude,
		Message:        ComposeMessage(delivery),
		TriggeredAt:    delivery.Alert.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal webhook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Guardline/1.0.0")
	req.Header.Set("X-Guardline-Notification-ID", delivery.Notification.ID.String())
	req.Header.Set("X-Guardline-Alert-ID", delivery.Alert.ID.String())

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d, body: %s", resp.StatusCode, string(respBytes))
	}

	s.logger.Info("operator webhook delivered",
		zap.String("notification_id", delivery.Notification.ID.String()),
		zap.String("alert_id", delivery.Alert.ID.String()),
		zap.Int("status_code", resp.StatusCode),
	)

	return nil
}

// SupportsChannel checks if this sender supports the operator channel.
func (s *WebhookSender) SupportsChannel(channel db.Channel) bool {
	return channel == db.ChannelWebhook
}
