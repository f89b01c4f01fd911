package db

import (
	"time"

	"github.com/google/uuid"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	AlertActive    AlertStatus = "active"
	AlertResolved  AlertStatus = "resolved"
	AlertCancelled AlertStatus = "cancelled"
	AlertEscalated AlertStatus = "escalated"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertActive, AlertResolved, AlertCancelled, AlertEscalated:
		return true
	}
	return false
}

// Channel is a notification delivery channel.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	// ChannelWebhook carries operator notifications (contact_id is NULL).
	ChannelWebhook Channel = "webhook"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelWebhook:
		return true
	}
	return false
}

// DeliveryStatus tracks per-target delivery of an alert notification.
type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliverySent       DeliveryStatus = "sent"
	DeliveryFailed     DeliveryStatus = "failed"
)

func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryPending, DeliveryProcessing, DeliverySent, DeliveryFailed:
		return true
	}
	return false
}

// TriggerMethod records how the SOS was started.
type TriggerMethod string

const (
	TriggerTap     TriggerMethod = "tap"
	TriggerGesture TriggerMethod = "gesture"
	TriggerVoice   TriggerMethod = "voice"
)

func (m TriggerMethod) Valid() bool {
	switch m {
	case TriggerTap, TriggerGesture, TriggerVoice:
		return true
	}
	return false
}

// Role is a capability granted to a profile. A profile may hold any number
// of role rows, so authorization checks consult the full set.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleModerator, RoleUser:
		return true
	}
	return false
}

// Profile is one registered user of the service.
type Profile struct {
	ID          uuid.UUID `json:"id"`
	FullName    *string   `json:"full_name,omitempty"`
	PhoneNumber *string   `json:"phone_number,omitempty"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EmergencyContact belongs to exactly one profile. Priority orders fan-out
// (lower first); collisions are allowed and break ties by creation order.
type EmergencyContact struct {
	ID            uuid.UUID `json:"id"`
	UserID        uuid.UUID `json:"user_id"`
	ContactName   string    `json:"contact_name"`
	ContactPhone  string    `json:"contact_phone"`
	ContactEmail  *string   `json:"contact_email,omitempty"`
	NotifyBySMS   bool      `json:"notify_by_sms"`
	NotifyByEmail bool      `json:"notify_by_email"`
	Priority      int       `json:"priority"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Alert is a single emergency incident owned by a profile.
// ResolvedAt is non-nil iff Status is AlertResolved.
type Alert struct {
	ID            uuid.UUID     `json:"id"`
	UserID        uuid.UUID     `json:"user_id"`
	Status        AlertStatus   `json:"status"`
	Latitude      *float64      `json:"latitude,omitempty"`
	Longitude     *float64      `json:"longitude,omitempty"`
	Address       *string       `json:"address,omitempty"`
	Notes         *string       `json:"notes,omitempty"`
	TriggerMethod TriggerMethod `json:"trigger_method"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// AlertNotification is one fan-out target for an alert: one row per
// (alert, contact, channel). ContactID is nil for operator notifications.
type AlertNotification struct {
	ID           uuid.UUID      `json:"id"`
	AlertID      uuid.UUID      `json:"alert_id"`
	ContactID    *uuid.UUID     `json:"contact_id,omitempty"`
	Channel      Channel        `json:"notification_type"`
	Status       DeliveryStatus `json:"status"`
	Attempt      int            `json:"attempt"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	NextRetryAt  *time.Time     `json:"next_retry_at,omitempty"`
	SentAt       *time.Time     `json:"sent_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// UserRole is one role grant for a profile.
type UserRole struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingDelivery is a notification joined with the alert and contact data
// the delivery worker needs to compose and send a message. Contact fields
// are nil for operator notifications.
type PendingDelivery struct {
	Notification AlertNotification
	Alert        Alert
	ContactName  *string
	ContactPhone *string
	ContactEmail *string
	OwnerName    *string
	OwnerPhone   *string
}

// AlertStats is the admin dashboard summary.
type AlertStats struct {
	TotalAlerts     int `json:"total_alerts"`
	ActiveAlerts    int `json:"active_alerts"`
	ResolvedAlerts  int `json:"resolved_alerts"`
	CancelledAlerts int `json:"cancelled_alerts"`
	EscalatedAlerts int `json:"escalated_alerts"`
	TotalUsers      int `json:"total_users"`
}
