package worker

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/guardline/guardline/internal/db"
)

func composeDelivery(ownerName, ownerPhone *string, lat, lon *float64) *db.PendingDelivery {
	return &db.PendingDelivery{
		Notification: db.AlertNotification{ID: uuid.New(), Channel: db.ChannelSMS},
		Alert: db.Alert{
			ID:        uuid.New(),
			Latitude:  lat,
			Longitude: lon,
			CreatedAt: time.Date(2026, 3, 14, 22, 30, 0, 0, time.UTC),
		},
		OwnerName:  ownerName,
		OwnerPhone: ownerPhone,
	}
}

func TestComposeMessageWithLocation(t *testing.T) {
	name := "Priya Raman"
	phone := "+15550199"
	lat, lon := 48.8566, 2.3522

	msg := ComposeMessage(composeDelivery(&name, &phone, &lat, &lon))

	if !strings.Contains(msg, "EMERGENCY ALERT: Priya Raman") {
		t.Errorf("message missing owner name: %q", msg)
	}
	if !strings.Contains(msg, "maps.google.com") {
		t.Errorf("message missing map link: %q", msg)
	}
	if !strings.Contains(msg, "+15550199") {
		t.Errorf("message missing callback number: %q", msg)
	}
	if strings.Contains(msg, "Location unavailable") {
		t.Errorf("message should not say location unavailable: %q", msg)
	}
}

func TestComposeMessageWithoutLocation(t *testing.T) {
	name := "Priya Raman"
	msg := ComposeMessage(composeDelivery(&name, nil, nil, nil))

	if !strings.Contains(msg, "Location unavailable.") {
		t.Errorf("message must flag missing location: %q", msg)
	}
	if strings.Contains(msg, "maps.google.com") {
		t.Errorf("message must not contain a map link: %q", msg)
	}
}

func TestComposeMessageAnonymousOwner(t *testing.T) {
	msg := ComposeMessage(composeDelivery(nil, nil, nil, nil))

	if !strings.Contains(msg, "A Guardline user") {
		t.Errorf("message should fall back to generic name: %q", msg)
	}
}

func TestComposeSubject(t *testing.T) {
	name := "Priya Raman"
	if got := ComposeSubject(composeDelivery(&name, nil, nil, nil)); got != "Emergency SOS from Priya Raman" {
		t.Errorf("subject = %q", got)
	}
	if got := ComposeSubject(composeDelivery(nil, nil, nil, nil)); got != "Emergency SOS from a Guardline user" {
		t.Errorf("anonymous subject = %q", got)
	}
}
