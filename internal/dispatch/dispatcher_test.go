package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/db"
)

type insertedKey struct {
	alertID   uuid.UUID
	contactID uuid.UUID // uuid.Nil for operator rows
	channel   db.Channel
}

type mockRepository struct {
	notifications map[uuid.UUID]*db.AlertNotification
	inserted      map[insertedKey]bool
	order         []*db.AlertNotification
	insertErr     error

	updates []deliveryUpdate
}

type deliveryUpdate struct {
	id      uuid.UUID
	status  db.DeliveryStatus
	attempt int
	sentAt  *time.Time
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		notifications: make(map[uuid.UUID]*db.AlertNotification),
		inserted:      make(map[insertedKey]bool),
	}
}

func (m *mockRepository) InsertNotification(ctx context.Context, notif *db.AlertNotification) (bool, error) {
	if m.insertErr != nil {
		return false, m.insertErr
	}

	key := insertedKey{alertID: notif.AlertID, channel: notif.Channel}
	if notif.ContactID != nil {
		key.contactID = *notif.ContactID
	}
	if m.inserted[key] {
		return false, nil
	}
	m.inserted[key] = true
	notif.CreatedAt = time.Now().UTC()
	m.notifications[notif.ID] = notif
	m.order = append(m.order, notif)
	return true, nil
}

func (m *mockRepository) GetNotification(ctx context.Context, id uuid.UUID) (*db.AlertNotification, error) {
	n, ok := m.notifications[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	cp := *n
	return &cp, nil
}

func (m *mockRepository) UpdateNotificationDelivery(ctx context.Context, id uuid.UUID, status db.DeliveryStatus, attempt int, errorMsg *string, nextRetryAt *time.Time, sentAt *time.Time) error {
	m.updates = append(m.updates, deliveryUpdate{id: id, status: status, attempt: attempt, sentAt: sentAt})
	if n, ok := m.notifications[id]; ok {
		n.Status = status
		n.Attempt = attempt
		n.SentAt = sentAt
	}
	return nil
}

func contact(priority int, createdAt time.Time, sms, email bool) *db.EmergencyContact {
	emailAddr := "contact@example.com"
	return &db.EmergencyContact{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		ContactName:   "Contact",
		ContactPhone:  "+15550100",
		ContactEmail:  &emailAddr,
		NotifyBySMS:   sms,
		NotifyByEmail: email,
		Priority:      priority,
		CreatedAt:     createdAt,
	}
}

func testAlert() *db.Alert {
	return &db.Alert{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Status: db.AlertActive,
	}
}

func TestDispatchOneRowPerEnabledChannel(t *testing.T) {
	repo := newMockRepository()
	d := New(repo, zap.NewNop())

	now := time.Now()
	contacts := []*db.EmergencyContact{
		contact(1, now, true, true),
		contact(2, now, false, true),
		contact(3, now, false, false),
	}

	created, err := d.Dispatch(context.Background(), testAlert(), contacts)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	// sms+email, email only, nothing enabled
	if len(created) != 3 {
		t.Fatalf("created %d notifications, want 3", len(created))
	}
	for _, n := range created {
		if n.Status != db.DeliveryPending {
			t.Errorf("status = %s, want pending", n.Status)
		}
		if n.ContactID == nil {
			t.Error("contact fan-out rows must reference a contact")
		}
	}
}

func TestDispatchPriorityOrder(t *testing.T) {
	repo := newMockRepository()
	d := New(repo, zap.NewNop())

	base := time.Now()
	third := contact(5, base, true, false)
	first := contact(1, base, true, false)
	second := contact(1, base.Add(time.Minute), true, false)

	_, err := d.Dispatch(context.Background(), testAlert(),
		[]*db.EmergencyContact{third, first, second})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	want := []uuid.UUID{first.ID, second.ID, third.ID}
	if len(repo.order) != 3 {
		t.Fatalf("inserted %d rows, want 3", len(repo.order))
	}
	for i, n := range repo.order {
		if *n.ContactID != want[i] {
			t.Errorf("row %d contact = %s, want %s", i, *n.ContactID, want[i])
		}
	}
}

func TestDispatchSMSBeforeEmailPerContact(t *testing.T) {
	repo := newMockRepository()
	d := New(repo, zap.NewNop())

	c := contact(1, time.Now(), true, true)
	_, err := d.Dispatch(context.Background(), testAlert(), []*db.EmergencyContact{c})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}

	if len(repo.order) != 2 {
		t.Fatalf("inserted %d rows, want 2", len(repo.order))
	}
	if repo.order[0].Channel != db.ChannelSMS || repo.order[1].Channel != db.ChannelEmail {
		t.Errorf("channel order = %s, %s; want sms, email",
			repo.order[0].Channel, repo.order[1].Channel)
	}
}

func TestDispatchIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	d := New(repo, zap.NewNop())

	a := testAlert()
	contacts := []*db.EmergencyContact{contact(1, time.Now(), true, true)}

	first, err := d.Dispatch(context.Background(), a, contacts)
	if err != nil {
		t.Fatalf("first Dispatch() error = %v", err)
	}
	second, err := d.Dispatch(context.Background(), a, contacts)
	if err != nil {
		t.Fatalf("second Dispatch() error = %v", err)
	}

	if len(first) != 2 {
		t.Errorf("first dispatch created %d, want 2", len(first))
	}
	if len(second) != 0 {
		t.Errorf("second dispatch created %d, want 0", len(second))
	}
	if len(repo.order) != 2 {
		t.Errorf("total rows = %d, want 2", len(repo.order))
	}
}

func TestDispatchNoContacts(t *testing.T) {
	repo := newMockRepository()
	d := New(repo, zap.NewNop())

	created, err := d.Dispatch(context.Background(), testAlert(), nil)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(created) != 0 {
		t.Errorf("created %d notifications, want 0", len(created))
	}
}

func TestDispatchOperator(t *testing.T) {
	repo := newMockRepository()
	d := New(repo, zap.NewNop())
	a := testAlert()

	notif, err := d.DispatchOperator(context.Background(), a)
	if err != nil {
		t.Fatalf("DispatchOperator() error = %v", err)
	}
	if notif.ContactID != nil {
		t.Error("operator notification must not reference a contact")
	}
	if notif.Channel != db.ChannelWebhook {
		t.Errorf("channel = %s, want webhook", notif.Channel)
	}

	// Re-escalating must not create a second row.
	dup, err := d.DispatchOperator(context.Background(), a)
	if err != nil {
		t.Fatalf("second DispatchOperator() error = %v", err)
	}
	if dup != nil {
		t.Error("duplicate operator dispatch should return nil")
	}
}

func TestUpdateDeliveryStatusSent(t *testing.T) {
	repo := newMockRepository()
	d := New(repo, zap.NewNop())

	created, _ := d.Dispatch(context.Background(), testAlert(),
		[]*db.EmergencyContact{contact(1, time.Now(), true, false)})

	notif, err := d.UpdateDeliveryStatus(context.Background(), created[0].ID, db.DeliverySent, nil)
	if err != nil {
		t.Fatalf("UpdateDeliveryStatus() error = %v", err)
	}
	if notif.Status != db.DeliverySent {
		t.Errorf("status = %s, want sent", notif.Status)
	}
	if notif.SentAt == nil {
		t.Error("sent_at must default to now for sent")
	}
	if notif.Attempt != 1 {
		t.Errorf("attempt = %d, want 1", notif.Attempt)
	}
}

func TestUpdateDeliveryStatusFailedClearsSentAt(t *testing.T) {
	repo := newMockRepository()
	d := New(repo, zap.NewNop())

	created, _ := d.Dispatch(context.Background(), testAlert(),
		[]*db.EmergencyContact{contact(1, time.Now(), true, false)})

	now := time.Now()
	notif, err := d.UpdateDeliveryStatus(context.Background(), created[0].ID, db.DeliveryFailed, &now)
	if err != nil {
		t.Fatalf("UpdateDeliveryStatus() error = %v", err)
	}
	if notif.SentAt != nil {
		t.Error("sent_at must be nil for failed deliveries")
	}
}

func TestUpdateDeliveryStatusRejectsInternalStates(t *testing.T) {
	d := New(newMockRepository(), zap.NewNop())

	for _, status := range []db.DeliveryStatus{db.DeliveryPending, db.DeliveryProcessing, "bogus"} {
		_, err := d.UpdateDeliveryStatus(context.Background(), uuid.New(), status, nil)
		if !errors.Is(err, ErrInvalidDeliveryStatus) {
			t.Errorf("status %q: error = %v, want ErrInvalidDeliveryStatus", status, err)
		}
	}
}

func TestUpdateDeliveryStatusUnknownNotification(t *testing.T) {
	d := New(newMockRepository(), zap.NewNop())

	_, err := d.UpdateDeliveryStatus(context.Background(), uuid.New(), db.DeliverySent, nil)
	if !errors.Is(err, db.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
