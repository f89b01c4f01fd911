package alert

import (
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/guardline/guardline/internal/db"
)

// uniqueViolation fabricates the Postgres error the partial unique index
// raises when two triggers race.
func uniqueViolation() error {
	return &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "alerts_one_active_per_user",
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from db.AlertStatus
		to   db.AlertStatus
		want bool
	}{
		{"active to resolved", db.AlertActive, db.AlertResolved, true},
		{"active to cancelled", db.AlertActive, db.AlertCancelled, true},
		{"active to escalated", db.AlertActive, db.AlertEscalated, true},
		{"active to active", db.AlertActive, db.AlertActive, false},
		{"resolved to active", db.AlertResolved, db.AlertActive, false},
		{"resolved to cancelled", db.AlertResolved, db.AlertCancelled, false},
		{"cancelled to resolved", db.AlertCancelled, db.AlertResolved, false},
		{"escalated to resolved", db.AlertEscalated, db.AlertResolved, false},
		{"escalated to cancelled", db.AlertEscalated, db.AlertCancelled, false},
		{"escalated to active", db.AlertEscalated, db.AlertActive, false},
	}

	engine := newTestEngine(newMockRepository(), &mockAuthorizer{}, &mockDispatcher{}, Config{})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := engine.canTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("canTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestCanTransitionEscalatedClosure(t *testing.T) {
	engine := New(newMockRepository(), &mockAuthorizer{}, &mockDispatcher{}, nil, nil, nil,
		Config{AllowEscalatedClosure: true}, zap.NewNop())

	if !engine.canTransition(db.AlertEscalated, db.AlertResolved) {
		t.Error("escalated -> resolved should be allowed with closure enabled")
	}
	if !engine.canTransition(db.AlertEscalated, db.AlertCancelled) {
		t.Error("escalated -> cancelled should be allowed with closure enabled")
	}
	if engine.canTransition(db.AlertEscalated, db.AlertActive) {
		t.Error("escalated -> active must stay forbidden")
	}
	if engine.canTransition(db.AlertResolved, db.AlertCancelled) {
		t.Error("terminal states must stay terminal")
	}
}
