package alert

import "github.com/guardline/guardline/internal/db"

// transitions is the closed transition table. Alerts enter the state machine
// as active via Trigger; resolved and cancelled are terminal. Escalated has
// no outgoing transitions here — closure of escalated alerts is a policy
// decision gated by Config.AllowEscalatedClosure.
var transitions = map[db.AlertStatus]map[db.AlertStatus]bool{
	db.AlertActive: {
		db.AlertResolved:  true,
		db.AlertCancelled: true,
		db.AlertEscalated: true,
	},
	db.AlertResolved:  {},
	db.AlertCancelled: {},
	db.AlertEscalated: {},
}

// canTransition reports whether from -> to is legal under the engine's
// configuration.
func (e *Engine) canTransition(from, to db.AlertStatus) bool {
	if transitions[from][to] {
		return true
	}
	if from == db.AlertEscalated && e.config.AllowEscalatedClosure {
		return to == db.AlertResolved || to == db.AlertCancelled
	}
	return false
}
