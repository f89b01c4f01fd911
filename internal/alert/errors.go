package alert

import "errors"

// Domain errors surfaced by the lifecycle engine. The API layer maps each
// to a distinct problem+json response; anything else is treated as a
// persistence failure.
var (
	// ErrActiveAlertExists means the profile already has an active alert.
	// A new SOS is rejected until the existing alert leaves the active state.
	ErrActiveAlertExists = errors.New("an active alert already exists for this user")

	// ErrAlertNotFound means the alert ID does not identify a known alert.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrProfileNotFound means the user ID does not identify a known profile.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrInvalidTransition means the requested status change is not legal
	// from the alert's current state.
	ErrInvalidTransition = errors.New("invalid alert transition")

	// ErrNotAuthorized means the actor lacks the role the operation requires.
	ErrNotAuthorized = errors.New("actor not authorized for this transition")
)
