// Package screening maintains live, ranked result sets for criteria sets
// over the quote store.
package screening

import "errors"

var (
	// ErrSessionClosed is returned by every operation on a closed session.
	ErrSessionClosed = errors.New("screening session closed")

	// ErrSessionNotReady is returned before the first scan completed.
	ErrSessionNotReady = errors.New("screening session not ready")

	// ErrSessionStarted is returned when Start is called twice.
	ErrSessionStarted = errors.New("screening session already started")

	// ErrCriterionNotSet is returned when removing a field the set does not filter on.
	ErrCriterionNotSet = errors.New("no criterion set for field")

	// ErrSessionNotFound is returned by the manager for unknown session IDs.
	ErrSessionNotFound = errors.New("screening session not found")
)

// State is the lifecycle state of a session.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateReady
	StateUpdating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateReady:
		return "ready"
	case StateUpdating:
		return "updating"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}
