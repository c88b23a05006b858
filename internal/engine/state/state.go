// Package state defines the lifecycle status of an orchestrated service.
// A service moves Unstarted -> PreInit -> Running -> Stopped and never
// backwards; a failed start discards the instance instead of rewinding it.
package state

import (
	"encoding/json"
	"fmt"
)

// Status represents the lifecycle status of a service instance.
type Status int32

const (
	// StatusUnstarted is the status of a freshly constructed instance.
	StatusUnstarted Status = iota

	// StatusPreInit marks an instance that passed OnPreInit and is connectable
	// but not yet functional.
	StatusPreInit

	// StatusRunning marks an instance whose OnInit completed its contract.
	StatusRunning

	// StatusStopped marks an instance that received the shutdown call.
	StatusStopped
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusUnstarted:
		return "unstarted"
	case StatusPreInit:
		return "preinit"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	default:
		return fmt.Sprintf("status(%d)", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Status) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = ParseStatus(str)
	return nil
}

// ParseStatus converts a string to Status. Unknown strings map to StatusUnstarted.
func ParseStatus(s string) Status {
	switch s {
	case "unstarted", "none":
		return StatusUnstarted
	case "preinit", "pre-init":
		return StatusPreInit
	case "running", "started":
		return StatusRunning
	case "stopped":
		return StatusStopped
	default:
		return StatusUnstarted
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusStopped
}

// IsRunning reports whether the service completed initialization and was not stopped.
func (s Status) IsRunning() bool {
	return s == StatusRunning
}

// ValidTransitions defines the allowed forward transitions.
var ValidTransitions = map[Status][]Status{
	StatusUnstarted: {StatusPreInit},
	StatusPreInit:   {StatusRunning},
	StatusRunning:   {StatusStopped},
}

// CanTransition returns true if the transition from -> to is valid.
func CanTransition(from, to Status) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionError represents an invalid state transition.
type TransitionError struct {
	From Status
	To   Status
}

// Error implements error.
func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s -> %s", e.From, e.To)
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(from, to Status) TransitionError {
	return TransitionError{From: from, To: to}
}
