package lifecycle

import (
	"fmt"
	"time"
)

// TransitionError reports an illegal lifecycle edge. The machine never mutates
// state when this is returned.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal lifecycle transition %s -> %s", e.From, e.To)
}

// Transition is an appended history record: source state, target state,
// trigger, actor, timestamp, optional reason and metadata.
type Transition struct {
	From      State
	To        State
	Trigger   string
	Actor     string
	Timestamp time.Time
	Reason    string
	Metadata  map[string]any
}

// Machine tracks a single schema's current state and its transition history.
// It is a thin wrapper around the pure CanTransition function; it holds no
// locks of its own and is not safe for concurrent use without external
// synchronization — callers serialize writes at the store (spec §5).
type Machine struct {
	Current State
	History []Transition
}

// NewMachine returns a machine starting in Draft.
func NewMachine() *Machine {
	return &Machine{Current: Draft}
}

// Apply attempts the transition to `to`. On success it appends a Transition to
// History and updates Current. On failure it returns a *TransitionError and
// leaves the machine entirely unchanged.
func (m *Machine) Apply(to State, trigger, actor, reason string, metadata map[string]any) (Transition, error) {
	if !CanTransition(m.Current, to) {
		return Transition{}, &TransitionError{From: m.Current, To: to}
	}
	t := Transition{
		From:      m.Current,
		To:        to,
		Trigger:   trigger,
		Actor:     actor,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
		Metadata:  metadata,
	}
	m.Current = to
	m.History = append(m.History, t)
	return t, nil
}

// PreviousState returns the state before the most recent transition, and
// false if there is no history yet.
func (m *Machine) PreviousState() (State, bool) {
	if len(m.History) == 0 {
		return Draft, false
	}
	return m.History[len(m.History)-1].From, true
}
