package session

import "fmt"

// State is the lifecycle state of a session.
type State int

const (
	// StateInit verifies the target and starts the concurrent activities.
	StateInit State = iota
	// StateRunning drives the cadence loop.
	StateRunning
	// StateStopping cancels the activities and finalizes the timeline.
	StateStopping
	// StateFinalized is terminal; the dataset is available.
	StateFinalized
	// StateFailed is terminal; no dataset is produced.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateFinalized:
		return "FINALIZED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateFinalized || s == StateFailed
}

var allowedTransitions = map[State][]State{
	StateInit:     {StateRunning, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateFinalized},
}

func canTransition(from, to State) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Reason records why a running session stopped.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonTargetExited    Reason = "target_exited"
	ReasonDurationReached Reason = "duration_reached"
	ReasonOperatorStop    Reason = "operator_stop"
)

// Describe returns the operator-facing wording.
func (r Reason) Describe() string {
	switch r {
	case ReasonTargetExited:
		return "target exited"
	case ReasonDurationReached:
		return "duration reached"
	case ReasonOperatorStop:
		return "operator stop"
	default:
		return string(r)
	}
}
