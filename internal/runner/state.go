package runner

import "fmt"

// State is the lifecycle position of a test run.
type State string

const (
	StateIdle         State = "idle"
	StateProvisioning State = "provisioning"
	StateReady        State = "ready"
	StateExecuting    State = "executing"
	StateCollecting   State = "collecting"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
)

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateIdle:         {StateProvisioning, StateFailed},
	StateProvisioning: {StateReady, StateFailed},
	StateReady:        {StateExecuting, StateCompleted, StateFailed},
	StateExecuting:    {StateCollecting, StateFailed},
	StateCollecting:   {StateExecuting, StateCompleted, StateFailed},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// canTransition reports whether moving from s to next is legal.
func (s State) canTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s State) String() string {
	return string(s)
}

type transitionError struct {
	from, to State
}

func (e transitionError) Error() string {
	return fmt.Sprintf("illegal run state transition %s -> %s", e.from, e.to)
}
