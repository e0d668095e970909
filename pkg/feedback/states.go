package feedback

import "fmt"

// State is a Controller state.
type State string

// Controller states. TERMINATED, EXHAUSTED and FAILED are terminal.
const (
	StatePlanning   State = "PLANNING"
	StateCoding     State = "CODING"
	StateTesting    State = "TESTING"
	StateReplanning State = "REPLANNING"
	StateTerminated State = "TERMINATED"
	StateExhausted  State = "EXHAUSTED"
	StateFailed     State = "FAILED"
)

func (s State) String() string { return string(s) }

// AllStates returns every state in pipeline order.
func AllStates() []State {
	return []State{
		StatePlanning, StateCoding, StateTesting, StateReplanning,
		StateTerminated, StateExhausted, StateFailed,
	}
}

// transitions is the canonical transition map of the loop.
var transitions = map[State][]State{ //nolint:gochecknoglobals
	// PLANNING produces the first plan.
	StatePlanning: {StateCoding, StateExhausted, StateFailed},

	// CODING hands the coder output to the tester.
	StateCoding: {StateTesting, StateExhausted, StateFailed},

	// TESTING branches on the tester's verdict, or stops at the round bound.
	StateTesting: {StateTerminated, StateReplanning, StateCoding, StateExhausted, StateFailed},

	// REPLANNING feeds the new plan to the coder.
	StateReplanning: {StateCoding, StateExhausted, StateFailed},
}

// ValidNextStates returns the states reachable from s.
func ValidNextStates(s State) []State {
	return transitions[s]
}

// IsValidTransition reports whether from -> to is allowed.
func IsValidTransition(from, to State) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s ends a run.
func (s State) IsTerminal() bool {
	return s == StateTerminated || s == StateExhausted || s == StateFailed
}

// ValidateState checks s is a known state.
func ValidateState(s State) error {
	for _, known := range AllStates() {
		if s == known {
			return nil
		}
	}
	return fmt.Errorf("invalid loop state: %s", s)
}
