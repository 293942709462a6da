package fallback

import "fmt"

// State is a step of the resume-with-fallback protocol.
type State string

const (
	// Idle is the state before the first attempt spawns.
	Idle State = "idle"

	// AttemptingResume means the prior session is being continued.
	AttemptingResume State = "attempting_resume"

	// Resumed means the resumed attempt produced output. Terminal.
	Resumed State = "resumed"

	// FallingBack is the transient step between a failed resume and the
	// fresh retry.
	FallingBack State = "falling_back"

	// FreshAttempt means a new session is running.
	FreshAttempt State = "fresh_attempt"

	// Done means the last attempt's result is final. Terminal.
	Done State = "done"
)

func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == Resumed || s == Done
}

// ValidTransitions maps each state to the states it may move to.
var ValidTransitions = map[State][]State{
	Idle:             {AttemptingResume, FreshAttempt},
	AttemptingResume: {Resumed, FallingBack, Done},
	FallingBack:      {FreshAttempt},
	FreshAttempt:     {Done},
	Resumed:          {},
	Done:             {},
}

// CanTransition returns true if moving from 'from' to 'to' is allowed.
func CanTransition(from, to State) bool {
	for _, s := range ValidTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllStates returns every defined state.
func AllStates() []State {
	return []State{Idle, AttemptingResume, Resumed, FallingBack, FreshAttempt, Done}
}

// ParseState converts a string to a State.
func ParseState(s string) (State, bool) {
	for _, valid := range AllStates() {
		if State(s) == valid {
			return valid, true
		}
	}
	return "", false
}

// path records the states one Run passes through.
type path struct {
	states []State
}

func newPath() *path {
	return &path{states: []State{Idle}}
}

func (p *path) current() State {
	return p.states[len(p.states)-1]
}

// move appends to, panicking on a transition the protocol does not allow.
func (p *path) move(to State) {
	if from := p.current(); !CanTransition(from, to) {
		panic(fmt.Sprintf("fallback: invalid transition %s -> %s", from, to))
	}
	p.states = append(p.states, to)
}
