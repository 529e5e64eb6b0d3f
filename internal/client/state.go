package client

import "fmt"

// State is the position of a Session in the quote/booking flow.
type State string

const (
	StateIdle       State = "idle"
	StateQuoting    State = "quoting"
	StateQuoteReady State = "quote_ready"
	StateSubmitting State = "submitting"
	StateConfirmed  State = "confirmed"
	StateFailed     State = "failed"
)

// validTransitions defines the state machine for a booking session.
var validTransitions = map[State][]State{
	StateIdle:       {StateQuoting},
	StateQuoting:    {StateQuoting, StateQuoteReady, StateIdle},
	StateQuoteReady: {StateQuoting, StateSubmitting},
	StateSubmitting: {StateConfirmed, StateFailed, StateQuoteReady},
	StateConfirmed:  {StateIdle},
	StateFailed:     {StateSubmitting, StateIdle},
}

// IsValid returns true if the state is a recognized session state.
func (s State) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this state to the target is allowed.
func (s State) CanTransitionTo(target State) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true for the end states of a submission.
func (s State) IsTerminal() bool {
	return s == StateConfirmed || s == StateFailed
}

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// TransitionError reports an operation attempted from the wrong state.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition session from %s to %s", e.From, e.To)
}

// Is makes every TransitionError match ErrInvalidTransition.
func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }
