// Package state implements the planning session state machine.
//
// The machine is deliberately tiny: four states and a fixed transition
// table. Transition validation is pure; policy about what to do with a
// rejected transition (the orchestrator falls back to the current state)
// lives with the caller, not here.
package state

import (
	"fmt"

	"github.com/dayplan-ai/dayplan/pkg/types"
)

// InvalidTransitionError reports a rejected transition together with the
// transitions that would have been accepted.
type InvalidTransitionError struct {
	From    types.State
	To      types.State
	Allowed []types.State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s (allowed from %s: %v)",
		e.From, e.To, e.From, e.Allowed)
}

// AllowedNext returns the states reachable from the given state. The switch
// is exhaustive over the State enum; an out-of-range value gets no
// transitions.
func AllowedNext(from types.State) []types.State {
	switch from {
	case types.StateIdle:
		return []types.State{types.StateAwaitingClarification, types.StateAwaitingFeedback}
	case types.StateAwaitingClarification:
		return []types.State{types.StateAwaitingFeedback, types.StateFinalized}
	case types.StateAwaitingFeedback:
		// Self-loop: further feedback rounds are allowed.
		return []types.State{types.StateAwaitingClarification, types.StateFinalized, types.StateAwaitingFeedback}
	case types.StateFinalized:
		// Reachable only through an explicit revise action.
		return []types.State{types.StateAwaitingFeedback}
	}
	return nil
}

// Validate reports whether from -> to is an allowed transition.
func Validate(from, to types.State) bool {
	for _, s := range AllowedNext(from) {
		if s == to {
			return true
		}
	}
	return false
}

// Transition returns to when the transition is allowed, or an
// *InvalidTransitionError carrying the attempted and allowed states.
func Transition(from, to types.State) (types.State, error) {
	if !Validate(from, to) {
		return from, &InvalidTransitionError{From: from, To: to, Allowed: AllowedNext(from)}
	}
	return to, nil
}

// CanRevise reports whether the state allows reopening via an explicit
// revise action. Only a finalized plan can be revised; sessions in earlier
// states reach feedback through the normal turn flow.
func CanRevise(from types.State) bool {
	return from == types.StateFinalized
}
