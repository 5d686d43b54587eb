package types

import (
	"encoding/json"
	"fmt"
)

// State is the planning session state. It is a closed enum: decoding an
// unknown value fails rather than producing an out-of-range state.
type State int

const (
	// StateIdle is the initial state of a new session.
	StateIdle State = iota
	// StateAwaitingClarification means the assistant asked clarifying
	// questions and is waiting for answers.
	StateAwaitingClarification
	// StateAwaitingFeedback means a draft plan exists and the assistant is
	// waiting for the user's feedback on it.
	StateAwaitingFeedback
	// StateFinalized means the plan has been accepted.
	StateFinalized
)

const (
	stateIdleStr                  = "idle"
	stateAwaitingClarificationStr = "awaiting_clarification"
	stateAwaitingFeedbackStr      = "awaiting_feedback"
	stateFinalizedStr             = "finalized"
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return stateIdleStr
	case StateAwaitingClarification:
		return stateAwaitingClarificationStr
	case StateAwaitingFeedback:
		return stateAwaitingFeedbackStr
	case StateFinalized:
		return stateFinalizedStr
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ParseState converts a wire name into a State.
func ParseState(s string) (State, error) {
	switch s {
	case stateIdleStr:
		return StateIdle, nil
	case stateAwaitingClarificationStr:
		return StateAwaitingClarification, nil
	case stateAwaitingFeedbackStr:
		return StateAwaitingFeedback, nil
	case stateFinalizedStr:
		return StateFinalized, nil
	}
	return StateIdle, fmt.Errorf("unknown session state %q", s)
}

// MarshalJSON encodes the state as its wire name.
func (s State) MarshalJSON() ([]byte, error) {
	switch s {
	case StateIdle, StateAwaitingClarification, StateAwaitingFeedback, StateFinalized:
		return json.Marshal(s.String())
	}
	return nil, fmt.Errorf("cannot encode invalid session state %d", int(s))
}

// UnmarshalJSON decodes a wire name, rejecting unknown values.
func (s *State) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := ParseState(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
