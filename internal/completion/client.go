// Package completion wraps calls to the external generative completion
// service: a small client contract, response-schema validation, and a retry
// policy with classified backoff.
package completion

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dayplan-ai/dayplan/pkg/types"
)

// ErrorKind classifies completion failures for the caller.
type ErrorKind string

const (
	// KindMalformedResponse marks an empty or undecodable service payload.
	// The retry policy treats it as retryable.
	KindMalformedResponse ErrorKind = "malformed_response"
	// KindRetriesExhausted wraps the last error after the attempt budget is
	// spent.
	KindRetriesExhausted ErrorKind = "retries_exhausted"
	// KindNonRetryable marks an error the classifier refuses to retry.
	KindNonRetryable ErrorKind = "non_retryable"
)

// Error is the typed failure surfaced by a completion call.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("completion %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client sends a conversation to the completion service and returns its
// structured result. Implementations own transport, authentication, and the
// per-attempt timeout; the engine sees only this contract.
type Client interface {
	Complete(ctx context.Context, messages []types.WireMessage) (*types.StructuredResult, error)
}

// DecodeResult validates and unpacks a raw service payload against the
// expected schema. Any ambiguity (empty output, null parse, an impossible
// state/plan combination) is a malformed-response error.
func DecodeResult(payload []byte) (*types.StructuredResult, error) {
	if len(payload) == 0 {
		return nil, &Error{Kind: KindMalformedResponse, Err: fmt.Errorf("empty payload from completion service")}
	}

	var result types.StructuredResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Err: fmt.Errorf("decode structured result: %w", err)}
	}

	if err := validateResult(&result); err != nil {
		return nil, &Error{Kind: KindMalformedResponse, Err: err}
	}
	return &result, nil
}

// validateResult enforces the response-time schema invariants: a plan must
// accompany any state that presents one to the user.
func validateResult(r *types.StructuredResult) error {
	switch r.State {
	case types.StateAwaitingFeedback, types.StateFinalized:
		if r.Plan == nil {
			return fmt.Errorf("result state %s requires a plan", r.State)
		}
	case types.StateIdle, types.StateAwaitingClarification:
	}
	return nil
}
