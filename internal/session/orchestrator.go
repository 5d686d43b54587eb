// Package session composes the session engine: it owns the per-turn
// workflow from user input through the completion service to the persisted
// session aggregate.
package session

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/dayplan-ai/dayplan/internal/completion"
	"github.com/dayplan-ai/dayplan/internal/event"
	"github.com/dayplan-ai/dayplan/internal/logging"
	"github.com/dayplan-ai/dayplan/internal/profile"
	"github.com/dayplan-ai/dayplan/internal/state"
	"github.com/dayplan-ai/dayplan/internal/store"
	"github.com/dayplan-ai/dayplan/pkg/types"
)

// DefaultDirective is the instruction seeded into every new conversation.
const DefaultDirective = `You are a day-planning assistant. Work with the user to produce a realistic
daily plan. Ask clarifying questions when the goal is vague; otherwise draft
a schedule with time slots, priorities, and notes, then refine it from
feedback until the user accepts it.`

// Config holds orchestrator settings.
type Config struct {
	// Directive is the system-level instruction for new sessions.
	Directive string
	// ContextWindow bounds how many conversation messages are sent to the
	// completion service per turn. Zero sends the full history.
	ContextWindow int
	// UserID selects the profile used for the ephemeral context block.
	UserID string
}

// TurnResult is what a completed turn hands back to the caller.
type TurnResult struct {
	// TurnID correlates this turn across logs and events.
	TurnID string
	// Result is the structured payload the completion service returned.
	Result *types.StructuredResult
	// State is the session state after the turn, which may differ from
	// Result.State when a proposed transition was rejected.
	State types.State
	// Summary is the compact human-readable description appended to the
	// conversation as the assistant turn.
	Summary string
	// Notices carries anomalies resolved during the turn (rejected
	// transitions, forced fallbacks, unpersisted saves).
	Notices []string
	// Persisted is false when the final save failed; the in-memory session
	// is still current but may not survive a restart.
	Persisted bool
}

// Orchestrator drives the planning conversation. One turn runs to
// completion before the next; a single session id must never be driven by
// two orchestrators at once.
type Orchestrator struct {
	store    *store.Store
	client   completion.Client
	retry    *completion.RetryPolicy
	profiles profile.Provider
	bus      *event.Bus
	now      func() time.Time
	log      zerolog.Logger
	entropy  *rand.Rand
	cfg      Config
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithClock injects the clock used for message and session timestamps.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// WithBus injects the event bus.
func WithBus(bus *event.Bus) OrchestratorOption {
	return func(o *Orchestrator) { o.bus = bus }
}

// WithLogger injects the orchestrator logger.
func WithLogger(l zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.log = l }
}

// WithProfiles injects the profile provider for the ephemeral context
// block. Without one, turns carry no profile context.
func WithProfiles(p profile.Provider) OrchestratorOption {
	return func(o *Orchestrator) { o.profiles = p }
}

// New creates an orchestrator over the given store, completion client, and
// retry policy.
func New(st *store.Store, client completion.Client, retry *completion.RetryPolicy, cfg Config, opts ...OrchestratorOption) *Orchestrator {
	if cfg.Directive == "" {
		cfg.Directive = DefaultDirective
	}
	o := &Orchestrator{
		store:   st,
		client:  client,
		retry:   retry,
		now:     time.Now,
		log:     logging.Logger,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		cfg:     cfg,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Open loads the session for id, creating and persisting a fresh one when
// none exists or when forceNew is set. It reports whether an existing
// session was resumed.
func (o *Orchestrator) Open(id string, forceNew bool) (*types.Session, bool, error) {
	if !forceNew {
		sess, err := o.store.Load(id)
		if err != nil {
			return nil, false, err
		}
		if sess != nil {
			o.log.Info().Str("session", id).Str("state", sess.State.String()).Msg("resuming session")
			return sess, true, nil
		}
	}

	sess := types.NewSession(id, o.cfg.Directive, o.now())
	o.log.Info().Str("session", id).Msg("creating new session")
	if err := o.store.Save(id, sess); err != nil {
		return nil, false, err
	}
	// Announced only once the session actually exists on disk.
	o.bus.Publish(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{SessionID: id},
	})
	return sess, false, nil
}

// SubmitGoal runs a turn carrying the user's initial (or continued) goal.
func (o *Orchestrator) SubmitGoal(ctx context.Context, sess *types.Session, goal string) (*TurnResult, error) {
	if goal == "" {
		return nil, fmt.Errorf("goal must not be empty")
	}
	return o.turn(ctx, sess, []string{goal})
}

// SubmitAnswers runs a turn carrying answers to the pending clarifying
// questions.
func (o *Orchestrator) SubmitAnswers(ctx context.Context, sess *types.Session, answers []types.QuestionAnswer) (*TurnResult, error) {
	if len(answers) == 0 {
		return nil, fmt.Errorf("answers must not be empty")
	}
	inputs := make([]string, 0, len(answers))
	for _, qa := range answers {
		inputs = append(inputs, fmt.Sprintf("%s: %s", qa.Question, qa.Answer))
	}
	return o.turn(ctx, sess, inputs)
}

// SubmitFeedback runs a turn carrying the user's feedback on the draft
// plan.
func (o *Orchestrator) SubmitFeedback(ctx context.Context, sess *types.Session, feedback string) (*TurnResult, error) {
	if feedback == "" {
		return nil, fmt.Errorf("feedback must not be empty")
	}
	return o.turn(ctx, sess, []string{feedback})
}

// Revise reopens a finalized session for another feedback round. This is
// the only path back out of the finalized state, and it is caller-driven:
// a completion response can never reopen a finalized plan on its own.
func (o *Orchestrator) Revise(sess *types.Session) error {
	if !state.CanRevise(sess.State) {
		return fmt.Errorf("cannot revise a session in state %s", sess.State)
	}
	sess.State = types.StateAwaitingFeedback
	sess.Touch(o.now())
	if err := o.store.Save(sess.Metadata.ID, sess); err != nil {
		return err
	}
	o.log.Info().Str("session", sess.Metadata.ID).Msg("plan reopened for revision")
	return nil
}

// ResetConversation clears the session's conversation, keeping the seeded
// directive, and persists the result.
func (o *Orchestrator) ResetConversation(sess *types.Session) error {
	sess.Conversation.Reset(true)
	sess.Touch(o.now())
	return o.store.Save(sess.Metadata.ID, sess)
}

// turn runs the per-turn protocol: append the inputs, persist them, call
// the completion service through the retry policy, interpret the result,
// mutate the session, persist, and summarize.
func (o *Orchestrator) turn(ctx context.Context, sess *types.Session, inputs []string) (*TurnResult, error) {
	id := sess.Metadata.ID
	turnID := o.newTurnID()
	log := o.log.With().Str("session", id).Str("turn", turnID).Logger()

	for _, input := range inputs {
		sess.Conversation.Append(types.RoleUser, input, o.now())
		sess.Metadata.UserTurnCount++
	}
	sess.Touch(o.now())

	var notices []string
	persistedInput := true
	// Persist the input before the completion call: if the call fails, the
	// user's turn is not lost, and no state transition has happened yet.
	if err := o.save(id, sess, &notices); err != nil {
		persistedInput = false
	}

	wire := o.buildContext(ctx, sess)

	result, err := o.retry.Do(ctx, func(ctx context.Context) (*types.StructuredResult, error) {
		return o.client.Complete(ctx, wire)
	})
	if err != nil {
		// The turn aborts; the appended input is already saved (unless the
		// save itself warned above) and no state transition occurred.
		return nil, err
	}

	newState, rejected := o.applyTransition(log, sess, result, &notices)

	if result.Plan != nil {
		sess.Plan = result.Plan
	}
	sess.State = newState
	// A rejected transition keeps the session as it was, pending questions
	// included; the response's empty question list must not wipe them.
	if !rejected {
		if newState == types.StateAwaitingClarification {
			pending := make([]types.QuestionAnswer, 0, len(result.Questions))
			for _, q := range result.Questions {
				pending = append(pending, types.QuestionAnswer{Question: q})
			}
			sess.PendingQuestions = pending
		} else {
			sess.PendingQuestions = nil
		}
	}

	summary := Summarize(result, newState)
	sess.Conversation.Append(types.RoleAssistant, summary, o.now())
	sess.Metadata.CompletionCallCount++
	sess.Touch(o.now())

	persisted := o.save(id, sess, &notices) == nil && persistedInput

	return &TurnResult{
		TurnID:    turnID,
		Result:    result,
		State:     newState,
		Summary:   summary,
		Notices:   notices,
		Persisted: persisted,
	}, nil
}

// applyTransition validates the proposed state against the machine. A
// rejected transition is logged and discarded, keeping the current state so
// a malformed response cannot corrupt the on-disk state; the payload it
// arrived with is still applied. A response that claimed clarification with
// nothing to ask is forced to feedback so the session is never left waiting
// on questions that don't exist. The force applies only to an accepted
// clarification claim: a rejected transition already fell back to the
// current state, and that fallback stands even when the current state is
// clarification.
func (o *Orchestrator) applyTransition(log zerolog.Logger, sess *types.Session, result *types.StructuredResult, notices *[]string) (types.State, bool) {
	newState, err := state.Transition(sess.State, result.State)
	rejected := err != nil
	if rejected {
		log.Warn().Err(err).Msg("completion proposed invalid transition, keeping current state")
		o.bus.Publish(event.Event{
			Type: event.TransitionRejected,
			Data: event.TransitionRejectedData{SessionID: sess.Metadata.ID, From: sess.State, To: result.State},
		})
		*notices = append(*notices, fmt.Sprintf(
			"the service proposed an invalid state change (%s to %s); staying in %s",
			sess.State, result.State, sess.State))
		newState = sess.State
	}

	if !rejected && result.State == types.StateAwaitingClarification && len(result.Questions) == 0 {
		log.Warn().Msg("clarification state with no questions, forcing feedback state")
		*notices = append(*notices,
			"the service asked for clarification without any questions; treating the turn as a draft for feedback")
		newState = types.StateAwaitingFeedback
	}
	return newState, rejected
}

// buildContext assembles the outgoing messages: the (optionally windowed)
// history plus the ephemeral profile block. The profile block is recomputed
// every turn and never persisted into the stored conversation.
func (o *Orchestrator) buildContext(ctx context.Context, sess *types.Session) []types.WireMessage {
	window := sess.Conversation.Recent(o.cfg.ContextWindow)
	wire := types.WireFormat(window)

	if o.profiles == nil {
		return wire
	}
	block, err := o.profiles.Context(ctx, o.cfg.UserID)
	if err != nil {
		o.log.Warn().Err(err).Msg("profile context unavailable for this turn")
		return wire
	}
	if block == "" {
		return wire
	}

	profileMsg := types.WireMessage{Role: "system", Content: "USER PROFILE:\n" + block}
	// Insert after the directive when one leads the window, so the service
	// sees instruction, then profile, then conversation.
	if len(wire) > 0 && wire[0].Role == "system" {
		out := make([]types.WireMessage, 0, len(wire)+1)
		out = append(out, wire[0], profileMsg)
		out = append(out, wire[1:]...)
		return out
	}
	return append([]types.WireMessage{profileMsg}, wire...)
}

// save persists the session, downgrading storage failures to a warning: the
// turn's result is still returned, the caller just learns the mutation may
// not have survived.
func (o *Orchestrator) save(id string, sess *types.Session, notices *[]string) error {
	err := o.store.Save(id, sess)
	if err == nil {
		return nil
	}
	o.log.Error().Err(err).Str("session", id).Msg("failed to persist session")
	o.bus.Publish(event.Event{
		Type: event.StorageWarning,
		Data: event.StorageWarningData{SessionID: id, Reason: err.Error()},
	})
	*notices = append(*notices, "warning: progress may not have been saved: "+err.Error())
	return err
}

func (o *Orchestrator) newTurnID() string {
	return ulid.MustNew(ulid.Timestamp(o.now()), o.entropy).String()
}
