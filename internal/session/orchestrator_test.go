package session

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayplan-ai/dayplan/internal/completion"
	"github.com/dayplan-ai/dayplan/internal/event"
	"github.com/dayplan-ai/dayplan/internal/store"
	"github.com/dayplan-ai/dayplan/pkg/types"
)

var testClock = time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)

// scriptedClient returns canned responses in order and records every wire
// payload it was called with.
type scriptedClient struct {
	script []func() (*types.StructuredResult, error)
	seen   [][]types.WireMessage
}

func (c *scriptedClient) Complete(_ context.Context, wire []types.WireMessage) (*types.StructuredResult, error) {
	c.seen = append(c.seen, wire)
	if len(c.seen) > len(c.script) {
		return nil, errors.New("scripted client called more times than scripted")
	}
	return c.script[len(c.seen)-1]()
}

func respond(result *types.StructuredResult) func() (*types.StructuredResult, error) {
	return func() (*types.StructuredResult, error) { return result, nil }
}

func fail(msg string) func() (*types.StructuredResult, error) {
	return func() (*types.StructuredResult, error) { return nil, errors.New(msg) }
}

func draftPlan() *types.Plan {
	return &types.Plan{
		Schedule:   []types.ScheduleItem{{Time: "09:00-10:30", Task: "write report", Priority: "high"}},
		Priorities: []string{"write report"},
	}
}

type testEnv struct {
	orch   *Orchestrator
	store  *store.Store
	client *scriptedClient
	bus    *event.Bus
	waits  []time.Duration
}

func newTestEnv(t *testing.T, script []func() (*types.StructuredResult, error), opts ...OrchestratorOption) *testEnv {
	t.Helper()

	env := &testEnv{
		client: &scriptedClient{script: script},
		bus:    event.NewBus(),
	}
	t.Cleanup(func() { env.bus.Close() })

	st, err := store.New(t.TempDir(),
		store.WithClock(func() time.Time { return testClock }),
		store.WithMinFreeBytes(0),
	)
	require.NoError(t, err)
	env.store = st

	retry := completion.NewRetryPolicy(
		completion.DefaultRetryConfig(),
		completion.WithSleep(func(_ context.Context, d time.Duration) error {
			env.waits = append(env.waits, d)
			return nil
		}),
	)

	opts = append([]OrchestratorOption{
		WithClock(func() time.Time { return testClock }),
		WithBus(env.bus),
	}, opts...)
	env.orch = New(st, env.client, retry, Config{}, opts...)
	return env
}

func TestOpenCreatesIdleSession(t *testing.T) {
	env := newTestEnv(t, nil)

	sess, resumed, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, types.StateIdle, sess.State)
	assert.Nil(t, sess.Plan)

	// A fresh conversation holds exactly the seeded directive.
	require.Equal(t, 1, sess.Conversation.Len())
	assert.Equal(t, types.RoleDirective, sess.Conversation.Messages[0].Role)
	assert.Equal(t, DefaultDirective, sess.Conversation.Messages[0].Content)

	// Creation is persisted immediately.
	assert.True(t, env.store.Exists("2026-08-29"))
}

func TestOpenResumesExistingSession(t *testing.T) {
	env := newTestEnv(t, nil)

	first, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)
	first.State = types.StateAwaitingFeedback
	first.Plan = draftPlan()
	require.NoError(t, env.store.Save("2026-08-29", first))

	sess, resumed, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, types.StateAwaitingFeedback, sess.State)
	require.NotNil(t, sess.Plan)
}

func TestOpenForceNewDiscardsExisting(t *testing.T) {
	env := newTestEnv(t, nil)

	first, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)
	first.State = types.StateFinalized
	require.NoError(t, env.store.Save("2026-08-29", first))

	sess, resumed, err := env.orch.Open("2026-08-29", true)
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.Equal(t, types.StateIdle, sess.State)
}

func TestOpenDoesNotAnnounceUnpersistedSession(t *testing.T) {
	env := newTestEnv(t, nil)

	var created []event.Event
	env.bus.Subscribe(event.SessionCreated, func(e event.Event) { created = append(created, e) })

	// A store whose free-space floor can never be met refuses every save.
	full, err := store.New(t.TempDir(),
		store.WithClock(func() time.Time { return testClock }),
		store.WithMinFreeBytes(math.MaxUint64),
	)
	require.NoError(t, err)
	env.orch.store = full

	_, _, err = env.orch.Open("2026-08-29", false)
	require.Error(t, err)
	assert.Empty(t, created)

	// A successful create announces exactly once.
	env.orch.store = env.store
	_, _, err = env.orch.Open("2026-08-29", false)
	require.NoError(t, err)
	assert.Len(t, created, 1)
}

func TestFullPlanningLifecycle(t *testing.T) {
	env := newTestEnv(t, []func() (*types.StructuredResult, error){
		respond(&types.StructuredResult{
			State:     types.StateAwaitingClarification,
			Questions: []string{"What time do you start?", "Any fixed meetings?"},
		}),
		respond(&types.StructuredResult{
			State: types.StateAwaitingFeedback,
			Plan:  draftPlan(),
		}),
		respond(&types.StructuredResult{
			State: types.StateFinalized,
			Plan:  draftPlan(),
		}),
	})

	sess, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)
	ctx := context.Background()

	// Goal -> clarifying questions.
	turn, err := env.orch.SubmitGoal(ctx, sess, "plan a focused work day")
	require.NoError(t, err)
	assert.Equal(t, types.StateAwaitingClarification, turn.State)
	require.Len(t, sess.PendingQuestions, 2)
	assert.Equal(t, "What time do you start?", sess.PendingQuestions[0].Question)
	assert.Contains(t, turn.Summary, "1. What time do you start?")
	assert.True(t, turn.Persisted)

	// Answers -> draft plan awaiting feedback.
	turn, err = env.orch.SubmitAnswers(ctx, sess, []types.QuestionAnswer{
		{Question: "What time do you start?", Answer: "9am"},
		{Question: "Any fixed meetings?", Answer: "standup at 11"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateAwaitingFeedback, turn.State)
	assert.Empty(t, sess.PendingQuestions)
	require.NotNil(t, sess.Plan)
	assert.Contains(t, turn.Summary, "write report")

	// Acceptance -> finalized.
	turn, err = env.orch.SubmitFeedback(ctx, sess, "looks good")
	require.NoError(t, err)
	assert.Equal(t, types.StateFinalized, turn.State)
	assert.Contains(t, turn.Summary, "finalized")

	// Counters track the three completion calls and four user inputs
	// (one goal, two answers, one feedback line).
	assert.Equal(t, 3, sess.Metadata.CompletionCallCount)
	assert.Equal(t, 4, sess.Metadata.UserTurnCount)

	// Every mutation survives a reload.
	loaded, err := env.store.Load("2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, types.StateFinalized, loaded.State)
	assert.Equal(t, 3, loaded.Metadata.CompletionCallCount)
}

func TestInvalidTransitionKeepsCurrentState(t *testing.T) {
	env := newTestEnv(t, []func() (*types.StructuredResult, error){
		// The service tries to drag a finalized session back to idle, which
		// the machine forbids.
		respond(&types.StructuredResult{State: types.StateIdle}),
	})

	var rejected []event.Event
	env.bus.Subscribe(event.TransitionRejected, func(e event.Event) { rejected = append(rejected, e) })

	sess, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)
	sess.State = types.StateFinalized
	sess.Plan = draftPlan()
	require.NoError(t, env.store.Save("2026-08-29", sess))

	turn, err := env.orch.SubmitFeedback(context.Background(), sess, "actually, scrap it")
	require.NoError(t, err)

	assert.Equal(t, types.StateFinalized, turn.State)
	assert.Equal(t, types.StateFinalized, sess.State)
	require.Len(t, turn.Notices, 1)
	assert.Contains(t, turn.Notices[0], "invalid state change")
	require.Len(t, rejected, 1)
	data := rejected[0].Data.(event.TransitionRejectedData)
	assert.Equal(t, types.StateFinalized, data.From)
	assert.Equal(t, types.StateIdle, data.To)

	// The rejection is not an error: the turn completed and persisted.
	loaded, err := env.store.Load("2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, types.StateFinalized, loaded.State)
}

func TestRetrySucceedsAfterTransientTimeouts(t *testing.T) {
	want := &types.StructuredResult{State: types.StateAwaitingFeedback, Plan: draftPlan()}
	env := newTestEnv(t, []func() (*types.StructuredResult, error){
		fail("request timeout"),
		fail("request timed out"),
		respond(want),
	})

	sess, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)

	turn, err := env.orch.SubmitGoal(context.Background(), sess, "plan my day")
	require.NoError(t, err)

	// The retries are invisible to the caller: one result, one completion
	// call counted, exactly three attempts under the hood.
	assert.Same(t, want, turn.Result)
	assert.Equal(t, 1, sess.Metadata.CompletionCallCount)
	assert.Len(t, env.client.seen, 3)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, env.waits)
}

func TestCompletionFailureLeavesInputPersisted(t *testing.T) {
	env := newTestEnv(t, []func() (*types.StructuredResult, error){
		fail("authentication failed: invalid_api_key"),
	})

	sess, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)

	_, err = env.orch.SubmitGoal(context.Background(), sess, "plan my day")
	var cerr *completion.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, completion.KindNonRetryable, cerr.Kind)
	assert.Len(t, env.client.seen, 1)

	// The user's input was saved before the call, and no transition ran.
	loaded, err := env.store.Load("2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, types.StateIdle, loaded.State)
	require.Equal(t, 2, loaded.Conversation.Len())
	assert.Equal(t, "plan my day", loaded.Conversation.Messages[1].Content)
}

func TestClarificationWithoutQuestionsForcedToFeedback(t *testing.T) {
	env := newTestEnv(t, []func() (*types.StructuredResult, error){
		respond(&types.StructuredResult{
			State: types.StateAwaitingClarification,
			Plan:  draftPlan(),
		}),
	})

	sess, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)

	turn, err := env.orch.SubmitGoal(context.Background(), sess, "plan my day")
	require.NoError(t, err)
	assert.Equal(t, types.StateAwaitingFeedback, turn.State)
	assert.Empty(t, sess.PendingQuestions)
	require.Len(t, turn.Notices, 1)
	assert.Contains(t, turn.Notices[0], "without any questions")
}

func TestRejectedTransitionKeepsPendingQuestions(t *testing.T) {
	env := newTestEnv(t, []func() (*types.StructuredResult, error){
		// An invalid proposal with an empty question list: the fallback must
		// keep the clarification state as-is, not force it to feedback.
		respond(&types.StructuredResult{State: types.StateIdle}),
	})

	sess, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)
	sess.State = types.StateAwaitingClarification
	sess.PendingQuestions = []types.QuestionAnswer{{Question: "What time do you start?"}}
	require.NoError(t, env.store.Save("2026-08-29", sess))

	turn, err := env.orch.SubmitAnswers(context.Background(), sess, []types.QuestionAnswer{
		{Question: "What time do you start?", Answer: "9am"},
	})
	require.NoError(t, err)

	assert.Equal(t, types.StateAwaitingClarification, turn.State)
	assert.Equal(t, types.StateAwaitingClarification, sess.State)
	require.Len(t, sess.PendingQuestions, 1)
	assert.Equal(t, "What time do you start?", sess.PendingQuestions[0].Question)

	// Only the rejection notice: no forced-feedback anomaly on top.
	require.Len(t, turn.Notices, 1)
	assert.Contains(t, turn.Notices[0], "invalid state change")

	loaded, err := env.store.Load("2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, types.StateAwaitingClarification, loaded.State)
	require.Len(t, loaded.PendingQuestions, 1)
	assert.Nil(t, loaded.Plan)
}

type staticProfiles struct{ block string }

func (p staticProfiles) Context(context.Context, string) (string, error) { return p.block, nil }

func TestProfileBlockSentButNeverPersisted(t *testing.T) {
	env := newTestEnv(t, []func() (*types.StructuredResult, error){
		respond(&types.StructuredResult{State: types.StateAwaitingFeedback, Plan: draftPlan()}),
	}, WithProfiles(staticProfiles{block: "Work hours: 09:00-17:00"}))

	sess, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)

	_, err = env.orch.SubmitGoal(context.Background(), sess, "plan my day")
	require.NoError(t, err)

	// On the wire: directive, then profile block, then the user turn.
	require.Len(t, env.client.seen, 1)
	wire := env.client.seen[0]
	require.Len(t, wire, 3)
	assert.Equal(t, "system", wire[0].Role)
	assert.Equal(t, "system", wire[1].Role)
	assert.Contains(t, wire[1].Content, "Work hours: 09:00-17:00")
	assert.Equal(t, "user", wire[2].Role)

	// On disk: the profile block appears nowhere in the conversation.
	loaded, err := env.store.Load("2026-08-29")
	require.NoError(t, err)
	for _, msg := range loaded.Conversation.Messages {
		assert.NotContains(t, msg.Content, "Work hours")
	}
}

func TestContextWindowBoundsOutgoingHistory(t *testing.T) {
	env := newTestEnv(t, []func() (*types.StructuredResult, error){
		respond(&types.StructuredResult{State: types.StateAwaitingFeedback, Plan: draftPlan()}),
	})
	env.orch.cfg.ContextWindow = 2

	sess, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		sess.Conversation.Append(types.RoleUser, "earlier turn", testClock)
		sess.Conversation.Append(types.RoleAssistant, "earlier summary", testClock)
	}

	_, err = env.orch.SubmitGoal(context.Background(), sess, "plan my day")
	require.NoError(t, err)

	require.Len(t, env.client.seen, 1)
	assert.Len(t, env.client.seen[0], 2)
}

func TestStorageFailureDowngradedToNotice(t *testing.T) {
	env := newTestEnv(t, []func() (*types.StructuredResult, error){
		respond(&types.StructuredResult{State: types.StateAwaitingFeedback, Plan: draftPlan()}),
	})

	var warnings []event.Event
	env.bus.Subscribe(event.StorageWarning, func(e event.Event) { warnings = append(warnings, e) })

	sess, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)

	// Re-point the orchestrator at a store whose free-space floor can never
	// be met, so every save is refused as disk_full.
	full, err := store.New(t.TempDir(),
		store.WithClock(func() time.Time { return testClock }),
		store.WithBus(env.bus),
		store.WithMinFreeBytes(math.MaxUint64),
	)
	require.NoError(t, err)
	env.orch.store = full

	turn, err := env.orch.SubmitGoal(context.Background(), sess, "plan my day")
	require.NoError(t, err)

	// The turn still succeeds in memory; the caller learns it may not stick.
	assert.Equal(t, types.StateAwaitingFeedback, turn.State)
	assert.False(t, turn.Persisted)
	require.NotEmpty(t, turn.Notices)
	assert.Contains(t, strings.Join(turn.Notices, " "), "may not have been saved")
	assert.GreaterOrEqual(t, len(warnings), 1)
}

func TestReviseReopensFinalizedPlan(t *testing.T) {
	env := newTestEnv(t, nil)

	sess, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)
	sess.State = types.StateFinalized
	sess.Plan = draftPlan()
	require.NoError(t, env.store.Save("2026-08-29", sess))

	require.NoError(t, env.orch.Revise(sess))
	assert.Equal(t, types.StateAwaitingFeedback, sess.State)

	loaded, err := env.store.Load("2026-08-29")
	require.NoError(t, err)
	assert.Equal(t, types.StateAwaitingFeedback, loaded.State)
}

func TestReviseRejectedOutsideFinalized(t *testing.T) {
	env := newTestEnv(t, nil)

	sess, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)
	err = env.orch.Revise(sess)
	require.Error(t, err)
	assert.Equal(t, types.StateIdle, sess.State)
}

func TestResetConversationKeepsDirective(t *testing.T) {
	env := newTestEnv(t, nil)

	sess, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)
	sess.Conversation.Append(types.RoleUser, "plan my day", testClock)
	sess.Conversation.Append(types.RoleAssistant, "draft summary", testClock)

	require.NoError(t, env.orch.ResetConversation(sess))
	require.Equal(t, 1, sess.Conversation.Len())
	assert.Equal(t, types.RoleDirective, sess.Conversation.Messages[0].Role)
}

func TestEmptyInputsRejectedWithoutACall(t *testing.T) {
	env := newTestEnv(t, nil)
	sess, _, err := env.orch.Open("2026-08-29", false)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = env.orch.SubmitGoal(ctx, sess, "")
	require.Error(t, err)
	_, err = env.orch.SubmitFeedback(ctx, sess, "")
	require.Error(t, err)
	_, err = env.orch.SubmitAnswers(ctx, sess, nil)
	require.Error(t, err)
	assert.Empty(t, env.client.seen)
}
