package treegen

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/convtree/testutil"
	"github.com/BaSui01/convtree/testutil/mocks"
	"github.com/BaSui01/convtree/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	userTokens      = 3
	assistantTokens = 5
	moderatorTokens = 7
)

type harness struct {
	user      *mocks.UserAgent
	assistant *mocks.AssistantAgent
	moderator *mocks.ModeratorAgent
	writer    *mocks.RecordingWriter
	recorder  *recordingRecorder
}

func newHarness(moderator *mocks.ModeratorAgent) *harness {
	return &harness{
		user:      mocks.NewUserAgent(userTokens),
		assistant: mocks.NewAssistantAgent(assistantTokens),
		moderator: moderator,
		writer:    mocks.NewRecordingWriter(),
		recorder:  &recordingRecorder{},
	}
}

func (h *harness) orchestrator(t *testing.T, opts Options) *Orchestrator {
	return NewOrchestrator(ExpanderDeps{
		User:      h.user,
		Assistant: h.assistant,
		Moderator: h.moderator,
		Writer:    h.writer,
		Recorder:  h.recorder,
		Rand:      rand.New(rand.NewSource(1)),
		Logger:    zaptest.NewLogger(t),
	}, opts)
}

type recordingRecorder struct {
	mu       sync.Mutex
	outcomes []BranchOutcome
	trees    []error
}

func (r *recordingRecorder) BranchFinished(outcome BranchOutcome, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordingRecorder) TreeFinished(err error, _ types.TokenLedger, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trees = append(r.trees, err)
}

func TestRunTree_SingleBranchWhenModeratorSuggestsNothing(t *testing.T) {
	h := newHarness(mocks.NewModeratorSequence(moderatorTokens))
	o := h.orchestrator(t, Options{})

	ledger, err := o.RunTree(testutil.TestContext(t), 2, "open an account", "banking", "doc-1")
	require.NoError(t, err)

	branches := h.writer.Branches()
	require.Len(t, branches, 1)
	b := branches[0]
	assert.Equal(t, "C-", b.Label)
	assert.Equal(t, "doc-1", b.DocID)
	assert.Equal(t, "banking", b.Domain)
	require.Len(t, b.Turns, 1)
	assert.Equal(t, "open an account", b.Turns[0].Intent)
	require.Len(t, b.ModeratorLog, 1)
	assert.Equal(t, 0, b.ModeratorLog[0].TurnIndex)
	assert.Empty(t, b.ModeratorLog[0].SuggestedSubIntents)

	assert.Equal(t, types.TokenLedger{User: 3, Assistant: 5, Moderator: 7}, ledger)
	require.Len(t, h.writer.Ledgers(), 1)
	assert.Equal(t, ledger, h.writer.Ledgers()[0].Ledger)
	assert.Empty(t, h.writer.Errors())
	assert.Equal(t, []BranchOutcome{OutcomeNatural}, h.recorder.outcomes)
}

func TestRunTree_SingleTurnTree(t *testing.T) {
	h := newHarness(mocks.NewModeratorAgent(moderatorTokens, "never asked"))
	o := h.orchestrator(t, Options{})

	ledger, err := o.RunTree(testutil.TestContext(t), 1, "greet", "retail", "doc-1")
	require.NoError(t, err)

	require.Len(t, h.writer.Branches(), 1)
	assert.Empty(t, h.writer.Branches()[0].ModeratorLog)
	assert.Equal(t, 0, h.moderator.Calls())
	assert.Equal(t, 0, ledger.Moderator)
	assert.Equal(t, []BranchOutcome{OutcomeComplete}, h.recorder.outcomes)
}

func TestRunTree_ForksIntoEveryIdea(t *testing.T) {
	h := newHarness(mocks.NewModeratorByDepth(moderatorTokens, map[int][]string{
		1: {"compare plans", "ask about fees", "close account"},
	}))
	o := h.orchestrator(t, Options{FirstMinFanout: 5})

	ledger, err := o.RunTree(testutil.TestContext(t), 4, "open an account", "banking", "doc-2")
	require.NoError(t, err)

	assert.Equal(t, []string{"C-1-", "C-2-", "C-3-"}, h.writer.Labels())

	var childIntents []string
	for _, b := range h.writer.Branches() {
		require.Len(t, b.Turns, 2)
		assert.Equal(t, "open an account", b.Turns[0].Intent)
		childIntents = append(childIntents, b.Turns[1].Intent)

		require.Len(t, b.ModeratorLog, 2)
		assert.Equal(t, 0, b.ModeratorLog[0].TurnIndex)
		assert.Len(t, b.ModeratorLog[0].SuggestedSubIntents, 3)
		assert.Equal(t, 1, b.ModeratorLog[1].TurnIndex)
		assert.Empty(t, b.ModeratorLog[1].SuggestedSubIntents)
	}
	sort.Strings(childIntents)
	assert.Equal(t, []string{"ask about fees", "close account", "compare plans"}, childIntents)

	// one root turn plus one turn per child; moderator once at the root and once per child
	assert.Equal(t, types.TokenLedger{User: 4 * 3, Assistant: 4 * 5, Moderator: 4 * 7}, ledger)
}

func TestRunTree_ChildOrderFollowsSampling(t *testing.T) {
	h := newHarness(mocks.NewModeratorByDepth(moderatorTokens, map[int][]string{
		1: {"a", "b", "c", "d"},
	}))
	o := h.orchestrator(t, Options{FirstMinFanout: 4, MaxFanout: 4})

	_, err := o.RunTree(testutil.TestContext(t), 2, "seed", "d", "doc")
	require.NoError(t, err)

	branches := h.writer.Branches()
	require.Len(t, branches, 4)
	sampled := branches[0].ModeratorLog[0].SuggestedSubIntents
	for i, b := range branches {
		assert.Equal(t, ChildLabel("C-", i+1), b.Label)
		assert.Equal(t, sampled[i], b.Turns[1].Intent)
		assert.Equal(t, sampled, b.ModeratorLog[0].SuggestedSubIntents)
	}
}

func TestRunTree_UserFailureEndsOnlyThatBranch(t *testing.T) {
	h := newHarness(mocks.NewModeratorByDepth(moderatorTokens, map[int][]string{
		1: {"a", "b"},
	}))
	var mu sync.Mutex
	attemptsFor := map[string]int{}
	h.user.ContinueFn = func(_ context.Context, intent, _ string, history []types.ConversationTurn) (string, int, error) {
		mu.Lock()
		attemptsFor[intent]++
		mu.Unlock()
		if intent == "a" {
			return "", 0, upstreamFailure(types.RoleUser)
		}
		return "continue " + intent, userTokens, nil
	}
	o := h.orchestrator(t, Options{FirstMinFanout: 5})

	ledger, err := o.RunTree(testutil.TestContext(t), 3, "seed", "banking", "doc-3")
	require.NoError(t, err)
	assert.Equal(t, 3, attemptsFor["a"])
	assert.Equal(t, 1, attemptsFor["b"])

	branches := h.writer.Branches()
	require.Len(t, branches, 2)
	byIntent := map[int]mocks.Branch{}
	for _, b := range branches {
		byIntent[len(b.Turns)] = b
	}
	failed, ok := byIntent[1]
	require.True(t, ok, "failed branch keeps the root turn")
	assert.Equal(t, "seed", failed.Turns[0].Intent)
	sibling, ok := byIntent[2]
	require.True(t, ok, "sibling branch continues")
	assert.Equal(t, "b", sibling.Turns[1].Intent)

	errs := h.writer.Errors()
	require.Len(t, errs, 1)
	assert.Equal(t, mocks.ErrorRecord{DocID: "doc-3", SubIntent: "a", Domain: "banking", Label: failed.Label}, errs[0])

	assert.Equal(t, types.TokenLedger{User: 2 * 3, Assistant: 2 * 5, Moderator: 2 * 7}, ledger)
	assert.ElementsMatch(t, []BranchOutcome{OutcomeForced, OutcomeNatural}, h.recorder.outcomes)
}

func TestRunTree_RootFailurePersistsEmptyBranch(t *testing.T) {
	h := newHarness(mocks.NewModeratorSequence(moderatorTokens))
	h.assistant.RespondFn = func(context.Context, []types.ConversationTurn, string) (string, int, error) {
		return "", 0, upstreamFailure(types.RoleAssistant)
	}
	o := h.orchestrator(t, Options{})

	ledger, err := o.RunTree(testutil.TestContext(t), 3, "seed", "d", "doc")
	require.NoError(t, err)
	assert.Equal(t, 1, h.assistant.Calls(), "assistant is not retried by default")

	branches := h.writer.Branches()
	require.Len(t, branches, 1)
	assert.Equal(t, "C-", branches[0].Label)
	assert.Empty(t, branches[0].Turns)
	require.Len(t, h.writer.Errors(), 1)
	assert.Equal(t, "seed", h.writer.Errors()[0].SubIntent)
	assert.Equal(t, types.TokenLedger{User: 3}, ledger, "only the successful user call is charged")
	require.Len(t, h.writer.Ledgers(), 1)
}

func TestRunTree_AssistantRetryOption(t *testing.T) {
	h := newHarness(mocks.NewModeratorSequence(moderatorTokens))
	h.assistant.RespondFn = func(context.Context, []types.ConversationTurn, string) (string, int, error) {
		return "", 0, upstreamFailure(types.RoleAssistant)
	}
	o := h.orchestrator(t, Options{RetryAssistant: true})

	_, err := o.RunTree(testutil.TestContext(t), 3, "seed", "d", "doc")
	require.NoError(t, err)
	assert.Equal(t, 3, h.assistant.Calls())
	assert.Len(t, h.writer.Errors(), 1)
}

func TestRunTree_ModeratorFailureForcesTerminal(t *testing.T) {
	h := newHarness(&mocks.ModeratorAgent{
		SuggestFn: func(context.Context, string, []types.ConversationTurn) ([]string, int, error) {
			return nil, 0, upstreamFailure(types.RoleModerator)
		},
	})
	o := h.orchestrator(t, Options{})

	ledger, err := o.RunTree(testutil.TestContext(t), 3, "seed", "d", "doc")
	require.NoError(t, err)
	assert.Equal(t, 3, h.moderator.Calls())

	branches := h.writer.Branches()
	require.Len(t, branches, 1)
	assert.Len(t, branches[0].Turns, 1)
	assert.Empty(t, branches[0].ModeratorLog)
	require.Len(t, h.writer.Errors(), 1)
	assert.Equal(t, "C-", h.writer.Errors()[0].Label)
	assert.Equal(t, 0, ledger.Moderator)
	assert.Equal(t, []BranchOutcome{OutcomeForced}, h.recorder.outcomes)
}

func TestRunTree_ModeratorRecoversOnRetry(t *testing.T) {
	calls := 0
	h := newHarness(&mocks.ModeratorAgent{
		SuggestFn: func(_ context.Context, _ string, history []types.ConversationTurn) ([]string, int, error) {
			calls++
			if calls == 1 {
				return nil, 0, upstreamFailure(types.RoleModerator)
			}
			return []string{"follow up"}, moderatorTokens, nil
		},
	})
	o := h.orchestrator(t, Options{})

	ledger, err := o.RunTree(testutil.TestContext(t), 2, "seed", "d", "doc")
	require.NoError(t, err)
	assert.Equal(t, []string{"C-1-"}, h.writer.Labels())
	assert.Empty(t, h.writer.Errors())
	assert.Equal(t, moderatorTokens, ledger.Moderator)
}

func TestRunTree_TokenBudgetStopsGrowth(t *testing.T) {
	h := newHarness(mocks.NewModeratorByDepth(moderatorTokens, map[int][]string{
		1: {"a", "b"},
	}))
	o := h.orchestrator(t, Options{FirstMinFanout: 5, MaxTreeTokens: 10})

	ledger, err := o.RunTree(testutil.TestContext(t), 3, "seed", "d", "doc")
	require.NoError(t, err)

	branches := h.writer.Branches()
	require.Len(t, branches, 2)
	for _, b := range branches {
		assert.Len(t, b.Turns, 1)
	}
	assert.Len(t, h.writer.Errors(), 2)
	assert.Equal(t, types.TokenLedger{User: 3, Assistant: 5, Moderator: 7}, ledger)
}

func TestRunTree_PersistenceFailureAborts(t *testing.T) {
	h := newHarness(mocks.NewModeratorByDepth(moderatorTokens, map[int][]string{
		1: {"a", "b"},
	}))
	h.writer.WriteErr = errors.New("disk full")
	o := h.orchestrator(t, Options{FirstMinFanout: 5})

	_, err := o.RunTree(testutil.TestContext(t), 2, "seed", "d", "doc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "disk full")
	assert.Empty(t, h.writer.Ledgers(), "aborted trees write no ledger")
	assert.Equal(t, 1, h.moderator.Calls(), "second child never started")
	require.Len(t, h.recorder.trees, 1)
	assert.ErrorIs(t, h.recorder.trees[0], ErrPersistence)
}

func TestRunTree_ErrorRecordFailureAborts(t *testing.T) {
	h := newHarness(mocks.NewModeratorSequence(moderatorTokens))
	h.assistant.RespondFn = func(context.Context, []types.ConversationTurn, string) (string, int, error) {
		return "", 0, upstreamFailure(types.RoleAssistant)
	}
	h.writer.ErrorErr = errors.New("read-only")
	o := h.orchestrator(t, Options{})

	_, err := o.RunTree(testutil.TestContext(t), 2, "seed", "d", "doc")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Empty(t, h.writer.Branches())
}

func TestRunTree_LedgerFailure(t *testing.T) {
	h := newHarness(mocks.NewModeratorSequence(moderatorTokens))
	h.writer.LedgerErr = errors.New("locked")
	o := h.orchestrator(t, Options{})

	ledger, err := o.RunTree(testutil.TestContext(t), 2, "seed", "d", "doc")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 15, ledger.Total())
	assert.Len(t, h.writer.Branches(), 1)
}

func TestRunTree_CancellationAborts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := newHarness(mocks.NewModeratorSequence(moderatorTokens))
	h.user.InitiateFn = func(ctx context.Context, intent, domain string) (string, int, error) {
		cancel()
		return "", 0, types.NewGenerationError(types.RoleUser, ctx.Err())
	}
	o := h.orchestrator(t, Options{})

	_, err := o.RunTree(ctx, 3, "seed", "d", "doc")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.writer.Branches())
	assert.Empty(t, h.writer.Errors())
	assert.Empty(t, h.writer.Ledgers())
	initiate, _ := h.user.Calls()
	assert.Equal(t, 1, initiate)
}

func TestRunTree_InvalidTurns(t *testing.T) {
	h := newHarness(mocks.NewModeratorSequence(moderatorTokens))
	o := h.orchestrator(t, Options{})

	_, err := o.RunTree(testutil.TestContext(t), 0, "seed", "d", "doc")
	assert.ErrorIs(t, err, ErrInvalidTurns)
	assert.Empty(t, h.writer.Branches())
	assert.Empty(t, h.writer.Ledgers())
}

func TestRunTree_IndependentLedgers(t *testing.T) {
	h := newHarness(mocks.NewModeratorSequence(moderatorTokens))
	o := h.orchestrator(t, Options{})
	ctx := testutil.TestContext(t)

	first, err := o.RunTree(ctx, 2, "seed", "d", "doc-a")
	require.NoError(t, err)
	second, err := o.RunTree(ctx, 2, "seed", "d", "doc-b")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	ledgers := h.writer.Ledgers()
	require.Len(t, ledgers, 2)
	assert.Equal(t, "doc-a", ledgers[0].DocID)
	assert.Equal(t, "doc-b", ledgers[1].DocID)
}

func TestRunTree_CustomRootLabel(t *testing.T) {
	h := newHarness(mocks.NewModeratorByDepth(moderatorTokens, map[int][]string{1: {"x"}}))
	o := h.orchestrator(t, Options{RootLabel: "R-"})

	_, err := o.RunTree(testutil.TestContext(t), 2, "seed", "d", "doc")
	require.NoError(t, err)
	assert.Equal(t, []string{"R-1-"}, h.writer.Labels())
}

func TestExpand_ContinuesExistingState(t *testing.T) {
	h := newHarness(mocks.NewModeratorSequence(moderatorTokens))
	e := NewExpander(ExpanderDeps{
		User:      h.user,
		Assistant: h.assistant,
		Moderator: h.moderator,
		Writer:    h.writer,
		Rand:      rand.New(rand.NewSource(3)),
	}, Options{})

	state := NewBranchState("C-").
		WithTurn(types.ConversationTurn{Intent: "seed", UserPrompt: "hi", AssistantResponse: "hello"}).
		WithModeratorEntry(types.ModeratorEntry{TurnIndex: 0, SuggestedSubIntents: []string{"next"}}).
		Fork(1)
	ledger := &types.TokenLedger{User: 100}

	err := e.Expand(testutil.TestContext(t), 2, "next", "d", state, "doc", ledger)
	require.NoError(t, err)

	branches := h.writer.Branches()
	require.Len(t, branches, 1)
	assert.Equal(t, "C-1-", branches[0].Label)
	require.Len(t, branches[0].Turns, 2)
	assert.Equal(t, "user[next]@1", branches[0].Turns[1].UserPrompt)
	assert.Equal(t, 103, ledger.User)
	assert.Equal(t, 1, state.Depth(), "caller state untouched")
	_, cont := h.user.Calls()
	assert.Equal(t, 1, cont)
}
