package treegen

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/BaSui01/convtree/llm/budget"
	"github.com/BaSui01/convtree/llm/retry"
	"github.com/BaSui01/convtree/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/convtree/treegen"

// Expander is the recursive branch engine.
type Expander struct {
	turns     *TurnGenerator
	moderator ModeratorAgent
	retryer   retry.Retryer
	sampler   *Sampler
	writer    TranscriptWriter
	recorder  Recorder
	tracer    trace.Tracer
	opts      Options
	logger    *zap.Logger
}

// ExpanderDeps groups the collaborators of an Expander.
type ExpanderDeps struct {
	User      UserAgent
	Assistant AssistantAgent
	Moderator ModeratorAgent
	Writer    TranscriptWriter
	// Recorder is optional.
	Recorder Recorder
	// Rand drives fan-out sampling. Optional; time-seeded when nil.
	Rand   *rand.Rand
	Logger *zap.Logger
}

// NewExpander wires an expander.
func NewExpander(deps ExpanderDeps, opts Options) *Expander {
	opts = opts.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Expander{
		turns:     NewTurnGenerator(deps.User, deps.Assistant, opts, logger),
		moderator: deps.Moderator,
		retryer:   newAgentRetryer(opts, logger.With(zap.String("component", "moderator_retry"))),
		sampler:   NewSampler(deps.Rand, opts.MaxFanout, opts.FirstMinFanout),
		writer:    deps.Writer,
		recorder:  recorder,
		tracer:    otel.Tracer(instrumentationName),
		opts:      opts,
		logger:    logger.With(zap.String("component", "expander")),
	}
}

// treeRun carries the values shared by every branch of one tree.
type treeRun struct {
	maxTurns int
	domain   string
	docID    string
	ledger   *types.TokenLedger
	budget   *budget.TreeBudget
}

// Expand grows the branch described by state under subIntent until it
// terminates, recursing into sampled children depth-first. Agent failures end
// the affected branch only. The returned error is either ErrPersistence-wrapped
// or the context's error; both abort the tree.
func (e *Expander) Expand(ctx context.Context, maxTurns int, subIntent, domain string, state BranchState, docID string, ledger *types.TokenLedger) error {
	if maxTurns < 1 {
		return ErrInvalidTurns
	}
	if ledger == nil {
		ledger = &types.TokenLedger{}
	}
	run := &treeRun{
		maxTurns: maxTurns,
		domain:   domain,
		docID:    docID,
		ledger:   ledger,
		budget: budget.NewTreeBudget(docID, budget.BudgetConfig{
			MaxTokensPerTree: e.opts.MaxTreeTokens,
			AlertThreshold:   0.8,
		}, e.logger),
	}
	run.budget.Record(ledger.Total())
	return e.expand(ctx, run, subIntent, state.Clone())
}

func (e *Expander) expand(ctx context.Context, run *treeRun, subIntent string, state BranchState) (err error) {
	ctx, span := e.tracer.Start(ctx, "treegen.Expand", trace.WithAttributes(
		attribute.String("doc_id", run.docID),
		attribute.String("label", state.Label),
		attribute.Int("depth", state.Depth()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := run.budget.Check(); err != nil {
		return e.forceTerminal(ctx, run, subIntent, state, err)
	}

	turn, usage, err := e.turns.Generate(ctx, subIntent, run.domain, state.Turns)
	run.ledger.AddUser(usage.User)
	run.ledger.AddAssistant(usage.Assistant)
	run.budget.Record(usage.Total())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return e.forceTerminal(ctx, run, subIntent, state, err)
	}

	state = state.WithTurn(turn)
	if state.Depth() >= run.maxTurns {
		return e.persist(ctx, run, state, OutcomeComplete)
	}

	history := state.Turns
	ideas, err := retry.Value(e.retryer, ctx, func() (agentSuggestions, error) {
		ideas, tokens, err := e.moderator.SuggestSubIntents(ctx, subIntent, history)
		return agentSuggestions{ideas: ideas, tokens: tokens}, err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return e.forceTerminal(ctx, run, subIntent, state, classify("moderator", err))
	}
	run.ledger.AddModerator(ideas.tokens)
	run.budget.Record(ideas.tokens)

	sampled := e.sampler.Sample(ideas.ideas, state.Depth() == 1)
	state = state.WithModeratorEntry(types.ModeratorEntry{
		TurnIndex:           state.Depth() - 1,
		SuggestedSubIntents: sampled,
	})
	span.SetAttributes(attribute.Int("children", len(sampled)))

	if len(sampled) == 0 {
		return e.persist(ctx, run, state, OutcomeNatural)
	}

	for i, child := range sampled {
		if err := e.expand(ctx, run, child, state.Fork(i+1)); err != nil {
			return err
		}
	}
	return nil
}

type agentSuggestions struct {
	ideas  []string
	tokens int
}

// forceTerminal ends a branch after a failure: the error is logged and
// recorded, then the turns gathered so far are persisted.
func (e *Expander) forceTerminal(ctx context.Context, run *treeRun, subIntent string, state BranchState, cause error) error {
	e.logger.Warn("branch terminated early",
		zap.String("doc_id", run.docID),
		zap.String("label", state.Label),
		zap.String("intent", subIntent),
		zap.Int("turns", state.Depth()),
		zap.Error(cause))

	if err := e.writer.AppendErrorRecord(ctx, run.docID, subIntent, run.domain, state.Label); err != nil {
		return fmt.Errorf("%w: error record for %s: %w", ErrPersistence, state.Label, err)
	}
	return e.persist(ctx, run, state, OutcomeForced)
}

func (e *Expander) persist(ctx context.Context, run *treeRun, state BranchState, outcome BranchOutcome) error {
	if err := e.writer.WriteBranch(ctx, run.docID, state.Label, run.domain, state.Turns, state.ModeratorLog); err != nil {
		return fmt.Errorf("%w: branch %s: %w", ErrPersistence, state.Label, err)
	}
	e.recorder.BranchFinished(outcome, state.Depth())
	e.logger.Debug("branch persisted",
		zap.String("doc_id", run.docID),
		zap.String("label", state.Label),
		zap.String("outcome", string(outcome)),
		zap.Int("turns", state.Depth()))
	return nil
}
