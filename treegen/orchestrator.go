package treegen

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/convtree/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Orchestrator runs whole trees: it seeds the root branch, lets the Expander
// grow it and writes the tree's token ledger once expansion returns.
type Orchestrator struct {
	expander  *Expander
	writer    TranscriptWriter
	recorder  Recorder
	rootLabel string
	tracer    trace.Tracer
	logger    *zap.Logger
}

// NewOrchestrator wires an orchestrator and its expander.
func NewOrchestrator(deps ExpanderDeps, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Orchestrator{
		expander:  NewExpander(deps, opts),
		writer:    deps.Writer,
		recorder:  recorder,
		rootLabel: opts.RootLabel,
		tracer:    otel.Tracer(instrumentationName),
		logger:    logger.With(zap.String("component", "orchestrator")),
	}
}

// RunTree expands one seed into a full tree and returns the tokens it used.
// Each call starts from an empty root state and a zeroed ledger. The ledger
// record is written only when expansion succeeded.
func (o *Orchestrator) RunTree(ctx context.Context, maxTurns int, seedIntent, seedDomain, docID string) (ledger types.TokenLedger, err error) {
	ctx, span := o.tracer.Start(ctx, "treegen.RunTree", trace.WithAttributes(
		attribute.String("doc_id", docID),
		attribute.String("intent", seedIntent),
		attribute.String("domain", seedDomain),
		attribute.Int("max_turns", maxTurns),
	))
	start := time.Now()
	defer func() {
		elapsed := time.Since(start)
		o.recorder.TreeFinished(err, ledger, elapsed)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.SetAttributes(
			attribute.Int("tokens.user", ledger.User),
			attribute.Int("tokens.assistant", ledger.Assistant),
			attribute.Int("tokens.moderator", ledger.Moderator),
		)
		span.End()
	}()

	o.logger.Info("tree started",
		zap.String("doc_id", docID),
		zap.String("intent", seedIntent),
		zap.String("domain", seedDomain),
		zap.Int("max_turns", maxTurns))

	acc := &types.TokenLedger{}
	state := NewBranchState(o.rootLabel)
	if err := o.expander.Expand(ctx, maxTurns, seedIntent, seedDomain, state, docID, acc); err != nil {
		o.logger.Error("tree aborted",
			zap.String("doc_id", docID),
			zap.Int("total_tokens", acc.Total()),
			zap.Error(err))
		return *acc, err
	}

	if err := o.writer.AppendTokenLedgerRecord(ctx, docID, *acc); err != nil {
		return *acc, fmt.Errorf("%w: token ledger for %s: %w", ErrPersistence, docID, err)
	}

	o.logger.Info("tree finished",
		zap.String("doc_id", docID),
		zap.Int("user_tokens", acc.User),
		zap.Int("assistant_tokens", acc.Assistant),
		zap.Int("moderator_tokens", acc.Moderator),
		zap.Duration("duration", time.Since(start)))
	return *acc, nil
}
