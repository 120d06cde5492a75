package treegen

import (
	"context"
	"time"

	"github.com/BaSui01/convtree/types"
)

// UserAgent writes the simulated user's messages.
type UserAgent interface {
	Initiate(ctx context.Context, intent, domain string) (string, int, error)
	Continue(ctx context.Context, intent, domain string, history []types.ConversationTurn) (string, int, error)
}

// AssistantAgent answers the simulated user.
type AssistantAgent interface {
	Respond(ctx context.Context, history []types.ConversationTurn, prompt string) (string, int, error)
}

// ModeratorAgent proposes the sub-intents a branch may fork into.
type ModeratorAgent interface {
	SuggestSubIntents(ctx context.Context, intent string, history []types.ConversationTurn) ([]string, int, error)
}

// TranscriptWriter persists finished branches and per-tree records.
type TranscriptWriter interface {
	WriteBranch(ctx context.Context, docID, label, domain string, turns []types.ConversationTurn, moderatorLog []types.ModeratorEntry) error
	AppendTokenLedgerRecord(ctx context.Context, docID string, ledger types.TokenLedger) error
	AppendErrorRecord(ctx context.Context, docID, subIntent, domain, label string) error
}

// BranchOutcome says why a branch stopped growing.
type BranchOutcome string

const (
	// OutcomeComplete: the branch reached the turn limit.
	OutcomeComplete BranchOutcome = "complete"
	// OutcomeNatural: no children were sampled.
	OutcomeNatural BranchOutcome = "natural"
	// OutcomeForced: an agent failed or the token budget ran out.
	OutcomeForced BranchOutcome = "forced"
)

// Recorder receives tree and branch events, typically for metrics.
type Recorder interface {
	BranchFinished(outcome BranchOutcome, turns int)
	TreeFinished(err error, ledger types.TokenLedger, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) BranchFinished(BranchOutcome, int) {}
func (nopRecorder) TreeFinished(error, types.TokenLedger, time.Duration) {}
