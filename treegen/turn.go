package treegen

import (
	"context"
	"fmt"

	"github.com/BaSui01/convtree/llm/retry"
	"github.com/BaSui01/convtree/types"
	"go.uber.org/zap"
)

// TurnUsage is the token cost of one generated turn, counted from the
// successful attempts only. When the assistant fails, User still carries the
// cost of the prompt that was generated.
type TurnUsage struct {
	User      int
	Assistant int
}

// Total returns User + Assistant.
func (u TurnUsage) Total() int {
	return u.User + u.Assistant
}

// TurnGenerator produces one user/assistant exchange.
type TurnGenerator struct {
	user           UserAgent
	assistant      AssistantAgent
	retryer        retry.Retryer
	retryAssistant bool
	logger         *zap.Logger
}

type agentReply struct {
	text   string
	tokens int
}

// NewTurnGenerator creates a generator. The user agent is always retried
// according to opts; the assistant only when opts.RetryAssistant is set.
func NewTurnGenerator(user UserAgent, assistant AssistantAgent, opts Options, logger *zap.Logger) *TurnGenerator {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "turn_generator"))
	return &TurnGenerator{
		user:           user,
		assistant:      assistant,
		retryer:        newAgentRetryer(opts, logger),
		retryAssistant: opts.RetryAssistant,
		logger:         logger,
	}
}

func newAgentRetryer(opts Options, logger *zap.Logger) retry.Retryer {
	policy := retry.PolicyForAttempts(opts.MaxAttempts, opts.RetryDelay)
	policy.ShouldRetry = types.IsGenerationError
	return retry.NewBackoffRetryer(policy, logger)
}

// Generate produces the next turn for subIntent. An empty turnsSoFar opens a
// conversation; otherwise the user continues it. turnsSoFar is never
// modified.
func (g *TurnGenerator) Generate(ctx context.Context, subIntent, domain string, turnsSoFar []types.ConversationTurn) (types.ConversationTurn, TurnUsage, error) {
	history := types.CloneTurns(turnsSoFar)

	userReply, err := retry.Value(g.retryer, ctx, func() (agentReply, error) {
		var text string
		var tokens int
		var err error
		if len(history) == 0 {
			text, tokens, err = g.user.Initiate(ctx, subIntent, domain)
		} else {
			text, tokens, err = g.user.Continue(ctx, subIntent, domain, history)
		}
		return agentReply{text: text, tokens: tokens}, err
	})
	if err != nil {
		return types.ConversationTurn{}, TurnUsage{}, classify("user", err)
	}

	respond := func() (agentReply, error) {
		text, tokens, err := g.assistant.Respond(ctx, history, userReply.text)
		return agentReply{text: text, tokens: tokens}, err
	}

	var assistantReply agentReply
	if g.retryAssistant {
		assistantReply, err = retry.Value(g.retryer, ctx, respond)
	} else {
		assistantReply, err = respond()
	}
	if err != nil {
		return types.ConversationTurn{}, TurnUsage{User: userReply.tokens}, classify("assistant", err)
	}

	turn := types.ConversationTurn{
		Intent:            subIntent,
		UserPrompt:        userReply.text,
		AssistantResponse: assistantReply.text,
	}
	return turn, TurnUsage{User: userReply.tokens, Assistant: assistantReply.tokens}, nil
}

// classify maps a retryer error onto the package sentinels. Context errors
// pass through untouched.
func classify(agent string, err error) error {
	if retry.IsExhausted(err) {
		return fmt.Errorf("%s agent: %w: %w", agent, ErrExhaustedRetries, err)
	}
	return fmt.Errorf("%s agent: %w", agent, err)
}
