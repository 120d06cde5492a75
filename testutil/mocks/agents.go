package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/convtree/types"
)

// UserAgent is a scriptable user simulator. With no functions set it
// returns deterministic prompts costing TokensPerCall.
type UserAgent struct {
	mu sync.Mutex

	InitiateFn    func(ctx context.Context, intent, domain string) (string, int, error)
	ContinueFn    func(ctx context.Context, intent, domain string, history []types.ConversationTurn) (string, int, error)
	TokensPerCall int

	initiateCalls int
	continueCalls int
}

// NewUserAgent returns a user agent charging tokens per call.
func NewUserAgent(tokens int) *UserAgent {
	return &UserAgent{TokensPerCall: tokens}
}

func (u *UserAgent) Initiate(ctx context.Context, intent, domain string) (string, int, error) {
	u.mu.Lock()
	u.initiateCalls++
	fn := u.InitiateFn
	u.mu.Unlock()

	if fn != nil {
		return fn(ctx, intent, domain)
	}
	return fmt.Sprintf("user[%s]@0", intent), u.TokensPerCall, nil
}

func (u *UserAgent) Continue(ctx context.Context, intent, domain string, history []types.ConversationTurn) (string, int, error) {
	u.mu.Lock()
	u.continueCalls++
	fn := u.ContinueFn
	u.mu.Unlock()

	if fn != nil {
		return fn(ctx, intent, domain, history)
	}
	return fmt.Sprintf("user[%s]@%d", intent, len(history)), u.TokensPerCall, nil
}

// Calls returns the number of Initiate and Continue invocations.
func (u *UserAgent) Calls() (initiate, cont int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.initiateCalls, u.continueCalls
}

// AssistantAgent is a scriptable assistant.
type AssistantAgent struct {
	mu sync.Mutex

	RespondFn     func(ctx context.Context, history []types.ConversationTurn, prompt string) (string, int, error)
	TokensPerCall int

	calls int
}

// NewAssistantAgent returns an assistant charging tokens per call.
func NewAssistantAgent(tokens int) *AssistantAgent {
	return &AssistantAgent{TokensPerCall: tokens}
}

func (a *AssistantAgent) Respond(ctx context.Context, history []types.ConversationTurn, prompt string) (string, int, error) {
	a.mu.Lock()
	a.calls++
	fn := a.RespondFn
	a.mu.Unlock()

	if fn != nil {
		return fn(ctx, history, prompt)
	}
	return "reply to " + prompt, a.TokensPerCall, nil
}

// Calls returns the number of Respond invocations.
func (a *AssistantAgent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// ModeratorAgent is a scriptable moderator.
type ModeratorAgent struct {
	mu sync.Mutex

	SuggestFn     func(ctx context.Context, intent string, history []types.ConversationTurn) ([]string, int, error)
	TokensPerCall int

	calls int
}

// NewModeratorAgent returns a moderator that always suggests ideas.
func NewModeratorAgent(tokens int, ideas ...string) *ModeratorAgent {
	return &ModeratorAgent{
		TokensPerCall: tokens,
		SuggestFn: func(context.Context, string, []types.ConversationTurn) ([]string, int, error) {
			return append([]string(nil), ideas...), tokens, nil
		},
	}
}

// NewModeratorSequence returns a moderator that answers with lists in call
// order and with an empty list once they run out.
func NewModeratorSequence(tokens int, lists ...[]string) *ModeratorAgent {
	m := &ModeratorAgent{TokensPerCall: tokens}
	var seqMu sync.Mutex
	next := 0
	m.SuggestFn = func(context.Context, string, []types.ConversationTurn) ([]string, int, error) {
		seqMu.Lock()
		defer seqMu.Unlock()
		if next >= len(lists) {
			return nil, tokens, nil
		}
		out := append([]string(nil), lists[next]...)
		next++
		return out, tokens, nil
	}
	return m
}

// NewModeratorByDepth returns a moderator whose answer depends on how many
// turns the branch already has.
func NewModeratorByDepth(tokens int, byDepth map[int][]string) *ModeratorAgent {
	return &ModeratorAgent{
		TokensPerCall: tokens,
		SuggestFn: func(_ context.Context, _ string, history []types.ConversationTurn) ([]string, int, error) {
			return append([]string(nil), byDepth[len(history)]...), tokens, nil
		},
	}
}

func (m *ModeratorAgent) SuggestSubIntents(ctx context.Context, intent string, history []types.ConversationTurn) ([]string, int, error) {
	m.mu.Lock()
	m.calls++
	fn := m.SuggestFn
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, intent, history)
	}
	return nil, m.TokensPerCall, nil
}

// Calls returns the number of SuggestSubIntents invocations.
func (m *ModeratorAgent) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
