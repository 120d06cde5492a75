package roleplay

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/convtree/llm"
	"github.com/BaSui01/convtree/llm/tokenizer"
	"github.com/BaSui01/convtree/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Observer receives one notification per agent call, successful or not.
type Observer interface {
	ObserveAgentCall(role types.Role, model string, tokens int, err error)
}

// Options configure how an agent calls its models.
type Options struct {
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	// JSONMode asks the upstream for a JSON object reply. Only meaningful for
	// the user and moderator agents.
	JSONMode bool
	Logger   *zap.Logger
	Observer Observer
}

// caller is the shared completion path of every agent.
type caller struct {
	role      types.Role
	pool      *llm.ModelPool
	templates *Templates
	opts      Options
	logger    *zap.Logger
}

func newCaller(role types.Role, pool *llm.ModelPool, templates *Templates, opts Options) (*caller, error) {
	if pool == nil {
		return nil, types.NewError(types.ErrProviderNotSet, string(role)+" agent has no model pool").WithRole(role)
	}
	if templates == nil {
		templates = MustCompileDefaults()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &caller{
		role:      role,
		pool:      pool,
		templates: templates,
		opts:      opts,
		logger:    logger.With(zap.String("component", "agent"), zap.String("role", string(role))),
	}, nil
}

// ModelName describes the models this agent rotates across.
func (c *caller) ModelName() string {
	return c.pool.Describe()
}

// complete sends messages to the next model in the pool and returns the reply
// text with the tokens the call consumed. Reported usage wins; when the
// upstream omits it the exchange is counted locally.
func (c *caller) complete(ctx context.Context, messages []llm.Message, jsonMode bool) (string, int, string, error) {
	binding := c.pool.Next()

	req := &llm.ChatRequest{
		TraceID:     uuid.NewString(),
		Model:       binding.Model,
		Messages:    messages,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		Timeout:     c.opts.Timeout,
		Metadata:    map[string]string{"role": string(c.role)},
	}
	if jsonMode && c.opts.JSONMode {
		req.ResponseFormat = &llm.ResponseFormat{Type: "json_object"}
	}

	start := time.Now()
	resp, err := binding.Provider.Completion(ctx, req)
	if err != nil {
		c.logger.Debug("agent call failed",
			zap.String("model", binding.Model),
			zap.String("trace_id", req.TraceID),
			zap.Error(err))
		return "", 0, binding.Model, c.wrap(err, binding.Provider.Name())
	}

	text := resp.FirstContent()
	tokens := resp.Usage.TotalTokens
	if tokens == 0 {
		tokens = c.estimate(binding.Model, messages, text)
	}

	c.logger.Debug("agent call finished",
		zap.String("model", binding.Model),
		zap.String("trace_id", req.TraceID),
		zap.Int("tokens", tokens),
		zap.Duration("latency", time.Since(start)))
	return text, tokens, binding.Model, nil
}

func (c *caller) estimate(model string, messages []llm.Message, completion string) int {
	tm := make([]tokenizer.Message, len(messages))
	for i, m := range messages {
		tm[i] = tokenizer.Message{Role: string(m.Role), Content: m.Content}
	}
	n, err := tokenizer.CountExchange(tokenizer.GetTokenizerOrEstimator(model), tm, completion)
	if err != nil {
		c.logger.Debug("token estimation failed", zap.String("model", model), zap.Error(err))
		return 0
	}
	return n
}

func (c *caller) wrap(err error, provider string) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return types.NewGenerationError(c.role, err).WithProvider(provider)
}

func (c *caller) observe(model string, tokens int, err error) {
	if c.opts.Observer != nil {
		c.opts.Observer.ObserveAgentCall(c.role, model, tokens, err)
	}
}

// singlePrompt is the message layout for prompt-template agents.
func singlePrompt(prompt string) []llm.Message {
	return []llm.Message{{Role: llm.RoleUser, Content: prompt}}
}

// UserAgent simulates the human side of a conversation.
type UserAgent struct {
	*caller
}

// NewUserAgent creates a user simulator over pool.
func NewUserAgent(pool *llm.ModelPool, templates *Templates, opts Options) (*UserAgent, error) {
	c, err := newCaller(types.RoleUser, pool, templates, opts)
	if err != nil {
		return nil, err
	}
	return &UserAgent{caller: c}, nil
}

// Initiate writes the opening message of a conversation.
func (a *UserAgent) Initiate(ctx context.Context, intent, domain string) (string, int, error) {
	prompt, err := a.templates.RenderUserFirst(intent, domain)
	if err != nil {
		return "", 0, err
	}
	return a.generate(ctx, prompt)
}

// Continue writes the next user message given the conversation so far.
func (a *UserAgent) Continue(ctx context.Context, intent, domain string, history []types.ConversationTurn) (string, int, error) {
	prompt, err := a.templates.RenderUserNext(intent, domain, history)
	if err != nil {
		return "", 0, err
	}
	return a.generate(ctx, prompt)
}

func (a *UserAgent) generate(ctx context.Context, prompt string) (string, int, error) {
	text, tokens, model, err := a.complete(ctx, singlePrompt(prompt), true)
	if err != nil {
		a.observe(model, 0, err)
		return "", 0, err
	}
	out, err := ParseUserPrompt(text)
	if err != nil {
		err = a.wrap(err, "")
		a.observe(model, 0, err)
		return "", 0, err
	}
	a.observe(model, tokens, nil)
	return out, tokens, nil
}

// AssistantAgent answers the simulated user.
type AssistantAgent struct {
	*caller
}

// NewAssistantAgent creates an assistant over pool.
func NewAssistantAgent(pool *llm.ModelPool, templates *Templates, opts Options) (*AssistantAgent, error) {
	c, err := newCaller(types.RoleAssistant, pool, templates, opts)
	if err != nil {
		return nil, err
	}
	return &AssistantAgent{caller: c}, nil
}

// Respond answers prompt as a chat continuation of history.
func (a *AssistantAgent) Respond(ctx context.Context, history []types.ConversationTurn, prompt string) (string, int, error) {
	messages := make([]llm.Message, 0, 2*len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: a.templates.AssistantSystem()})
	for _, turn := range history {
		messages = append(messages,
			llm.Message{Role: llm.RoleUser, Content: turn.UserPrompt},
			llm.Message{Role: llm.RoleAssistant, Content: turn.AssistantResponse},
		)
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt})

	text, tokens, model, err := a.complete(ctx, messages, false)
	if err != nil {
		a.observe(model, 0, err)
		return "", 0, err
	}
	if text == "" {
		err = a.wrap(types.NewError(types.ErrEmptyOutput, "assistant returned no text"), "")
		a.observe(model, 0, err)
		return "", 0, err
	}
	a.observe(model, tokens, nil)
	return text, tokens, nil
}

// ModeratorAgent proposes the sub-intents a branch may fork into.
type ModeratorAgent struct {
	*caller
}

// NewModeratorAgent creates a moderator over pool.
func NewModeratorAgent(pool *llm.ModelPool, templates *Templates, opts Options) (*ModeratorAgent, error) {
	c, err := newCaller(types.RoleModerator, pool, templates, opts)
	if err != nil {
		return nil, err
	}
	return &ModeratorAgent{caller: c}, nil
}

// SuggestSubIntents returns the follow-up sub-intents for intent. An empty
// list is a valid answer.
func (a *ModeratorAgent) SuggestSubIntents(ctx context.Context, intent string, history []types.ConversationTurn) ([]string, int, error) {
	prompt, err := a.templates.RenderModerator(intent, history)
	if err != nil {
		return nil, 0, err
	}

	text, tokens, model, err := a.complete(ctx, singlePrompt(prompt), true)
	if err != nil {
		a.observe(model, 0, err)
		return nil, 0, err
	}
	ideas, err := ParseSubIntents(text)
	if err != nil {
		err = a.wrap(err, "")
		a.observe(model, 0, err)
		return nil, 0, err
	}
	a.observe(model, tokens, nil)
	return ideas, tokens, nil
}
