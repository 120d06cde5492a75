package roleplay

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/BaSui01/convtree/llm"
	"github.com/BaSui01/convtree/types"
	"go.uber.org/zap"
)

const (
	initiatorAttempts = 3
	// Lists at least this long are sampled down to IdeasPerSeed.
	initiatorSampleThreshold = 5
)

// TurnInitiator brainstorms concrete conversation ideas for a seed
// (intent, domain). Each idea can seed its own tree.
type TurnInitiator struct {
	*caller
	ideasPerSeed int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTurnInitiator creates an initiator. ideasPerSeed below 1 is treated as 1.
// A nil rng uses a time-seeded source.
func NewTurnInitiator(pool *llm.ModelPool, templates *Templates, opts Options, ideasPerSeed int, rng *rand.Rand) (*TurnInitiator, error) {
	c, err := newCaller(types.RoleInitiator, pool, templates, opts)
	if err != nil {
		return nil, err
	}
	if ideasPerSeed < 1 {
		ideasPerSeed = 1
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &TurnInitiator{caller: c, ideasPerSeed: ideasPerSeed, rng: rng}, nil
}

// Brainstorm asks for ideas up to three times while the reply contains no
// numbered items. Short lists are returned whole; longer ones are sampled.
// The returned token count covers every call that reached the model. An
// error is returned only when no call succeeded.
func (t *TurnInitiator) Brainstorm(ctx context.Context, intent, domain string) ([]string, int, error) {
	prompt, err := t.templates.RenderInitiator(intent, domain, "simple")
	if err != nil {
		return nil, 0, err
	}
	messages := []llm.Message{{Role: llm.RoleSystem, Content: prompt}}

	total := 0
	reached := false
	var lastErr error
	for attempt := 1; attempt <= initiatorAttempts; attempt++ {
		text, tokens, model, err := t.complete(ctx, messages, false)
		if err != nil {
			t.observe(model, 0, err)
			if ctx.Err() != nil {
				return nil, total, ctx.Err()
			}
			lastErr = err
			continue
		}
		total += tokens
		reached = true
		t.observe(model, tokens, nil)

		ideas := ParseNumberedList(text)
		if len(ideas) == 0 {
			t.logger.Debug("initiator returned no ideas", zap.Int("attempt", attempt))
			continue
		}
		return t.pick(ideas), total, nil
	}

	if !reached {
		return nil, total, lastErr
	}
	return nil, total, nil
}

func (t *TurnInitiator) pick(ideas []string) []string {
	if len(ideas) < initiatorSampleThreshold || t.ideasPerSeed >= len(ideas) {
		return ideas
	}
	t.mu.Lock()
	perm := t.rng.Perm(len(ideas))
	t.mu.Unlock()

	out := make([]string, t.ideasPerSeed)
	for i := range out {
		out[i] = ideas[perm[i]]
	}
	return out
}
