package llm

import (
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// ErrEmptyModelPool is returned when a pool is built without any model.
var ErrEmptyModelPool = errors.New("model pool is empty")

// ModelBinding pairs a provider with the model name to request from it.
type ModelBinding struct {
	Provider Provider
	Model    string
}

// ModelPool 在多个模型之间轮询，分摊上游限流压力。
// 构建时打乱一次顺序，之后严格 round-robin。
type ModelPool struct {
	mu       sync.Mutex
	bindings []ModelBinding
	next     int
}

// NewModelPool creates a pool over bindings. A nil rng uses a time-seeded
// source.
func NewModelPool(bindings []ModelBinding, rng *rand.Rand) (*ModelPool, error) {
	if len(bindings) == 0 {
		return nil, ErrEmptyModelPool
	}
	for _, b := range bindings {
		if b.Provider == nil {
			return nil, errors.New("model pool: binding without provider")
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	shuffled := make([]ModelBinding, len(bindings))
	copy(shuffled, bindings)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return &ModelPool{bindings: shuffled}, nil
}

// Next returns the next binding in rotation.
func (p *ModelPool) Next() ModelBinding {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.bindings[p.next]
	p.next = (p.next + 1) % len(p.bindings)
	return b
}

// Len returns the number of bindings.
func (p *ModelPool) Len() int {
	return len(p.bindings)
}

// Models returns the distinct model names in rotation order.
func (p *ModelPool) Models() []string {
	seen := make(map[string]struct{}, len(p.bindings))
	out := make([]string, 0, len(p.bindings))
	for _, b := range p.bindings {
		if _, ok := seen[b.Model]; ok {
			continue
		}
		seen[b.Model] = struct{}{}
		out = append(out, b.Model)
	}
	return out
}

// Describe joins the model names for transcript metadata.
func (p *ModelPool) Describe() string {
	return strings.Join(p.Models(), ",")
}

// Providers returns each distinct provider once, for health checks.
func (p *ModelPool) Providers() []Provider {
	seen := make(map[Provider]struct{}, len(p.bindings))
	out := make([]Provider, 0, len(p.bindings))
	for _, b := range p.bindings {
		if _, ok := seen[b.Provider]; ok {
			continue
		}
		seen[b.Provider] = struct{}{}
		out = append(out, b.Provider)
	}
	return out
}
