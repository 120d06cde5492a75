package treegen

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/convtree/internal/pool"
	"github.com/BaSui01/convtree/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Seed is one top-level conversation to grow.
type Seed struct {
	Intent   string `json:"intent" yaml:"intent"`
	Domain   string `json:"domain" yaml:"domain"`
	DocID    string `json:"doc_id,omitempty" yaml:"doc_id,omitempty"`
	MaxTurns int    `json:"max_turns,omitempty" yaml:"max_turns,omitempty"`
}

// TreeResult reports the outcome of one seed.
type TreeResult struct {
	Seed     Seed
	Ledger   types.TokenLedger
	Err      error
	Duration time.Duration
}

// TreeRunner runs a single tree. *Orchestrator implements it.
type TreeRunner interface {
	RunTree(ctx context.Context, maxTurns int, seedIntent, seedDomain, docID string) (types.TokenLedger, error)
}

// IdeaSource brainstorms concrete conversation ideas for a seed.
type IdeaSource interface {
	Brainstorm(ctx context.Context, intent, domain string) ([]string, int, error)
}

// Dispatcher runs many trees on a bounded worker pool. One tree failing,
// or panicking, never affects the others.
type Dispatcher struct {
	runner          TreeRunner
	ideas           IdeaSource
	workers         int
	defaultMaxTurns int
	logger          *zap.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithIdeaSource expands every seed into one tree per brainstormed idea.
func WithIdeaSource(src IdeaSource) DispatcherOption {
	return func(d *Dispatcher) { d.ideas = src }
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// NewDispatcher creates a dispatcher running at most workers trees at once.
// Seeds without MaxTurns use defaultMaxTurns.
func NewDispatcher(runner TreeRunner, workers, defaultMaxTurns int, opts ...DispatcherOption) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	d := &Dispatcher{
		runner:          runner,
		workers:         workers,
		defaultMaxTurns: defaultMaxTurns,
		logger:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("component", "dispatcher"))
	return d
}

// Plan normalizes seeds: missing doc IDs get a UUID, missing turn limits the
// default, and with an IdeaSource each seed is replaced by one seed per idea.
// A seed whose brainstorming yields nothing is kept as is.
func (d *Dispatcher) Plan(ctx context.Context, seeds []Seed) ([]Seed, error) {
	out := make([]Seed, 0, len(seeds))
	for _, s := range seeds {
		if s.DocID == "" {
			s.DocID = uuid.NewString()
		}
		if s.MaxTurns <= 0 {
			s.MaxTurns = d.defaultMaxTurns
		}
		if d.ideas == nil {
			out = append(out, s)
			continue
		}

		ideas, tokens, err := d.ideas.Brainstorm(ctx, s.Intent, s.Domain)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			d.logger.Warn("brainstorming failed, using seed intent",
				zap.String("doc_id", s.DocID), zap.Error(err))
		}
		d.logger.Debug("seed brainstormed",
			zap.String("doc_id", s.DocID),
			zap.Int("ideas", len(ideas)),
			zap.Int("tokens", tokens))
		if len(ideas) == 0 {
			out = append(out, s)
			continue
		}
		for i, idea := range ideas {
			out = append(out, Seed{
				Intent:   idea,
				Domain:   s.Domain,
				DocID:    fmt.Sprintf("%s-%d", s.DocID, i+1),
				MaxTurns: s.MaxTurns,
			})
		}
	}
	return out, nil
}

// Run plans seeds and grows one tree per planned seed. Results are returned
// in planned order.
func (d *Dispatcher) Run(ctx context.Context, seeds []Seed) ([]TreeResult, error) {
	planned, err := d.Plan(ctx, seeds)
	if err != nil {
		return nil, err
	}

	wp := pool.NewWorkerPool(pool.WorkerPoolConfig{
		Workers:   d.workers,
		QueueSize: d.workers,
		PanicHandler: func(r any) {
			d.logger.Error("tree panicked", zap.Any("panic", r))
		},
	})
	defer wp.Close()

	results := make([]TreeResult, len(planned))
	pending := make([]<-chan error, len(planned))
	for i := range planned {
		results[i].Seed = planned[i]
		ch, err := wp.Submit(ctx, func(ctx context.Context) error {
			s := planned[i]
			start := time.Now()
			ledger, err := d.runner.RunTree(ctx, s.MaxTurns, s.Intent, s.Domain, s.DocID)
			results[i].Ledger = ledger
			results[i].Duration = time.Since(start)
			return err
		})
		if err != nil {
			results[i].Err = err
			continue
		}
		pending[i] = ch
	}

	for i, ch := range pending {
		if ch == nil {
			continue
		}
		if err := <-ch; err != nil {
			results[i].Err = err
			d.logger.Warn("tree failed", zap.String("doc_id", planned[i].DocID), zap.Error(err))
		}
	}
	return results, nil
}

// Failed counts results carrying an error.
func Failed(results []TreeResult) int {
	n := 0
	for _, r := range results {
		if r.Err != nil {
			n++
		}
	}
	return n
}
