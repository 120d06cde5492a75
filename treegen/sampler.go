package treegen

import (
	"math/rand"
	"sync"
	"time"
)

// Sampler picks which moderator suggestions become child branches.
// It is safe for concurrent use.
type Sampler struct {
	mu       sync.Mutex
	rng      *rand.Rand
	maxFan   int
	firstMin int
}

// NewSampler creates a sampler. A nil rng uses a time-seeded source.
func NewSampler(rng *rand.Rand, maxFanout, firstMinFanout int) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if maxFanout <= 0 {
		maxFanout = defaultMaxFanout
	}
	if firstMinFanout < defaultFirstMinFanout {
		firstMinFanout = defaultFirstMinFanout
	}
	return &Sampler{rng: rng, maxFan: maxFanout, firstMin: firstMinFanout}
}

// FanoutBounds returns the inclusive range the child count is drawn from for
// a list of n suggestions. The first expansion of a tree draws at least
// max(firstMin, 1); every other expansion may draw zero. Both ends are
// clamped to n and maxFanout.
func FanoutBounds(n int, first bool, firstMin, maxFanout int) (lo, hi int) {
	hi = n
	if maxFanout < hi {
		hi = maxFanout
	}
	if hi < 0 {
		hi = 0
	}
	if first {
		lo = max(firstMin, defaultFirstMinFanout)
	}
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// Sample draws a child count uniformly from FanoutBounds and returns that
// many distinct suggestions in random order. The input is not modified.
func (s *Sampler) Sample(ideas []string, first bool) []string {
	lo, hi := FanoutBounds(len(ideas), first, s.firstMin, s.maxFan)

	s.mu.Lock()
	k := lo + s.rng.Intn(hi-lo+1)
	perm := s.rng.Perm(len(ideas))
	s.mu.Unlock()

	out := make([]string, k)
	for i := 0; i < k; i++ {
		out[i] = ideas[perm[i]]
	}
	return out
}
