package treegen

import "time"

const (
	defaultMaxFanout      = 5
	defaultFirstMinFanout = 1
	defaultMaxAttempts    = 3
)

// Options tune tree expansion. Zero values select the defaults noted on each
// field.
type Options struct {
	// RootLabel labels the root branch. Default "C-".
	RootLabel string
	// MaxFanout caps how many children one branch may fork into. Default 5.
	MaxFanout int
	// FirstMinFanout is the minimum number of children sampled after the
	// first turn of a tree. Default 1; values below 1 also select 1, so the
	// first expansion always forks. Later expansions may sample zero.
	FirstMinFanout int
	// MaxAttempts bounds attempts per agent call, first try included. Default 3.
	MaxAttempts int
	// RetryDelay waits between attempts. Zero retries immediately.
	RetryDelay time.Duration
	// RetryAssistant applies the retry policy to the assistant agent too.
	// Off by default: an assistant failure ends the branch at once.
	RetryAssistant bool
	// MaxTreeTokens stops growing a tree once its ledger total reaches this
	// value. Zero means unlimited.
	MaxTreeTokens int
}

func (o Options) withDefaults() Options {
	if o.RootLabel == "" {
		o.RootLabel = DefaultRootLabel
	}
	if o.MaxFanout <= 0 {
		o.MaxFanout = defaultMaxFanout
	}
	if o.FirstMinFanout < defaultFirstMinFanout {
		o.FirstMinFanout = defaultFirstMinFanout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.MaxTreeTokens < 0 {
		o.MaxTreeTokens = 0
	}
	return o
}
