package treegen

import "errors"

var (
	// ErrExhaustedRetries is returned by the turn generator when an agent
	// failed on every allowed attempt. The expander turns it into a forced
	// terminal branch.
	ErrExhaustedRetries = errors.New("agent retries exhausted")

	// ErrPersistence wraps any transcript, ledger or error-log write failure.
	// It aborts the tree it occurred in.
	ErrPersistence = errors.New("persistence failed")

	// ErrInvalidTurns is returned for a non-positive turn limit.
	ErrInvalidTurns = errors.New("max turns must be positive")
)
