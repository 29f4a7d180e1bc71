package task

import (
	"errors"
	"time"
)

// DefaultMaxClaimWait bounds claim long-polls when no explicit limit is
// configured. It sits below the HTTP server write timeout so a poll that
// comes up empty still ends in a clean 204 rather than a severed connection.
const DefaultMaxClaimWait = 25 * time.Second

// ErrInvalidMaxWait indicates the configured maximum claim wait is not positive.
var ErrInvalidMaxWait = errors.New("maximum claim wait must be positive")

// WaitSource identifies how a claim wait duration was resolved.
type WaitSource string

const (
	// WaitSourceNone indicates the caller did not ask to wait.
	WaitSourceNone WaitSource = "none"
	// WaitSourceExplicit indicates the caller-supplied wait was honoured as is.
	WaitSourceExplicit WaitSource = "explicit"
	// WaitSourceCapped indicates the requested wait exceeded the maximum and was reduced.
	WaitSourceCapped WaitSource = "capped"
)

// WaitPolicy bounds how long a claim request may block waiting for work.
type WaitPolicy struct {
	maxWait time.Duration
}

// NewWaitPolicy constructs a WaitPolicy with the provided upper bound.
func NewWaitPolicy(maxWait time.Duration) (*WaitPolicy, error) {
	if maxWait <= 0 {
		return nil, ErrInvalidMaxWait
	}
	return &WaitPolicy{
		maxWait: maxWait,
	}, nil
}

// MustNewWaitPolicy constructs a WaitPolicy and panics on error.
// Intended for wiring sites that validate configuration beforehand.
func MustNewWaitPolicy(maxWait time.Duration) *WaitPolicy {
	policy, err := NewWaitPolicy(maxWait)
	if err != nil {
		panic(err)
	}
	return policy
}

// Max returns the configured upper bound.
func (p *WaitPolicy) Max() time.Duration {
	if p == nil {
		return DefaultMaxClaimWait
	}
	return p.maxWait
}

// WaitDecision captures the outcome of resolving a claim wait request.
type WaitDecision struct {
	Duration  time.Duration
	Source    WaitSource
	Requested int
}

// ShouldWait reports whether the claim should long-poll at all.
func (d WaitDecision) ShouldWait() bool {
	return d.Duration > 0
}

// Capped reports whether the requested wait was reduced to the maximum.
func (d WaitDecision) Capped() bool {
	return d.Source == WaitSourceCapped
}

// Resolve normalises a requested wait given in whole seconds. Zero and
// negative requests mean "do not wait"; positive requests are capped at the
// policy maximum. A nil policy applies DefaultMaxClaimWait.
func (p *WaitPolicy) Resolve(requestedSeconds int) WaitDecision {
	decision := WaitDecision{Requested: requestedSeconds}

	if requestedSeconds <= 0 {
		decision.Source = WaitSourceNone
		return decision
	}

	// Compare in seconds so absurd requests cannot overflow a Duration.
	bound := secondsCeil(p.Max())
	if requestedSeconds > bound {
		decision.Duration = time.Duration(bound) * time.Second
		decision.Source = WaitSourceCapped
		return decision
	}

	decision.Duration = time.Duration(requestedSeconds) * time.Second
	decision.Source = WaitSourceExplicit
	return decision
}

// secondsCeil converts the bound to whole seconds, rounding sub-second
// maximums up so a configured bound always permits a minimal poll.
func secondsCeil(d time.Duration) int {
	seconds := int64(d / time.Second)
	if d%time.Second != 0 {
		seconds++
	}
	if seconds < 1 {
		seconds = 1
	}
	return int(seconds)
}
