package session

import (
	"errors"
	"fmt"
)

// ErrInvalidLimits is returned when a budget is not configured as 0 < soft < hard.
var ErrInvalidLimits = errors.New("token budget requires 0 < soft limit < hard limit")

// Verdict is the outcome of a budget check.
type Verdict int

const (
	Allowed Verdict = iota
	Blocked
)

func (v Verdict) String() string {
	if v == Blocked {
		return "blocked"
	}
	return "allowed"
}

// TokenBudget is the cumulative token counter of one session, checked against
// a soft limit (no new steps) and a hard limit (no model calls at all).
//
// Recording is unbounded: a call may push usage past either limit, and the
// overshoot is caught by the next check. Not safe for concurrent use.
type TokenBudget struct {
	SoftLimit int
	HardLimit int
	used      int
}

// NewTokenBudget creates a budget with the given limits.
func NewTokenBudget(soft, hard int) (*TokenBudget, error) {
	if soft <= 0 || hard <= soft {
		return nil, fmt.Errorf("%w (got soft=%d, hard=%d)", ErrInvalidLimits, soft, hard)
	}
	return &TokenBudget{SoftLimit: soft, HardLimit: hard}, nil
}

// Record adds tokens to the running total. Negative values are ignored.
func (b *TokenBudget) Record(tokens int) {
	if tokens > 0 {
		b.used += tokens
	}
}

// CheckSoft blocks once usage reaches the soft limit.
func (b *TokenBudget) CheckSoft() Verdict {
	if b.used >= b.SoftLimit {
		return Blocked
	}
	return Allowed
}

// CheckHard blocks once usage reaches the hard limit.
func (b *TokenBudget) CheckHard() Verdict {
	if b.used >= b.HardLimit {
		return Blocked
	}
	return Allowed
}

// Used returns the cumulative token count.
func (b *TokenBudget) Used() int { return b.used }

// Remaining returns tokens left before the soft limit, floored at zero.
func (b *TokenBudget) Remaining() int {
	if r := b.SoftLimit - b.used; r > 0 {
		return r
	}
	return 0
}

// Reset zeroes the counter. Limits are kept.
func (b *TokenBudget) Reset() { b.used = 0 }
