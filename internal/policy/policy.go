// Package policy implements the operator-tunable admission threshold.
//
// The threshold is a level from 0 to 10 mapping linearly to a risk-score
// cutoff of 100 - 10*level. A call is admitted when its risk score is at or
// below the cutoff, so level 0 admits everything up to score 100 and level 10
// admits only score 0.
package policy

import (
	"errors"
	"fmt"
	"sync"
)

// Level bounds.
const (
	MinLevel = 0
	MaxLevel = 10
)

// ErrLevelOutOfRange is returned by SetLevel for levels outside [0, 10].
var ErrLevelOutOfRange = errors.New("policy: level must be between 0 and 10")

// Policy holds the process-wide admission threshold. Safe for concurrent use;
// it is read on every call-start evaluation and written only by an explicit
// operator action.
type Policy struct {
	mu    sync.RWMutex
	level int
}

// New creates a Policy at the given starting level.
func New(level int) (*Policy, error) {
	if level < MinLevel || level > MaxLevel {
		return nil, fmt.Errorf("%w: got %d", ErrLevelOutOfRange, level)
	}
	return &Policy{level: level}, nil
}

// Level returns the current threshold level.
func (p *Policy) Level() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

// Cutoff returns the maximum admissible risk score at the current level.
func (p *Policy) Cutoff() float64 {
	return float64(100 - 10*p.Level())
}

// SetLevel updates the threshold level. Out-of-range input is rejected, not
// clamped.
func (p *Policy) SetLevel(level int) error {
	if level < MinLevel || level > MaxLevel {
		return fmt.Errorf("%w: got %d", ErrLevelOutOfRange, level)
	}
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
	return nil
}

// Admits reports whether a risk score passes the current threshold.
// The boundary admits: score == cutoff is allowed through.
func (p *Policy) Admits(score float64) bool {
	return score <= p.Cutoff()
}
