package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Limiter spaces out operations by sleeping a random duration drawn
// uniformly from [min, max] before each one. Waiters are serialised, so when
// several goroutines share a Limiter the aggregate rate is the same as for a
// single caller. It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	mu  sync.Mutex
	min time.Duration
	max time.Duration
}

// NewLimiter creates a limiter that waits between min and max before each
// operation. Negative bounds are treated as zero and the bounds are swapped
// if given in the wrong order. A zero window never blocks.
func NewLimiter(minWait, maxWait time.Duration) *Limiter {
	if minWait < 0 {
		minWait = 0
	}
	if maxWait < 0 {
		maxWait = 0
	}
	if minWait > maxWait {
		minWait, maxWait = maxWait, minWait
	}
	return &Limiter{
		min: minWait,
		max: maxWait,
	}
}

// Next draws the next delay without sleeping.
func (l *Limiter) Next() time.Duration {
	if l.max == 0 {
		return 0
	}
	span := int64(l.max - l.min)
	if span == 0 {
		return l.min
	}
	return l.min + time.Duration(rand.Int63n(span+1))
}

// Wait blocks for a freshly drawn delay, or until the context is canceled.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return Sleep(ctx, l.Next())
}

// Bounds returns the configured window.
func (l *Limiter) Bounds() (time.Duration, time.Duration) {
	return l.min, l.max
}

// Sleep pauses for d, returning early with the context error if ctx is done
// first. A non-positive d returns immediately.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
