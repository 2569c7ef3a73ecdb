// Package engine - throttle.go paces provider calls and tracks the
// quota cooldown window.
package engine

import (
	"context"
	"sync"
	"time"
)

// throttle enforces a minimum interval between provider calls across the
// whole process. Callers reserve the next free slot under the lock, then
// sleep outside it, so waiting callers never serialize behind each other
// on the mutex.
type throttle struct {
	mu       sync.Mutex
	interval time.Duration
	next     time.Time
}

func newThrottle(interval time.Duration) *throttle {
	return &throttle{interval: interval}
}

// Wait blocks until this caller's reserved slot arrives or ctx is done.
func (t *throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	now := time.Now()
	slot := t.next
	if slot.Before(now) {
		slot = now
	}
	t.next = slot.Add(t.interval)
	t.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cooldownState tracks consecutive quota failures and the resulting
// pause. Guarded by the engine mutex.
type cooldownState struct {
	until       time.Time
	consecutive int
}

// recordQuotaFailure extends the cooldown: min(ceiling, base * 2^(n-1))
// where n is the consecutive quota failure count.
func (c *cooldownState) recordQuotaFailure(base, ceiling time.Duration, now time.Time) time.Duration {
	c.consecutive++
	d := base
	for i := 1; i < c.consecutive; i++ {
		d *= 2
		if d >= ceiling {
			d = ceiling
			break
		}
	}
	if d > ceiling {
		d = ceiling
	}
	c.until = now.Add(d)
	return d
}

// clear resets the failure streak after a successful provider call.
func (c *cooldownState) clear() {
	c.consecutive = 0
	c.until = time.Time{}
}

// remaining reports how much of the cooldown window is left.
func (c *cooldownState) remaining(now time.Time) time.Duration {
	if c.until.IsZero() || now.After(c.until) {
		return 0
	}
	return c.until.Sub(now)
}
