package intent

import (
	"sync"
	"time"
)

// CooldownPolicy enforces minimum spacing between surfaced suggestions. The
// original product shipped one path that enforced a 30s cooldown and one
// that disabled it outright, so enforcement is an explicit, injectable
// policy: a disabled policy always allows.
type CooldownPolicy struct {
	mu        sync.Mutex
	enabled   bool
	duration  time.Duration
	lastFired time.Time
	now       func() time.Time // injectable clock for tests
}

// NewCooldownPolicy creates a policy. A non-positive duration with enabled
// true falls back to 30s.
func NewCooldownPolicy(enabled bool, duration time.Duration) *CooldownPolicy {
	if duration <= 0 {
		duration = 30 * time.Second
	}
	return &CooldownPolicy{
		enabled:  enabled,
		duration: duration,
		now:      time.Now,
	}
}

// Allow reports whether enough time has passed since the last surfaced
// suggestion.
func (c *CooldownPolicy) Allow() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return true
	}
	if c.lastFired.IsZero() {
		return true
	}
	return c.now().Sub(c.lastFired) >= c.duration
}

// MarkFired records that a suggestion was surfaced now.
func (c *CooldownPolicy) MarkFired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastFired = c.now()
}

// Remaining returns how long until the next suggestion is allowed; zero when
// allowed already.
func (c *CooldownPolicy) Remaining() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || c.lastFired.IsZero() {
		return 0
	}
	rem := c.duration - c.now().Sub(c.lastFired)
	if rem < 0 {
		return 0
	}
	return rem
}
