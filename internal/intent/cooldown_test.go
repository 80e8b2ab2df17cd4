package intent

import (
	"testing"
	"time"
)

func TestCooldownEnforced(t *testing.T) {
	now := time.Now()
	c := NewCooldownPolicy(true, 30*time.Second)
	c.now = func() time.Time { return now }

	if !c.Allow() {
		t.Fatal("fresh policy should allow")
	}
	c.MarkFired()
	if c.Allow() {
		t.Error("should not allow immediately after firing")
	}

	now = now.Add(29 * time.Second)
	if c.Allow() {
		t.Error("should not allow 1s before cooldown expiry")
	}

	now = now.Add(time.Second)
	if !c.Allow() {
		t.Error("should allow once cooldown elapsed")
	}
}

func TestCooldownDisabled(t *testing.T) {
	c := NewCooldownPolicy(false, 30*time.Second)

	c.MarkFired()
	if !c.Allow() {
		t.Error("disabled policy must always allow")
	}
	if c.Remaining() != 0 {
		t.Errorf("Remaining() = %v on disabled policy, want 0", c.Remaining())
	}
}

func TestCooldownRemaining(t *testing.T) {
	now := time.Now()
	c := NewCooldownPolicy(true, 30*time.Second)
	c.now = func() time.Time { return now }

	if c.Remaining() != 0 {
		t.Errorf("Remaining() before any firing = %v, want 0", c.Remaining())
	}

	c.MarkFired()
	now = now.Add(10 * time.Second)
	if got := c.Remaining(); got != 20*time.Second {
		t.Errorf("Remaining() = %v, want 20s", got)
	}
}

func TestCooldownDefaultDuration(t *testing.T) {
	now := time.Now()
	c := NewCooldownPolicy(true, 0)
	c.now = func() time.Time { return now }

	c.MarkFired()
	now = now.Add(29 * time.Second)
	if c.Allow() {
		t.Error("zero duration should fall back to 30s, still blocked at 29s")
	}
	now = now.Add(time.Second)
	if !c.Allow() {
		t.Error("should allow at 30s with default duration")
	}
}
