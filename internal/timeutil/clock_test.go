package timeutil

import (
	"testing"
	"time"
)

func TestRealClockMonotonicMicros(t *testing.T) {
	c := RealClock{}
	a := c.Micros()
	b := c.Micros()
	if b < a {
		t.Fatalf("Micros went backwards: %d then %d", a, b)
	}
}

func TestRealClockSince(t *testing.T) {
	c := RealClock{}
	start := c.Now()
	if d := c.Since(start); d < 0 {
		t.Fatalf("Since returned negative duration %v", d)
	}
}

func TestMockClockAdvance(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	if got := c.Now(); !got.Equal(base) {
		t.Fatalf("Now = %v, want %v", got, base)
	}

	c.Advance(6 * time.Second)
	if got := c.Since(base); got != 6*time.Second {
		t.Fatalf("Since = %v, want 6s", got)
	}

	m0 := base.UnixMicro()
	if got := c.Micros(); got != m0+6_000_000 {
		t.Fatalf("Micros = %d, want %d", got, m0+6_000_000)
	}
}

func TestMockClockSet(t *testing.T) {
	c := NewMockClock(time.Unix(0, 0))
	target := time.Unix(100, 0)
	c.Set(target)
	if got := c.Now(); !got.Equal(target) {
		t.Fatalf("Now = %v, want %v", got, target)
	}
}
