package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	c := Fake(start)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	c.Advance(1500 * time.Millisecond)
	if got := c.Now().Sub(start); got != 1500*time.Millisecond {
		t.Errorf("elapsed after Advance = %v, want 1.5s", got)
	}

	c.Set(start.Add(-time.Minute))
	if got := c.Now(); !got.Equal(start.Add(-time.Minute)) {
		t.Errorf("Set did not move clock backwards: %v", got)
	}
}

func TestRealIsCurrent(t *testing.T) {
	before := time.Now()
	got := Real().Now()
	if got.Before(before) {
		t.Errorf("Real().Now() = %v is before %v", got, before)
	}
}
