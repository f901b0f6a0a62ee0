package ackcache

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"seaguard-gateway/internal/clock"
)

var epoch = time.UnixMilli(1_700_000_000_000)

func TestPutGet(t *testing.T) {
	clk := clock.Fake(epoch)
	c := New[string, int](10, time.Minute, clk)

	c.Put("a", 1, clk.Now())
	c.Put("a", 2, clk.Now())

	got, ok := c.Get("a")
	if !ok || got != 2 {
		t.Fatalf("Get(a) = %d, %v; want 2, true", got, ok)
	}
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after overwrite", c.Len())
	}
	if _, ok := c.Get("missing"); ok {
		t.Error("Get(missing) reported present")
	}
}

func TestCapacityEvictsOldestStamp(t *testing.T) {
	clk := clock.Fake(epoch)
	c := New[string, int](3, 0, clk)

	// Inserted out of stamp order on purpose.
	c.Put("t3", 3, epoch.Add(3*time.Second))
	c.Put("t1", 1, epoch.Add(1*time.Second))
	c.Put("t4", 4, epoch.Add(4*time.Second))
	evicted := c.Put("t2", 2, epoch.Add(2*time.Second))

	if evicted != 1 {
		t.Errorf("evicted = %d, want 1", evicted)
	}
	want := []string{"t2", "t3", "t4"}
	if got := c.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestRestampMovesEntry(t *testing.T) {
	clk := clock.Fake(epoch)
	c := New[string, int](2, 0, clk)

	c.Put("a", 1, epoch)
	c.Put("b", 1, epoch.Add(time.Second))
	// Rewriting "a" with a newer stamp makes "b" the oldest.
	c.Put("a", 2, epoch.Add(2*time.Second))
	c.Put("c", 1, epoch.Add(3*time.Second))

	want := []string{"a", "c"}
	if got := c.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
}

func TestTTLIsLazy(t *testing.T) {
	clk := clock.Fake(epoch)
	c := New[string, int](0, 5*time.Minute, clk)

	c.Put("old", 1, clk.Now())
	clk.Advance(5 * time.Minute)
	if _, ok := c.Get("old"); !ok {
		t.Fatal("entry exactly at TTL should survive")
	}

	clk.Advance(time.Millisecond)
	if c.Len() != 1 {
		t.Fatalf("expiry ran without a touch: Len() = %d", c.Len())
	}
	if _, ok := c.Get("old"); ok {
		t.Error("entry past TTL still visible")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d after touch, want 0", c.Len())
	}
}

func TestBoundsHoldUnderLoad(t *testing.T) {
	clk := clock.Fake(epoch)
	c := New[string, int](200, 5*time.Minute, clk)

	for i := 0; i < 1000; i++ {
		c.Put(fmt.Sprintf("cmd-%d", i), i, clk.Now())
		clk.Advance(time.Second)
		if c.Len() > 200 {
			t.Fatalf("Len() = %d exceeds capacity at i=%d", c.Len(), i)
		}
	}

	clk.Advance(6 * time.Minute)
	c.Prune()
	if c.Len() != 0 {
		t.Errorf("Len() = %d after all entries aged out", c.Len())
	}
}
