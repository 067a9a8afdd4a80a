package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMemory(maxAttempts int, decay time.Duration) (*Memory, *fakeClock) {
	clock := newFakeClock()
	m := NewMemory(Limits{Default: Limit{MaxAttempts: maxAttempts, Decay: decay}}, WithClock(clock.Now))
	return m, clock
}

func TestMemoryAllowsExactlyMaxAttempts(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(3, time.Minute)

	for i := 0; i < 3; i++ {
		ok, err := m.Allow(ctx, "demo")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if _, err := m.Increment(ctx, "demo", 1); err != nil {
			t.Fatalf("Increment: %v", err)
		}
	}

	ok, _ := m.Allow(ctx, "demo")
	if ok {
		t.Error("4th request should be denied")
	}
}

func TestMemoryWindowDecay(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory(2, 10*time.Second)

	m.Increment(ctx, "demo", 2)
	if ok, _ := m.Allow(ctx, "demo"); ok {
		t.Fatal("should be denied when window is full")
	}

	wait, _ := m.AvailableIn(ctx, "demo")
	if wait != 10*time.Second {
		t.Errorf("AvailableIn = %v, want 10s", wait)
	}

	clock.Advance(4 * time.Second)
	wait, _ = m.AvailableIn(ctx, "demo")
	if wait != 6*time.Second {
		t.Errorf("AvailableIn = %v, want 6s", wait)
	}

	clock.Advance(6 * time.Second)
	if ok, _ := m.Allow(ctx, "demo"); !ok {
		t.Error("should be allowed after the window elapsed")
	}
	if rem, _ := m.Remaining(ctx, "demo"); rem != 2 {
		t.Errorf("Remaining = %d, want 2", rem)
	}
	if wait, _ := m.AvailableIn(ctx, "demo"); wait != 0 {
		t.Errorf("AvailableIn = %v, want 0 with no open window", wait)
	}
}

func TestMemoryIncrementAmount(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(10, time.Minute)

	n, err := m.Increment(ctx, "demo", 4)
	if err != nil {
		t.Fatalf("Increment: %v", err)
	}
	if n != 4 {
		t.Errorf("count = %d, want 4", n)
	}
	if rem, _ := m.Remaining(ctx, "demo"); rem != 6 {
		t.Errorf("Remaining = %d, want 6", rem)
	}

	if _, err := m.Increment(ctx, "demo", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("err = %v, want ErrInvalidAmount", err)
	}
}

func TestMemoryRemainingNeverNegative(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(2, time.Minute)

	m.Increment(ctx, "demo", 5)
	if rem, _ := m.Remaining(ctx, "demo"); rem != 0 {
		t.Errorf("Remaining = %d, want 0", rem)
	}
}

func TestMemoryClientsIsolated(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(1, time.Minute)

	m.Increment(ctx, "a", 1)
	if ok, _ := m.Allow(ctx, "b"); !ok {
		t.Error("client b should have its own budget")
	}
	if ok, _ := m.Allow(ctx, "a"); ok {
		t.Error("client a should be limited")
	}
}

func TestMemoryClear(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(1, time.Minute)

	m.Increment(ctx, "demo", 1)
	if err := m.Clear(ctx, "demo"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if ok, _ := m.Allow(ctx, "demo"); !ok {
		t.Error("should be allowed after Clear")
	}
	if m.Count() != 0 {
		t.Errorf("Count = %d, want 0", m.Count())
	}
}

func TestMemoryPerClientLimits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Limits{
		Default: Limit{MaxAttempts: 5, Decay: time.Minute},
		Clients: map[string]Limit{"strict": {MaxAttempts: 1}},
	})

	m.Increment(ctx, "strict", 1)
	if ok, _ := m.Allow(ctx, "strict"); ok {
		t.Error("strict client should be limited after 1 attempt")
	}
	if rem, _ := m.Remaining(ctx, "other"); rem != 5 {
		t.Errorf("Remaining(other) = %d, want 5", rem)
	}
}

func TestMemoryAcquireConcurrent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(10, time.Minute)

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.Acquire(ctx, "demo", 1)
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 10 {
		t.Errorf("admitted = %d, want 10", got)
	}
}

func TestMemoryAcquireRejectsOversizedCost(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(5, time.Minute)

	m.Increment(ctx, "demo", 3)
	if ok, _ := m.Acquire(ctx, "demo", 3); ok {
		t.Error("Acquire should fail when cost exceeds remaining capacity")
	}
	if rem, _ := m.Remaining(ctx, "demo"); rem != 2 {
		t.Errorf("Remaining = %d, want 2 (failed acquire must not charge)", rem)
	}
}

func TestMemoryEmptyClient(t *testing.T) {
	m, _ := newTestMemory(5, time.Minute)
	if _, err := m.Allow(context.Background(), ""); !errors.Is(err, ErrEmptyClient) {
		t.Errorf("err = %v, want ErrEmptyClient", err)
	}
}

func TestLimitsFor(t *testing.T) {
	limits := Limits{Clients: map[string]Limit{"x": {Decay: time.Second}}}

	def := limits.For("unknown")
	if def.MaxAttempts != DefaultMaxAttempts || def.Decay != DefaultDecay {
		t.Errorf("default = %+v", def)
	}

	x := limits.For("x")
	if x.MaxAttempts != DefaultMaxAttempts || x.Decay != time.Second {
		t.Errorf("x = %+v", x)
	}
}

func TestMemoryReleaseKeepsWindow(t *testing.T) {
	ctx := context.Background()
	m, clock := newTestMemory(5, time.Minute)

	if _, err := m.Increment(ctx, "demo", 3); err != nil {
		t.Fatalf("Increment: %v", err)
	}
	clock.Advance(20 * time.Second)
	if err := m.Release(ctx, "demo", 2); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if remaining, _ := m.Remaining(ctx, "demo"); remaining != 4 {
		t.Errorf("remaining = %d, want 4", remaining)
	}
	if wait, _ := m.AvailableIn(ctx, "demo"); wait != 40*time.Second {
		t.Errorf("AvailableIn = %v, want 40s", wait)
	}

	if err := m.Release(ctx, "demo", 10); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if remaining, _ := m.Remaining(ctx, "demo"); remaining != 5 {
		t.Errorf("remaining = %d, want 5 after over-release", remaining)
	}

	if err := m.Release(ctx, "idle", 1); err != nil {
		t.Fatalf("Release without window: %v", err)
	}
	if m.Count() != 1 {
		t.Errorf("Count = %d, release must not open a window", m.Count())
	}
}
