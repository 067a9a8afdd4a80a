package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Limiter. All clients share one mutex, which makes
// check-and-increment linearizable per client.
type Memory struct {
	mu       sync.Mutex
	counters map[string]*counter
	limits   Limits
	now      func() time.Time
}

type counter struct {
	count       int
	windowStart time.Time
}

// MemoryOption configures a Memory limiter.
type MemoryOption func(*Memory)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an in-process limiter.
func NewMemory(limits Limits, opts ...MemoryOption) *Memory {
	m := &Memory{
		counters: make(map[string]*counter),
		limits:   limits,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// current returns the live counter for client, resetting an expired window.
// Callers hold m.mu.
func (m *Memory) current(client string) (*counter, Limit) {
	lim := m.limits.For(client)
	c, ok := m.counters[client]
	if !ok {
		return nil, lim
	}
	if !m.now().Before(c.windowStart.Add(lim.Decay)) {
		delete(m.counters, client)
		return nil, lim
	}
	return c, lim
}

func (m *Memory) Allow(ctx context.Context, client string) (bool, error) {
	if client == "" {
		return false, ErrEmptyClient
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, lim := m.current(client)
	return c == nil || c.count < lim.MaxAttempts, nil
}

func (m *Memory) Increment(ctx context.Context, client string, amount int) (int, error) {
	if err := checkArgs(client, amount); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.incrementLocked(client, amount), nil
}

func (m *Memory) incrementLocked(client string, amount int) int {
	c, _ := m.current(client)
	if c == nil {
		c = &counter{windowStart: m.now()}
		m.counters[client] = c
	}
	c.count += amount
	return c.count
}

func (m *Memory) Acquire(ctx context.Context, client string, amount int) (bool, error) {
	if err := checkArgs(client, amount); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, lim := m.current(client)
	used := 0
	if c != nil {
		used = c.count
	}
	if used+amount > lim.MaxAttempts {
		return false, nil
	}
	m.incrementLocked(client, amount)
	return true, nil
}

func (m *Memory) Release(ctx context.Context, client string, amount int) error {
	if err := checkArgs(client, amount); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, _ := m.current(client); c != nil {
		c.count = max(c.count-amount, 0)
	}
	return nil
}

func (m *Memory) Remaining(ctx context.Context, client string) (int, error) {
	if client == "" {
		return 0, ErrEmptyClient
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, lim := m.current(client)
	if c == nil {
		return lim.MaxAttempts, nil
	}
	return max(lim.MaxAttempts-c.count, 0), nil
}

func (m *Memory) AvailableIn(ctx context.Context, client string) (time.Duration, error) {
	if client == "" {
		return 0, ErrEmptyClient
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, lim := m.current(client)
	if c == nil {
		return 0, nil
	}
	return c.windowStart.Add(lim.Decay).Sub(m.now()), nil
}

func (m *Memory) Clear(ctx context.Context, client string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counters, client)
	return nil
}

// Count returns the number of clients with an open window.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.counters)
}

// Reset clears all counters.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = make(map[string]*counter)
}

var _ Limiter = (*Memory)(nil)
