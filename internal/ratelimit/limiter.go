// Package ratelimit tracks outbound call attempts per API client inside a
// fixed decay window.
//
// A window opens with the first increment after the previous one expired.
// Within the window a client may accumulate up to MaxAttempts units; once the
// window elapses the count resets to zero.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Default limits applied to clients without an explicit entry.
const (
	DefaultMaxAttempts = 1000
	DefaultDecay       = 60 * time.Second
)

var (
	// ErrInvalidAmount indicates a non-positive increment
	ErrInvalidAmount = errors.New("increment amount must be at least 1")

	// ErrEmptyClient indicates a missing client name
	ErrEmptyClient = errors.New("client name is required")
)

// Limit is the admission policy for one client.
type Limit struct {
	MaxAttempts int
	Decay       time.Duration
}

// Limiter is implemented by every counter backend. Implementations must make
// Increment and Acquire atomic per client.
type Limiter interface {
	// Allow reports whether the client has capacity left in the current window.
	Allow(ctx context.Context, client string) (bool, error)

	// Increment charges amount units and returns the new count.
	Increment(ctx context.Context, client string, amount int) (int, error)

	// Acquire checks capacity for amount units and charges them in one step.
	Acquire(ctx context.Context, client string, amount int) (bool, error)

	// Release returns up to amount units to the current window. The window
	// itself is kept and the count never drops below zero.
	Release(ctx context.Context, client string, amount int) error

	// Remaining returns how many units are left in the current window.
	Remaining(ctx context.Context, client string) (int, error)

	// AvailableIn returns the time until the current window resets, or zero
	// when no window is open.
	AvailableIn(ctx context.Context, client string) (time.Duration, error)

	// Clear drops the client's counter.
	Clear(ctx context.Context, client string) error
}

// Limits resolves per-client limits with a default fallback.
type Limits struct {
	Default Limit
	Clients map[string]Limit
}

// For returns the limit for client, filling zero fields from the default.
func (l Limits) For(client string) Limit {
	def := l.Default
	if def.MaxAttempts <= 0 {
		def.MaxAttempts = DefaultMaxAttempts
	}
	if def.Decay <= 0 {
		def.Decay = DefaultDecay
	}

	lim, ok := l.Clients[client]
	if !ok {
		return def
	}
	if lim.MaxAttempts <= 0 {
		lim.MaxAttempts = def.MaxAttempts
	}
	if lim.Decay <= 0 {
		lim.Decay = def.Decay
	}
	return lim
}

func checkArgs(client string, amount int) error {
	if client == "" {
		return ErrEmptyClient
	}
	if amount < 1 {
		return ErrInvalidAmount
	}
	return nil
}
