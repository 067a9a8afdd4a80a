package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited matches every *RateLimitError
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnknownClient indicates a call for a client that was never registered
	ErrUnknownClient = errors.New("unknown client")
)

// ValidationError is malformed caller input. It is returned before any
// cache, rate limit or network activity and is never written to the error log.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid call: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

// RateLimitError is returned when the client has no capacity left.
type RateLimitError struct {
	Client      string
	AvailableIn time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, available in %s", e.Client, e.AvailableIn.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }
