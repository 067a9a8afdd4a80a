// Package provider defines the boundary between the orchestrator and the
// upstream API clients, plus a generic HTTP implementation.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	// ErrUnknownEndpoint indicates an endpoint the client does not serve
	ErrUnknownEndpoint = errors.New("unknown endpoint")

	// ErrMissingParam indicates a required parameter was not supplied
	ErrMissingParam = errors.New("missing required parameter")
)

// Request is one outbound call.
type Request struct {
	Endpoint string
	Version  string
	Method   string

	// URL is filled from BuildURL when empty
	URL     string
	Params  map[string]any
	Headers http.Header

	// Body is encoded from Params when empty and the method carries a body
	Body []byte
}

// Response is a completed exchange, whatever its status.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Elapsed    time.Duration
}

// Client is implemented by every upstream API client.
type Client interface {
	// Name is the client identifier used for cache tables and rate limits.
	Name() string

	// BuildURL returns the absolute URL of an endpoint.
	BuildURL(endpoint, version string) string

	// Validate checks endpoint-specific parameters before anything else runs.
	Validate(endpoint string, params map[string]any) error

	// Do performs the live call. Transport failures return *ConnectionError;
	// responses rejected by policy return *RequestError.
	Do(ctx context.Context, req *Request) (*Response, error)
}

// ConnectionError is a transport-level failure: the upstream was not reached
// or the exchange was cut off.
type ConnectionError struct {
	URL string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RequestError is a completed exchange that the client treats as a failure,
// by default any non-2xx status.
type RequestError struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Elapsed    time.Duration

	// APIMessage is the upstream's own error detail, when the body carries one
	APIMessage string
}

func (e *RequestError) Error() string {
	if e.APIMessage != "" {
		return fmt.Sprintf("request %s: status %d: %s", e.URL, e.StatusCode, e.APIMessage)
	}
	return fmt.Sprintf("request %s: status %d", e.URL, e.StatusCode)
}
