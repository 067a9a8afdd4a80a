// Package cache persists HTTP exchanges made through the orchestrator so
// identical calls can be answered without reaching the upstream API.
package cache

import (
	"context"
	"net/http"
	"time"
)

// CachedResponse is one stored exchange. Payload fields always hold
// uncompressed bytes; compression is internal to the store.
type CachedResponse struct {
	ID       int64
	Key      string
	Client   string
	Version  string
	Endpoint string
	BaseURL  string
	Method   string

	// RequestParams is the truncated human-readable parameter summary
	RequestParams  string
	RequestHeaders http.Header
	RequestBody    []byte

	ResponseHeaders http.Header
	ResponseBody    []byte
	StatusCode      int
	ResponseSize    int64
	ResponseTime    time.Duration

	Attributes  string
	Attributes2 string
	Cost        int

	ExpiresAt       *time.Time
	ProcessedAt     *time.Time
	ProcessedStatus string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the entry has an expiry at or before now.
func (r *CachedResponse) Expired(now time.Time) bool {
	return r.ExpiresAt != nil && !now.Before(*r.ExpiresAt)
}

// Store defines the contract for response cache backends.
type Store interface {
	// Get returns the live entry for (client, key), or nil on a miss.
	// Expired entries count as misses.
	Get(ctx context.Context, client, key string) (*CachedResponse, error)

	// Put writes the entry, replacing any previous entry for the same key.
	Put(ctx context.Context, r *CachedResponse) error

	// Clear removes every entry of a client.
	Clear(ctx context.Context, client string) error
}
