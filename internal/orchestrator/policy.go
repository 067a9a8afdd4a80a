package orchestrator

import (
	"encoding/json"
	"time"
)

// Policy holds the per-client cache and cost strategy.
type Policy struct {
	// UseCache enables cache lookup and storage. Rate limiting applies either way.
	UseCache bool

	// ShouldCache decides whether a specific response body is stored
	// (default: always)
	ShouldCache func(body []byte) bool

	// CalculateCost prices a call in rate-limit units when the call does not
	// carry its own cost (default: 1)
	CalculateCost func(c Call) int

	// TTL sets expires_at for stored responses when the call has none
	// (0 = never expires)
	TTL time.Duration
}

func (p Policy) shouldCache(body []byte) bool {
	if p.ShouldCache == nil {
		return true
	}
	return p.ShouldCache(body)
}

func (p Policy) cost(c Call) int {
	if c.Cost > 0 {
		return c.Cost
	}
	if p.CalculateCost != nil {
		if n := p.CalculateCost(c); n > 0 {
			return n
		}
	}
	return 1
}

type taskEnvelope struct {
	StatusCode *int `json:"status_code"`
	Tasks      []struct {
		StatusCode int `json:"status_code"`
	} `json:"tasks"`
}

// SuccessfulTasksOnly is a ShouldCache strategy for task-shaped responses: the
// body must decode, the envelope status (when present) must be 20000, and
// every task must carry a 2xxxx status code.
func SuccessfulTasksOnly(body []byte) bool {
	var env taskEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return false
	}
	if env.StatusCode != nil && *env.StatusCode != 20000 {
		return false
	}
	for _, t := range env.Tasks {
		if t.StatusCode < 20000 || t.StatusCode >= 30000 {
			return false
		}
	}
	return true
}
