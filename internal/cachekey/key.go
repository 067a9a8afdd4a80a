// Package cachekey derives stable cache keys for outbound API calls.
package cachekey

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/aceteam-ai/relaycache/internal/params"
)

// keyInput is the hashed envelope. Field order is fixed by the struct.
type keyInput struct {
	Client   string `json:"client"`
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
	Params   any    `json:"params"`
	Version  string `json:"version"`
}

// Generate returns the hex sha256 of the canonical JSON encoding of the call.
// Parameter key order does not affect the result; every other input does.
func Generate(client, endpoint string, p any, method, version string) (string, error) {
	normalized, err := params.Normalize(p)
	if err != nil {
		return "", fmt.Errorf("normalize params: %w", err)
	}
	if normalized == nil {
		normalized = map[string]any{}
	}

	data, err := json.Marshal(keyInput{
		Client:   client,
		Endpoint: endpoint,
		Method:   method,
		Params:   normalized,
		Version:  version,
	})
	if err != nil {
		return "", fmt.Errorf("encode cache key input: %w", err)
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
