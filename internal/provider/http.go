package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/aceteam-ai/relaycache/internal/params"
)

// DefaultTimeout bounds a single HTTP exchange.
const DefaultTimeout = 60 * time.Second

// HTTPConfig configures a generic HTTP API client.
type HTTPConfig struct {
	// Name is the client identifier (lowercase, used in table names)
	Name string

	// BaseURL is prepended to "<version>/<endpoint>"
	BaseURL string

	// Login and Password enable HTTP basic auth
	Login    string
	Password string

	// Token enables bearer auth; takes precedence over basic auth
	Token string

	// RequestsPerSecond paces outgoing calls (0 = unpaced)
	RequestsPerSecond float64

	// Required lists mandatory parameters per endpoint. When non-nil, an
	// endpoint missing from the map is rejected.
	Required map[string][]string

	// Headers are sent with every request
	Headers http.Header

	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTP is a generic JSON-over-HTTP client. GET parameters go into the query
// string; other methods send the parameters as a JSON body.
type HTTP struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTP creates an HTTP client from cfg.
func NewHTTP(cfg HTTPConfig) *HTTP {
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	if cfg.Token != "" {
		base := client.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *client
		wrapped.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"}),
			Base:   base,
		}
		client = &wrapped
	}

	h := &HTTP{cfg: cfg, client: client}
	if cfg.RequestsPerSecond > 0 {
		burst := int(cfg.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return h
}

func (h *HTTP) Name() string { return h.cfg.Name }

func (h *HTTP) BuildURL(endpoint, version string) string {
	parts := []string{strings.TrimRight(h.cfg.BaseURL, "/")}
	if version != "" {
		parts = append(parts, strings.Trim(version, "/"))
	}
	parts = append(parts, strings.TrimLeft(endpoint, "/"))
	return strings.Join(parts, "/")
}

func (h *HTTP) Validate(endpoint string, params map[string]any) error {
	if h.cfg.Required == nil {
		return nil
	}
	required, ok := h.cfg.Required[endpoint]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpoint)
	}
	for _, name := range required {
		if v, ok := params[name]; !ok || v == nil || v == "" {
			return fmt.Errorf("%w: %s", ErrMissingParam, name)
		}
	}
	return nil
}

// Prepare fills the request's method, URL and body the way Do would send
// them, so callers can describe the request before dispatching it.
func (h *HTTP) Prepare(req *Request) error {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if req.URL == "" {
		req.URL = h.BuildURL(req.Endpoint, req.Version)
	}
	if req.Method == http.MethodGet || req.Method == http.MethodDelete {
		if len(req.Params) > 0 && !strings.Contains(req.URL, "?") {
			q, err := encodeQuery(req.Params)
			if err != nil {
				return err
			}
			req.URL += "?" + q
		}
		return nil
	}
	if req.Body == nil && req.Params != nil {
		// Sent in the same normalized form the cache key hashes, so a
		// "0"-keyed task map goes out as a task array.
		norm, err := params.Normalize(req.Params)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		body, err := json.Marshal(norm)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		req.Body = body
	}
	return nil
}

func (h *HTTP) Do(ctx context.Context, req *Request) (*Response, error) {
	if err := h.Prepare(req); err != nil {
		return nil, err
	}
	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, &ConnectionError{URL: req.URL, Err: err}
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range h.cfg.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vs := range req.Headers {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}
	if h.cfg.Token == "" && h.cfg.Login != "" {
		httpReq.SetBasicAuth(h.cfg.Login, h.cfg.Password)
	}
	req.Headers = redact(httpReq.Header)

	start := time.Now()
	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, &ConnectionError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return nil, &ConnectionError{URL: req.URL, Err: fmt.Errorf("read body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RequestError{
			URL:        req.URL,
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
			Body:       data,
			Elapsed:    elapsed,
			APIMessage: APIMessage(data),
		}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       data,
		Elapsed:    elapsed,
	}, nil
}

// APIMessage extracts an upstream error message from a JSON body, looking at
// the common "status_message", "message" and "error" fields.
func APIMessage(body []byte) string {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return ""
	}
	for _, k := range []string{"status_message", "message", "error"} {
		switch v := m[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case map[string]any:
			if s, ok := v["message"].(string); ok {
				return s
			}
		}
	}
	return ""
}

func encodeQuery(params map[string]any) (string, error) {
	q := url.Values{}
	for k, v := range params {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			q.Set(k, val)
		case fmt.Stringer:
			q.Set(k, val.String())
		case bool, int, int64, float64, json.Number:
			q.Set(k, fmt.Sprint(val))
		default:
			data, err := json.Marshal(val)
			if err != nil {
				return "", fmt.Errorf("encode query param %s: %w", k, err)
			}
			q.Set(k, string(data))
		}
	}
	return q.Encode(), nil
}

// redact copies h without credentials, for storage alongside the response.
func redact(h http.Header) http.Header {
	out := h.Clone()
	if out.Get("Authorization") != "" {
		out.Set("Authorization", "[redacted]")
	}
	return out
}

var _ Client = (*HTTP)(nil)
