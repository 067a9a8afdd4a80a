// Package orchestrator is the single entry point provider clients go through
// to get a cached or live response. A call moves through cache lookup, rate
// check, dispatch, evaluation and optional storage; failures during dispatch
// are logged and returned unchanged.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"github.com/aceteam-ai/relaycache/internal/cache"
	"github.com/aceteam-ai/relaycache/internal/cachekey"
	"github.com/aceteam-ai/relaycache/internal/errorlog"
	"github.com/aceteam-ai/relaycache/internal/params"
	"github.com/aceteam-ai/relaycache/internal/provider"
	"github.com/aceteam-ai/relaycache/internal/ratelimit"
)

var validate = validator.New()

// ErrorLogger records dispatch failures and rejected cache writes.
// *errorlog.Logger implements it.
type ErrorLogger interface {
	LogAPIError(ctx context.Context, e errorlog.Entry, opts ...errorlog.Option) (bool, error)
	LogCacheRejected(ctx context.Context, client, message string, contextData map[string]any, response []byte) (bool, error)
}

// Call is one request from a provider client.
type Call struct {
	Client   string `validate:"required,max=48"`
	Endpoint string `validate:"required,max=255"`
	Method   string `validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	Version  string `validate:"max=32"`

	Params  map[string]any
	Headers http.Header
	Body    []byte

	// Attributes and Attributes2 are free-form tags stored with the response
	Attributes  string `validate:"max=255"`
	Attributes2 string `validate:"max=255"`

	// Cost overrides the policy's cost model when positive
	Cost int `validate:"gte=0"`

	// ExpiresAt bounds the cached entry's lifetime (nil keeps it forever)
	ExpiresAt *time.Time
}

// RequestInfo describes the request as sent (or as it would have been sent,
// for cache hits).
type RequestInfo struct {
	URL         string
	Method      string
	Headers     http.Header
	Body        []byte
	Attributes  string
	Attributes2 string
}

// Result is the uniform outcome of Do.
type Result struct {
	Key        string
	Request    RequestInfo
	Response   *provider.Response
	StatusCode int
	Size       int64
	Elapsed    time.Duration
	IsCached   bool
}

// Config holds the orchestrator's collaborators.
type Config struct {
	Store    cache.Store
	Limiter  ratelimit.Limiter
	ErrorLog ErrorLogger

	// Coalesce makes concurrent identical cache misses share one dispatch
	Coalesce bool

	Summary params.SummaryOptions
	Logger  *slog.Logger
	Now     func() time.Time
}

type registration struct {
	client provider.Client
	policy Policy
}

// Orchestrator runs calls for registered provider clients.
type Orchestrator struct {
	store    cache.Store
	limiter  ratelimit.Limiter
	errorLog ErrorLogger
	coalesce bool
	summary  params.SummaryOptions
	log      *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	clients map[string]registration

	group singleflight.Group
}

// New creates an Orchestrator. Store may be nil when no client uses the cache;
// ErrorLog may be nil to disable error logging.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		store:    cfg.Store,
		limiter:  cfg.Limiter,
		errorLog: cfg.ErrorLog,
		coalesce: cfg.Coalesce,
		summary:  cfg.Summary,
		log:      cfg.Logger,
		now:      cfg.Now,
		clients:  make(map[string]registration),
	}
	if o.summary.MaxStringLen == 0 {
		o.summary = params.DefaultSummaryOptions()
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Register makes client callable through Do under client.Name().
func (o *Orchestrator) Register(client provider.Client, policy Policy) error {
	name := client.Name()
	if name == "" {
		return errors.New("register client: empty name")
	}
	if policy.UseCache && o.store == nil {
		return fmt.Errorf("register %s: cache enabled but no store configured", name)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clients[name] = registration{client: client, policy: policy}
	return nil
}

// Clients returns the registered client names.
func (o *Orchestrator) Clients() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.clients))
	for name := range o.clients {
		names = append(names, name)
	}
	return names
}

func (o *Orchestrator) lookup(name string) (registration, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	reg, ok := o.clients[name]
	return reg, ok
}

// Key returns the cache key Do would use for c.
func (o *Orchestrator) Key(c Call) (string, error) {
	return cachekey.Generate(c.Client, c.Endpoint, c.Params, methodOf(c), c.Version)
}

// Do executes c: cache lookup, rate check, dispatch, evaluation, storage.
func (o *Orchestrator) Do(ctx context.Context, c Call) (*Result, error) {
	c.Method = methodOf(c)
	if err := validate.Struct(c); err != nil {
		return nil, &ValidationError{Err: err}
	}
	reg, ok := o.lookup(c.Client)
	if !ok {
		return nil, &ValidationError{Err: fmt.Errorf("%w: %s", ErrUnknownClient, c.Client)}
	}
	if err := reg.client.Validate(c.Endpoint, c.Params); err != nil {
		return nil, &ValidationError{Err: err}
	}

	// The key is computed even with the cache disabled; it identifies the
	// call in logs and coalescing.
	key, err := cachekey.Generate(c.Client, c.Endpoint, c.Params, c.Method, c.Version)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}

	if reg.policy.UseCache {
		hit, err := o.store.Get(ctx, c.Client, key)
		if err != nil {
			return nil, fmt.Errorf("cache lookup: %w", err)
		}
		if hit != nil {
			o.log.Debug("cache hit", "client", c.Client, "endpoint", c.Endpoint, "key", key)
			return o.cachedResult(reg, c, hit), nil
		}
	}

	if !o.coalesce || !reg.policy.UseCache {
		return o.dispatch(ctx, reg, c, key)
	}

	// The shared dispatch outlives any single waiter's cancellation.
	v, err, shared := o.group.Do(c.Client+":"+key, func() (any, error) {
		return o.dispatch(context.WithoutCancel(ctx), reg, c, key)
	})
	if err != nil {
		return nil, err
	}
	res := *v.(*Result)
	if shared {
		o.log.Debug("coalesced call", "client", c.Client, "key", key)
	}
	return &res, nil
}

func (o *Orchestrator) dispatch(ctx context.Context, reg registration, c Call, key string) (*Result, error) {
	// Capacity is reserved before the call and returned if the dispatch fails.
	cost := reg.policy.cost(c)
	acquired, err := o.limiter.Acquire(ctx, c.Client, cost)
	if err != nil {
		return nil, fmt.Errorf("rate limit check: %w", err)
	}
	if !acquired {
		wait, err := o.limiter.AvailableIn(ctx, c.Client)
		if err != nil {
			return nil, fmt.Errorf("rate limit check: %w", err)
		}
		return nil, &RateLimitError{Client: c.Client, AvailableIn: wait}
	}

	req := &provider.Request{
		Endpoint: c.Endpoint,
		Version:  c.Version,
		Method:   c.Method,
		Params:   c.Params,
		Headers:  c.Headers.Clone(),
		Body:     c.Body,
	}
	resp, err := reg.client.Do(ctx, req)
	if req.URL == "" {
		req.URL = reg.client.BuildURL(c.Endpoint, c.Version)
	}
	if err != nil {
		if rerr := o.limiter.Release(context.WithoutCancel(ctx), c.Client, cost); rerr != nil {
			o.log.Warn("rate limit release failed", "client", c.Client, "error", rerr)
		}
		o.logDispatchError(ctx, c, req, err)
		return nil, err
	}

	if reg.policy.UseCache {
		if reg.policy.shouldCache(resp.Body) {
			o.storeResponse(ctx, reg, c, req, resp, key, cost)
		} else {
			o.logCacheRejected(ctx, c, req, resp)
		}
	}

	return &Result{
		Key: key,
		Request: RequestInfo{
			URL:         req.URL,
			Method:      req.Method,
			Headers:     req.Headers,
			Body:        req.Body,
			Attributes:  c.Attributes,
			Attributes2: c.Attributes2,
		},
		Response:   resp,
		StatusCode: resp.StatusCode,
		Size:       int64(len(resp.Body)),
		Elapsed:    resp.Elapsed,
	}, nil
}

func (o *Orchestrator) storeResponse(ctx context.Context, reg registration, c Call, req *provider.Request, resp *provider.Response, key string, cost int) {
	summary, err := params.Summarize(c.Params, o.summary)
	if err != nil {
		summary = ""
	}
	expiresAt := c.ExpiresAt
	if expiresAt == nil && reg.policy.TTL > 0 {
		t := o.now().Add(reg.policy.TTL)
		expiresAt = &t
	}
	err = o.store.Put(ctx, &cache.CachedResponse{
		Key:             key,
		Client:          c.Client,
		Version:         c.Version,
		Endpoint:        c.Endpoint,
		BaseURL:         baseURL(req.URL),
		Method:          req.Method,
		RequestParams:   summary,
		RequestHeaders:  req.Headers,
		RequestBody:     req.Body,
		ResponseHeaders: resp.Headers,
		ResponseBody:    resp.Body,
		StatusCode:      resp.StatusCode,
		ResponseSize:    int64(len(resp.Body)),
		ResponseTime:    resp.Elapsed,
		Attributes:      c.Attributes,
		Attributes2:     c.Attributes2,
		Cost:            cost,
		ExpiresAt:       expiresAt,
	})
	if err != nil {
		// The live response is still returned; only the cache write is lost.
		o.log.Warn("cache store failed", "client", c.Client, "endpoint", c.Endpoint, "error", err)
	}
}

func (o *Orchestrator) cachedResult(reg registration, c Call, hit *cache.CachedResponse) *Result {
	return &Result{
		Key: hit.Key,
		Request: RequestInfo{
			URL:         reg.client.BuildURL(hit.Endpoint, hit.Version),
			Method:      hit.Method,
			Headers:     hit.RequestHeaders,
			Body:        hit.RequestBody,
			Attributes:  hit.Attributes,
			Attributes2: hit.Attributes2,
		},
		Response: &provider.Response{
			StatusCode: hit.StatusCode,
			Headers:    hit.ResponseHeaders,
			Body:       hit.ResponseBody,
			Elapsed:    hit.ResponseTime,
		},
		StatusCode: hit.StatusCode,
		Size:       hit.ResponseSize,
		Elapsed:    hit.ResponseTime,
		IsCached:   true,
	}
}

func (o *Orchestrator) logDispatchError(ctx context.Context, c Call, req *provider.Request, err error) {
	if o.errorLog == nil {
		return
	}
	entry := errorlog.Entry{
		Client:  c.Client,
		Message: err.Error(),
		Context: map[string]any{
			"endpoint": c.Endpoint,
			"method":   req.Method,
			"url":      req.URL,
			"version":  c.Version,
		},
	}

	var connErr *provider.ConnectionError
	var reqErr *provider.RequestError
	switch {
	case errors.As(err, &connErr):
		entry.Type = errorlog.TypeConnectionError
		entry.Context["status_code"] = 0
	case errors.As(err, &reqErr):
		entry.Type = errorlog.TypeRequestError
		entry.Context["status_code"] = reqErr.StatusCode
		entry.Response = reqErr.Body
		entry.APIMessage = reqErr.APIMessage
	default:
		entry.Type = errorlog.TypeRequestError
		entry.Context["status_code"] = 0
	}

	if _, logErr := o.errorLog.LogAPIError(ctx, entry); logErr != nil {
		o.log.Warn("error log write failed", "client", c.Client, "error", logErr)
	}
}

func (o *Orchestrator) logCacheRejected(ctx context.Context, c Call, req *provider.Request, resp *provider.Response) {
	if o.errorLog == nil {
		return
	}
	_, err := o.errorLog.LogCacheRejected(ctx, c.Client, "response rejected by cache policy", map[string]any{
		"endpoint":    c.Endpoint,
		"url":         req.URL,
		"status_code": resp.StatusCode,
	}, resp.Body)
	if err != nil {
		o.log.Warn("error log write failed", "client", c.Client, "error", err)
	}
}

func methodOf(c Call) string {
	if c.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(c.Method)
}

// baseURL reduces a request URL to scheme and host.
func baseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}
