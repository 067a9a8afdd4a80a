// cmd/app.go
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/aceteam-ai/relaycache/internal/cache"
	"github.com/aceteam-ai/relaycache/internal/config"
	"github.com/aceteam-ai/relaycache/internal/errorlog"
	"github.com/aceteam-ai/relaycache/internal/ingest"
	"github.com/aceteam-ai/relaycache/internal/orchestrator"
	"github.com/aceteam-ai/relaycache/internal/provider"
	"github.com/aceteam-ai/relaycache/internal/ratelimit"
	"github.com/aceteam-ai/relaycache/internal/redis"
	"github.com/aceteam-ai/relaycache/internal/store"
)

// app holds the components wired from appConfig for one command run.
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	db       *store.DB
	cache    *cache.SQLStore
	redis    *redis.Client
	limiter  ratelimit.Limiter
	errorLog *errorlog.Logger
	orch     *orchestrator.Orchestrator
}

// openApp opens the database, the limiter backend and registers every
// configured client with the orchestrator.
func openApp(ctx context.Context) (*app, error) {
	cfg := appConfig
	a := &app{cfg: cfg, log: slog.Default()}

	if cfg.Database.Driver == store.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.DSN), 0755); err != nil {
			return nil, fmt.Errorf("could not create data directory: %w", err)
		}
	}
	db, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.db = db

	if err := errorlog.Migrate(ctx, db); err != nil {
		a.Close()
		return nil, err
	}
	if err := ingest.Migrate(ctx, db); err != nil {
		a.Close()
		return nil, err
	}

	a.cache, err = cache.NewSQLStore(db, cache.SQLStoreConfig{CompressThreshold: cfg.Cache.CompressThreshold})
	if err != nil {
		a.Close()
		return nil, err
	}

	if err := a.openLimiter(ctx); err != nil {
		a.Close()
		return nil, err
	}

	elCfg := errorlog.DefaultConfig()
	elCfg.Enabled = cfg.ErrorLog.Enabled
	for event, on := range cfg.ErrorLog.LogEvents {
		elCfg.Events[event] = on
	}
	for event, level := range cfg.ErrorLog.Levels {
		elCfg.Levels[event] = level
	}
	elCfg.Logger = a.log
	a.errorLog = errorlog.New(db, elCfg)

	a.orch = orchestrator.New(orchestrator.Config{
		Store:    a.cache,
		Limiter:  a.limiter,
		ErrorLog: a.errorLog,
		Coalesce: cfg.Cache.Coalesce,
		Logger:   a.log,
	})
	for _, name := range cfg.ClientNames() {
		cc := cfg.Clients[name]
		if err := a.orch.Register(newProvider(name, cc), policyFor(cc)); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func (a *app) openLimiter(ctx context.Context) error {
	limits := limitsFrom(a.cfg.RateLimit)
	if a.cfg.RateLimit.Backend != config.BackendRedis {
		a.limiter = ratelimit.NewMemory(limits)
		return nil
	}

	rc := redis.NewClient(redis.ClientConfig{
		URL:       a.cfg.Redis.URL,
		Password:  a.cfg.Redis.Password,
		KeyPrefix: a.cfg.Redis.KeyPrefix,
	})
	if err := rc.Connect(ctx, a.cfg.Redis.URL, a.cfg.Redis.Password); err != nil {
		return err
	}
	a.redis = rc
	a.limiter = ratelimit.NewRedis(rc.Raw(), limits, func(client string) string {
		return rc.Key("ratelimit", client)
	})
	return nil
}

// Close releases everything openApp acquired.
func (a *app) Close() {
	if a.cache != nil {
		a.cache.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

// writerConfig keeps the writer's fixed chunk size; ingest.batch_size only
// sets how many responses are read per batch.
func (a *app) writerConfig() ingest.WriterConfig {
	return ingest.WriterConfig{
		UpdateIfNewer: a.cfg.Ingest.UpdateIfNewer,
		Logger:        a.log,
	}
}

// pipeline builds the keyword pipeline from the ingest section.
func (a *app) pipeline() *ingest.Pipeline {
	ic := a.cfg.Ingest
	pc := ingest.DefaultPipelineConfig()
	pc.Client = ic.Client
	pc.Source = a.cache
	pc.DB = a.db
	pc.SkipSandbox = ic.SkipSandbox
	if ic.SandboxMarker != "" {
		pc.SandboxMarker = ic.SandboxMarker
	}
	pc.Writer = ingest.NewWriter(a.db, a.writerConfig())
	pc.Extract = ingest.ExtractOptions{
		SkipKeywordInfoMonthlySearches:            ic.SkipKeywordInfoMonthlySearches,
		SkipBingMonthlySearches:                   ic.SkipBingMonthlySearches,
		SkipClickstreamNormalizedMonthlySearches:  ic.SkipClickstreamNormalizedMonthlySearches,
		SkipClickstreamKeywordInfoMonthlySearches: ic.SkipClickstreamKeywordInfoMonthlySearches,
	}
	pc.Logger = a.log
	return ingest.NewPipeline(pc)
}

func limitsFrom(rl config.RateLimitConfig) ratelimit.Limits {
	limits := ratelimit.Limits{
		Default: ratelimit.Limit{MaxAttempts: rl.Default.MaxAttempts, Decay: rl.Default.Decay()},
		Clients: make(map[string]ratelimit.Limit, len(rl.Clients)),
	}
	for name, l := range rl.Clients {
		limits.Clients[name] = ratelimit.Limit{MaxAttempts: l.MaxAttempts, Decay: l.Decay()}
	}
	return limits
}

func newProvider(name string, cc config.ClientConfig) *provider.HTTP {
	var headers http.Header
	if len(cc.Headers) > 0 {
		headers = make(http.Header, len(cc.Headers))
		for k, v := range cc.Headers {
			headers.Set(k, v)
		}
	}
	return provider.NewHTTP(provider.HTTPConfig{
		Name:              name,
		BaseURL:           cc.BaseURL,
		Login:             cc.Login,
		Password:          cc.Password,
		Token:             cc.Token,
		RequestsPerSecond: cc.RequestsPerSecond,
		Required:          cc.Required,
		Headers:           headers,
		Timeout:           cc.Timeout,
	})
}

func policyFor(cc config.ClientConfig) orchestrator.Policy {
	p := orchestrator.Policy{UseCache: cc.UseCache, TTL: cc.TTL}
	if cc.CachePolicy == config.PolicySuccessfulTasks {
		p.ShouldCache = orchestrator.SuccessfulTasksOnly
	}
	return p
}

// parseParams turns repeated key=value flags into a parameter map. Values
// that parse as JSON keep their type; anything else is a string.
func parseParams(pairs []string, data string) (map[string]any, error) {
	out := make(map[string]any)
	if data != "" {
		if err := json.Unmarshal([]byte(data), &out); err != nil {
			return nil, fmt.Errorf("--data must be a JSON object: %w", err)
		}
	}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			out[k] = decoded
		} else {
			out[k] = v
		}
	}
	return out, nil
}
