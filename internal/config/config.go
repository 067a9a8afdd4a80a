// Package config loads relaycache's YAML configuration and applies
// RELAYCACHE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aceteam-ai/relaycache/internal/platform"
	"github.com/aceteam-ai/relaycache/internal/store"
)

// Rate limit backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Cache policies for ClientConfig.CachePolicy.
const (
	// PolicyAlways stores every successful response
	PolicyAlways = "always"

	// PolicySuccessfulTasks stores only task envelopes whose tasks all succeeded
	PolicySuccessfulTasks = "successful_tasks"
)

var validate = validator.New()

// ErrNotFound indicates an explicitly requested config file that does not exist.
var ErrNotFound = errors.New("config file not found")

// Config is the root of the configuration file.
type Config struct {
	Database  DatabaseConfig          `yaml:"database"`
	Redis     RedisConfig             `yaml:"redis"`
	RateLimit RateLimitConfig         `yaml:"rate_limit"`
	Clients   map[string]ClientConfig `yaml:"clients" validate:"dive"`
	ErrorLog  ErrorLogConfig          `yaml:"error_log"`
	Ingest    IngestConfig            `yaml:"ingest"`
	Cache     CacheConfig             `yaml:"cache"`
}

// DatabaseConfig selects the SQL backend.
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// RedisConfig locates the shared Redis used by the redis rate limit backend.
type RedisConfig struct {
	URL       string `yaml:"url"`
	Password  string `yaml:"password"`
	KeyPrefix string `yaml:"key_prefix"`
}

// LimitConfig is one admission window.
type LimitConfig struct {
	MaxAttempts  int `yaml:"max_attempts" validate:"gte=0"`
	DecaySeconds int `yaml:"decay_seconds" validate:"gte=0"`
}

// Decay returns the window length.
func (l LimitConfig) Decay() time.Duration {
	return time.Duration(l.DecaySeconds) * time.Second
}

// RateLimitConfig selects the counter backend and per-client windows.
type RateLimitConfig struct {
	Backend string                 `yaml:"backend" validate:"oneof=memory redis"`
	Default LimitConfig            `yaml:"default"`
	Clients map[string]LimitConfig `yaml:"clients" validate:"dive"`
}

// ClientConfig describes one upstream API.
type ClientConfig struct {
	BaseURL           string              `yaml:"base_url" validate:"required,url"`
	Version           string              `yaml:"version"`
	UseCache          bool                `yaml:"use_cache"`
	CachePolicy       string              `yaml:"cache_policy" validate:"omitempty,oneof=always successful_tasks"`
	TTL               time.Duration       `yaml:"ttl"`
	Login             string              `yaml:"login"`
	Password          string              `yaml:"password"`
	Token             string              `yaml:"token"`
	RequestsPerSecond float64             `yaml:"requests_per_second" validate:"gte=0"`
	Timeout           time.Duration       `yaml:"timeout"`
	Headers           map[string]string   `yaml:"headers"`
	Required          map[string][]string `yaml:"required"`
}

// ErrorLogConfig gates the api_errors table.
type ErrorLogConfig struct {
	Enabled   bool              `yaml:"enabled"`
	LogEvents map[string]bool   `yaml:"log_events"`
	Levels    map[string]string `yaml:"levels"`
}

// IngestConfig configures the keyword pipeline.
type IngestConfig struct {
	Client        string        `yaml:"client"`
	SkipSandbox   bool          `yaml:"skip_sandbox"`
	SandboxMarker string        `yaml:"sandbox_marker"`
	UpdateIfNewer bool          `yaml:"update_if_newer"`
	BatchSize     int           `yaml:"batch_size" validate:"gte=0"`
	Interval      time.Duration `yaml:"interval"`

	SkipKeywordInfoMonthlySearches            bool `yaml:"skip_keyword_info_monthly_searches"`
	SkipBingMonthlySearches                   bool `yaml:"skip_bing_monthly_searches"`
	SkipClickstreamNormalizedMonthlySearches  bool `yaml:"skip_clickstream_normalized_monthly_searches"`
	SkipClickstreamKeywordInfoMonthlySearches bool `yaml:"skip_clickstream_keyword_info_monthly_searches"`
}

// CacheConfig tunes the response store.
type CacheConfig struct {
	// CompressThreshold in bytes (0 = default, negative disables compression)
	CompressThreshold int `yaml:"compress_threshold"`

	// Coalesce shares one upstream call between concurrent identical misses
	Coalesce bool `yaml:"coalesce"`
}

// Default returns a Config with sensible defaults: a local SQLite file, the
// in-memory limiter and every error event enabled.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    platform.DefaultDatabasePath(),
		},
		RateLimit: RateLimitConfig{
			Backend: BackendMemory,
			Default: LimitConfig{MaxAttempts: 1000, DecaySeconds: 60},
		},
		Clients: map[string]ClientConfig{},
		ErrorLog: ErrorLogConfig{
			Enabled: true,
			LogEvents: map[string]bool{
				"http_error":       true,
				"cache_rejected":   true,
				"connection_error": true,
				"request_error":    true,
			},
		},
		Ingest: IngestConfig{
			Client:        "dataforseo",
			SkipSandbox:   true,
			SandboxMarker: "sandbox",
			UpdateIfNewer: true,
			BatchSize:     100,
			Interval:      60 * time.Second,
		},
	}
}

// Load reads path over Default() and applies environment overrides. An empty
// path falls back to platform.DefaultConfigFile(), which may be absent.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = platform.DefaultConfigFile()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("could not parse config %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	case os.IsNotExist(err):
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	default:
		return nil, fmt.Errorf("could not read config %s: %w", path, err)
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with RELAYCACHE_* variables. Client
// credentials use RELAYCACHE_<CLIENT>_LOGIN, _PASSWORD and _TOKEN.
func (c *Config) applyEnv() {
	c.Database.Driver = getEnvOrDefault("RELAYCACHE_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnvOrDefault("RELAYCACHE_DB_DSN", c.Database.DSN)
	c.Redis.URL = getEnvOrDefault("RELAYCACHE_REDIS_URL", c.Redis.URL)
	c.Redis.Password = getEnvOrDefault("RELAYCACHE_REDIS_PASSWORD", c.Redis.Password)
	c.RateLimit.Backend = getEnvOrDefault("RELAYCACHE_RATE_LIMIT_BACKEND", c.RateLimit.Backend)
	c.ErrorLog.Enabled = getEnvBool("RELAYCACHE_ERROR_LOG_ENABLED", c.ErrorLog.Enabled)
	c.Ingest.BatchSize = getEnvInt("RELAYCACHE_INGEST_BATCH_SIZE", c.Ingest.BatchSize)
	c.Cache.CompressThreshold = getEnvInt("RELAYCACHE_COMPRESS_THRESHOLD", c.Cache.CompressThreshold)

	for name, cc := range c.Clients {
		prefix := "RELAYCACHE_" + strings.ToUpper(name) + "_"
		cc.Login = getEnvOrDefault(prefix+"LOGIN", cc.Login)
		cc.Password = getEnvOrDefault(prefix+"PASSWORD", cc.Password)
		cc.Token = getEnvOrDefault(prefix+"TOKEN", cc.Token)
		c.Clients[name] = cc
	}
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.RateLimit.Backend == BackendRedis && c.Redis.URL == "" {
		return errors.New("invalid config: rate_limit.backend is redis but redis.url is empty")
	}
	for name := range c.Clients {
		if _, err := store.ClientTable(name, "responses"); err != nil {
			return fmt.Errorf("invalid config: client %q: %w", name, err)
		}
	}
	return nil
}

// ClientNames returns the configured client names in sorted order.
func (c *Config) ClientNames() []string {
	names := make([]string, 0, len(c.Clients))
	for name := range c.Clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as an int or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvBool returns the environment variable as a bool or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
