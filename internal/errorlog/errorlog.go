// Package errorlog records failures around outbound API calls in the
// api_errors table. Writes are gated by a global switch and a per-event-type
// switch, and every written entry is mirrored to slog.
package errorlog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/aceteam-ai/relaycache/internal/store"
)

// Event types written by the orchestrator.
const (
	TypeHTTPError       = "http_error"
	TypeCacheRejected   = "cache_rejected"
	TypeConnectionError = "connection_error"
	TypeRequestError    = "request_error"
)

// Log levels.
const (
	LevelDebug   = "debug"
	LevelInfo    = "info"
	LevelWarning = "warning"
	LevelError   = "error"
)

// PreviewLimit is the number of response bytes kept in response_preview.
const PreviewLimit = 1000

const schema = `
CREATE TABLE IF NOT EXISTS api_errors (
    id               TEXT PRIMARY KEY,
    api_client       TEXT NOT NULL,
    error_type       TEXT NOT NULL,
    log_level        TEXT NOT NULL DEFAULT 'error',
    error_message    TEXT NOT NULL,
    api_message      TEXT,
    response_preview TEXT,
    context_data     TEXT,
    created_at       TEXT NOT NULL
)`

const typeIndex = `CREATE INDEX IF NOT EXISTS idx_api_errors_client_type ON api_errors(api_client, error_type)`

// Config holds the gating configuration.
type Config struct {
	// Enabled is the global switch
	Enabled bool

	// Events enables individual event types; a type missing here is not logged
	Events map[string]bool

	// Levels maps event types to a log level (default "error")
	Levels map[string]string

	Logger *slog.Logger
	Now    func() time.Time
}

// DefaultConfig enables the four event types the orchestrator emits.
func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Events: map[string]bool{
			TypeHTTPError:       true,
			TypeCacheRejected:   true,
			TypeConnectionError: true,
			TypeRequestError:    true,
		},
		Levels: map[string]string{
			TypeCacheRejected: LevelWarning,
		},
	}
}

// Entry is one failure to record.
type Entry struct {
	Client     string
	Type       string
	Message    string
	Context    map[string]any
	Response   []byte
	APIMessage string
}

type logOptions struct {
	compact bool
}

// Option adjusts a single LogAPIError call.
type Option func(*logOptions)

// Compact serializes context_data without indentation.
func Compact() Option {
	return func(o *logOptions) { o.compact = true }
}

// Logger writes gated entries to the api_errors table.
type Logger struct {
	db  *store.DB
	cfg Config
	log *slog.Logger
	now func() time.Time
}

// New creates a Logger. The table is created by Migrate.
func New(db *store.DB, cfg Config) *Logger {
	l := &Logger{db: db, cfg: cfg, log: cfg.Logger, now: cfg.Now}
	if l.log == nil {
		l.log = slog.Default()
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Migrate creates the api_errors table.
func Migrate(ctx context.Context, db *store.DB) error {
	return db.ExecSchema(ctx, schema, typeIndex)
}

// Enabled reports whether entries of eventType would be written.
func (l *Logger) Enabled(eventType string) bool {
	return l != nil && l.cfg.Enabled && l.cfg.Events[eventType]
}

// Level returns the configured level for eventType.
func (l *Logger) Level(eventType string) string {
	if lvl, ok := l.cfg.Levels[eventType]; ok && lvl != "" {
		return lvl
	}
	return LevelError
}

// LogAPIError records e if logging is enabled for its type. It reports
// whether a row was written.
func (l *Logger) LogAPIError(ctx context.Context, e Entry, opts ...Option) (bool, error) {
	if !l.Enabled(e.Type) {
		return false, nil
	}
	var o logOptions
	for _, opt := range opts {
		opt(&o)
	}

	contextData, err := encodeContext(e.Context, o.compact)
	if err != nil {
		return false, err
	}
	level := l.Level(e.Type)

	_, err = l.db.Exec(ctx, `
		INSERT INTO api_errors (
			id, api_client, error_type, log_level, error_message,
			api_message, response_preview, context_data, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), e.Client, e.Type, level, e.Message,
		nullable(e.APIMessage), nullable(preview(e.Response)), nullable(contextData),
		store.FormatTime(l.now()),
	)
	if err != nil {
		return false, fmt.Errorf("insert api error: %w", err)
	}

	l.log.Log(ctx, slogLevel(level), e.Message,
		"client", e.Client,
		"type", e.Type,
		"api_message", e.APIMessage,
	)
	return true, nil
}

// LogHTTPError records an http_error entry carrying the status code.
func (l *Logger) LogHTTPError(ctx context.Context, client string, statusCode int, message string, contextData map[string]any, response []byte) (bool, error) {
	c := make(map[string]any, len(contextData)+1)
	for k, v := range contextData {
		c[k] = v
	}
	c["status_code"] = statusCode
	return l.LogAPIError(ctx, Entry{
		Client:   client,
		Type:     TypeHTTPError,
		Message:  message,
		Context:  c,
		Response: response,
	})
}

// LogCacheRejected records a cache_rejected entry.
func (l *Logger) LogCacheRejected(ctx context.Context, client, message string, contextData map[string]any, response []byte) (bool, error) {
	return l.LogAPIError(ctx, Entry{
		Client:   client,
		Type:     TypeCacheRejected,
		Message:  message,
		Context:  contextData,
		Response: response,
	})
}

func encodeContext(c map[string]any, compact bool) (string, error) {
	if len(c) == 0 {
		return "", nil
	}
	var (
		data []byte
		err  error
	)
	if compact {
		data, err = json.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "    ")
	}
	if err != nil {
		return "", fmt.Errorf("encode context: %w", err)
	}
	return string(data), nil
}

// preview returns at most PreviewLimit bytes of body as valid UTF-8. The cut
// never splits a rune and invalid sequences are dropped.
func preview(body []byte) string {
	if len(body) > PreviewLimit {
		cut := PreviewLimit
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut]
	}
	return strings.ToValidUTF8(string(body), "")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func slogLevel(level string) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarning, "warn":
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
