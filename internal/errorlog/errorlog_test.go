package errorlog

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/aceteam-ai/relaycache/internal/store"
)

func newTestLogger(t *testing.T, cfg Config) (*Logger, *store.DB) {
	t.Helper()
	db, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "errors_test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := Migrate(context.Background(), db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return New(db, cfg), db
}

func countRows(t *testing.T, db *store.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow(context.Background(), "SELECT COUNT(*) FROM api_errors").Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestGating(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		events  map[string]bool
		want    int
	}{
		{"global disabled", false, map[string]bool{"http_error": true}, 0},
		{"event disabled", true, map[string]bool{"http_error": false}, 0},
		{"event missing", true, map[string]bool{}, 0},
		{"both enabled", true, map[string]bool{"http_error": true}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, db := newTestLogger(t, Config{Enabled: tt.enabled, Events: tt.events})
			wrote, err := l.LogAPIError(context.Background(), Entry{
				Client: "demo", Type: "http_error", Message: "boom",
			})
			if err != nil {
				t.Fatalf("LogAPIError: %v", err)
			}
			if wrote != (tt.want == 1) {
				t.Errorf("wrote = %v", wrote)
			}
			if got := countRows(t, db); got != tt.want {
				t.Errorf("rows = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestContextFormatting(t *testing.T) {
	ctx := context.Background()
	contextData := map[string]any{"endpoint": "predictions", "attempt": 2}

	l, _ := newTestLogger(t, DefaultConfig())
	if _, err := l.LogAPIError(ctx, Entry{Client: "pretty", Type: TypeRequestError, Message: "m", Context: contextData}); err != nil {
		t.Fatalf("LogAPIError: %v", err)
	}
	if _, err := l.LogAPIError(ctx, Entry{Client: "compact", Type: TypeRequestError, Message: "m", Context: contextData}, Compact()); err != nil {
		t.Fatalf("LogAPIError compact: %v", err)
	}

	pretty, err := l.Recent(ctx, "pretty", 1)
	if err != nil || len(pretty) != 1 {
		t.Fatalf("Recent pretty: %v %d", err, len(pretty))
	}
	if !strings.Contains(pretty[0].ContextData, "\n    ") {
		t.Errorf("pretty context should be indented: %q", pretty[0].ContextData)
	}

	compact, err := l.Recent(ctx, "compact", 1)
	if err != nil || len(compact) != 1 {
		t.Fatalf("Recent compact: %v %d", err, len(compact))
	}
	if strings.Contains(compact[0].ContextData, "\n") {
		t.Errorf("compact context should be one line: %q", compact[0].ContextData)
	}
	if compact[0].ContextData != `{"attempt":2,"endpoint":"predictions"}` {
		t.Errorf("compact context = %s", compact[0].ContextData)
	}
}

func TestLevelsAndPreview(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLogger(t, DefaultConfig())

	body := bytes.Repeat([]byte("x"), PreviewLimit+500)
	if _, err := l.LogCacheRejected(ctx, "demo", "not cacheable", nil, body); err != nil {
		t.Fatalf("LogCacheRejected: %v", err)
	}
	if _, err := l.LogAPIError(ctx, Entry{Client: "demo", Type: TypeConnectionError, Message: "refused", APIMessage: "upstream down"}); err != nil {
		t.Fatalf("LogAPIError: %v", err)
	}

	recs, err := l.Recent(ctx, "demo", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	byType := map[string]Record{}
	for _, r := range recs {
		byType[r.Type] = r
	}

	rejected := byType[TypeCacheRejected]
	if rejected.Level != LevelWarning {
		t.Errorf("cache_rejected level = %q, want warning", rejected.Level)
	}
	if len(rejected.ResponsePreview) != PreviewLimit {
		t.Errorf("preview length = %d, want %d", len(rejected.ResponsePreview), PreviewLimit)
	}
	if rejected.ContextData != "" {
		t.Errorf("empty context should be stored as NULL, got %q", rejected.ContextData)
	}

	conn := byType[TypeConnectionError]
	if conn.Level != LevelError {
		t.Errorf("default level = %q, want error", conn.Level)
	}
	if conn.APIMessage != "upstream down" {
		t.Errorf("APIMessage = %q", conn.APIMessage)
	}
	if conn.ID == "" {
		t.Error("expected generated id")
	}
}

func TestHTTPErrorMatchesDirectCall(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLogger(t, DefaultConfig())

	if _, err := l.LogHTTPError(ctx, "wrapper", 503, "unavailable", map[string]any{"endpoint": "x"}, []byte("body")); err != nil {
		t.Fatalf("LogHTTPError: %v", err)
	}
	if _, err := l.LogAPIError(ctx, Entry{
		Client:   "direct",
		Type:     TypeHTTPError,
		Message:  "unavailable",
		Context:  map[string]any{"endpoint": "x", "status_code": 503},
		Response: []byte("body"),
	}); err != nil {
		t.Fatalf("LogAPIError: %v", err)
	}

	w, _ := l.Recent(ctx, "wrapper", 1)
	d, _ := l.Recent(ctx, "direct", 1)
	if len(w) != 1 || len(d) != 1 {
		t.Fatalf("missing rows: %d %d", len(w), len(d))
	}
	if w[0].Type != d[0].Type || w[0].Level != d[0].Level ||
		w[0].ContextData != d[0].ContextData || w[0].ResponsePreview != d[0].ResponsePreview {
		t.Errorf("wrapper row %+v differs from direct row %+v", w[0], d[0])
	}
}

func TestSlogMirror(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Logger = slog.New(slog.NewTextHandler(&buf, nil))
	l, _ := newTestLogger(t, cfg)

	if _, err := l.LogAPIError(context.Background(), Entry{Client: "demo", Type: TypeRequestError, Message: "bad request"}); err != nil {
		t.Fatalf("LogAPIError: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "level=ERROR") || !strings.Contains(out, "client=demo") {
		t.Errorf("slog output = %q", out)
	}
}

func TestPreviewKeepsValidUTF8(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"two-byte runes across the limit", append([]byte("a"), bytes.Repeat([]byte("é"), 600)...)},
		{"four-byte runes across the limit", append([]byte("ab"), bytes.Repeat([]byte("😀"), 300)...)},
		{"invalid bytes", append([]byte{0xff, 0xfe}, bytes.Repeat([]byte("x"), 10)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preview(tt.body)
			if !utf8.ValidString(got) {
				t.Errorf("preview is not valid UTF-8")
			}
			if len(got) > PreviewLimit {
				t.Errorf("preview length = %d, over %d", len(got), PreviewLimit)
			}
			if got == "" {
				t.Error("preview is empty")
			}
		})
	}

	ctx := context.Background()
	l, _ := newTestLogger(t, DefaultConfig())
	body := append([]byte("a"), bytes.Repeat([]byte("é"), 600)...)
	if _, err := l.LogHTTPError(ctx, "demo", 502, "bad gateway", nil, body); err != nil {
		t.Fatalf("LogHTTPError: %v", err)
	}
	recs, err := l.Recent(ctx, "demo", 1)
	if err != nil || len(recs) != 1 {
		t.Fatalf("Recent = %v, %v", recs, err)
	}
	if got := recs[0].ResponsePreview; len(got) != PreviewLimit-1 || !utf8.ValidString(got) {
		t.Errorf("stored preview = %d bytes, valid %v", len(got), utf8.ValidString(got))
	}
}
