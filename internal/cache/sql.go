package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aceteam-ai/relaycache/internal/store"
)

const responsesSchema = `
CREATE TABLE IF NOT EXISTS %[1]s (
    id                   {{id}},
    key                  TEXT NOT NULL UNIQUE,
    client               TEXT NOT NULL,
    version              TEXT NOT NULL DEFAULT '',
    endpoint             TEXT NOT NULL,
    base_url             TEXT NOT NULL DEFAULT '',
    method               TEXT NOT NULL DEFAULT 'GET',
    request_params       TEXT NOT NULL DEFAULT '',
    request_headers      {{blob}},
    request_body         {{blob}},
    response_headers     {{blob}},
    response_body        {{blob}},
    response_status_code INTEGER NOT NULL DEFAULT 0,
    response_size        {{bigint}} NOT NULL DEFAULT 0,
    response_time        {{float}} NOT NULL DEFAULT 0,
    attributes           TEXT,
    attributes2          TEXT,
    cost                 INTEGER NOT NULL DEFAULT 1,
    compressed           INTEGER NOT NULL DEFAULT 0,
    expires_at           TEXT,
    processed_at         TEXT,
    processed_status     TEXT,
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL
)`

const unprocessedIndex = `CREATE INDEX IF NOT EXISTS idx_%[1]s_unprocessed ON %[1]s(endpoint) WHERE processed_at IS NULL`

const responseColumns = `id, key, client, version, endpoint, base_url, method, request_params,
       request_headers, request_body, response_headers, response_body,
       response_status_code, response_size, response_time, attributes, attributes2,
       cost, compressed, expires_at, processed_at, processed_status, created_at, updated_at`

// SQLStore stores exchanges in one "<client>_responses" table per client.
type SQLStore struct {
	db    *store.DB
	codec *codec
	now   func() time.Time

	mu      sync.Mutex
	ensured map[string]bool
}

// SQLStoreConfig holds configuration for the SQL response store.
type SQLStoreConfig struct {
	// CompressThreshold compresses payloads larger than this many bytes
	// (default 1024, negative disables compression)
	CompressThreshold int

	// Now overrides time.Now, for tests
	Now func() time.Time
}

// NewSQLStore creates a response store on db.
func NewSQLStore(db *store.DB, cfg SQLStoreConfig) (*SQLStore, error) {
	if cfg.CompressThreshold == 0 {
		cfg.CompressThreshold = DefaultCompressThreshold
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c, err := newCodec(cfg.CompressThreshold)
	if err != nil {
		return nil, err
	}
	return &SQLStore{
		db:      db,
		codec:   c,
		now:     cfg.Now,
		ensured: make(map[string]bool),
	}, nil
}

// Close releases the compression codec. The database is owned by the caller.
func (s *SQLStore) Close() error {
	s.codec.close()
	return nil
}

// Table returns the response table for client.
func (s *SQLStore) Table(client string) (string, error) {
	return store.ClientTable(client, "responses")
}

// EnsureTable creates the client's response table if needed.
func (s *SQLStore) EnsureTable(ctx context.Context, client string) (string, error) {
	table, err := s.Table(client)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[table] {
		return table, nil
	}
	if err := s.db.ExecSchema(ctx,
		fmt.Sprintf(responsesSchema, table),
		fmt.Sprintf(unprocessedIndex, table),
	); err != nil {
		return "", fmt.Errorf("create %s: %w", table, err)
	}
	s.ensured[table] = true
	return table, nil
}

func (s *SQLStore) Get(ctx context.Context, client, key string) (*CachedResponse, error) {
	table, err := s.EnsureTable(ctx, client)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRow(ctx, "SELECT "+responseColumns+" FROM "+table+" WHERE key = ?", key)
	r, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached response: %w", err)
	}
	if r.Expired(s.now()) {
		return nil, nil
	}
	return r, nil
}

func (s *SQLStore) Put(ctx context.Context, r *CachedResponse) error {
	table, err := s.EnsureTable(ctx, r.Client)
	if err != nil {
		return err
	}

	reqHeaders, err := encodeHeaders(r.RequestHeaders)
	if err != nil {
		return err
	}
	respHeaders, err := encodeHeaders(r.ResponseHeaders)
	if err != nil {
		return err
	}

	flags := 0
	reqHeaders = s.codec.pack(reqHeaders, flagRequestHeaders, &flags)
	reqBody := s.codec.pack(r.RequestBody, flagRequestBody, &flags)
	respHeaders = s.codec.pack(respHeaders, flagResponseHeaders, &flags)
	respBody := s.codec.pack(r.ResponseBody, flagResponseBody, &flags)

	size := r.ResponseSize
	if size == 0 {
		size = int64(len(r.ResponseBody))
	}
	cost := r.Cost
	if cost < 1 {
		cost = 1
	}
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	now := store.FormatTime(s.now())

	_, err = s.db.Exec(ctx, `
		INSERT INTO `+table+` (
			key, client, version, endpoint, base_url, method, request_params,
			request_headers, request_body, response_headers, response_body,
			response_status_code, response_size, response_time, attributes, attributes2,
			cost, compressed, expires_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			version = excluded.version,
			endpoint = excluded.endpoint,
			base_url = excluded.base_url,
			method = excluded.method,
			request_params = excluded.request_params,
			request_headers = excluded.request_headers,
			request_body = excluded.request_body,
			response_headers = excluded.response_headers,
			response_body = excluded.response_body,
			response_status_code = excluded.response_status_code,
			response_size = excluded.response_size,
			response_time = excluded.response_time,
			attributes = excluded.attributes,
			attributes2 = excluded.attributes2,
			cost = excluded.cost,
			compressed = excluded.compressed,
			expires_at = excluded.expires_at,
			processed_at = NULL,
			processed_status = NULL,
			updated_at = excluded.updated_at`,
		r.Key, r.Client, r.Version, r.Endpoint, r.BaseURL, method, r.RequestParams,
		reqHeaders, reqBody, respHeaders, respBody,
		r.StatusCode, size, r.ResponseTime.Seconds(), nullString(r.Attributes), nullString(r.Attributes2),
		cost, flags, store.NullTime(r.ExpiresAt), now, now,
	)
	if err != nil {
		return fmt.Errorf("store response for %s: %w", r.Client, err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context, client string) error {
	table, err := s.EnsureTable(ctx, client)
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, "DELETE FROM "+table); err != nil {
		return fmt.Errorf("clear %s: %w", table, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLStore) scan(row rowScanner) (*CachedResponse, error) {
	var (
		r                                          CachedResponse
		reqHeaders, reqBody, respHeaders, respBody []byte
		attributes, attributes2, processedStatus   sql.NullString
		expiresAt, processedAt                     sql.NullString
		createdAt, updatedAt                       string
		responseTime                               float64
		flags                                      int
	)
	if err := row.Scan(
		&r.ID, &r.Key, &r.Client, &r.Version, &r.Endpoint, &r.BaseURL, &r.Method, &r.RequestParams,
		&reqHeaders, &reqBody, &respHeaders, &respBody,
		&r.StatusCode, &r.ResponseSize, &responseTime, &attributes, &attributes2,
		&r.Cost, &flags, &expiresAt, &processedAt, &processedStatus, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if reqHeaders, err = s.codec.unpack(reqHeaders, flagRequestHeaders, flags); err != nil {
		return nil, err
	}
	if r.RequestBody, err = s.codec.unpack(reqBody, flagRequestBody, flags); err != nil {
		return nil, err
	}
	if respHeaders, err = s.codec.unpack(respHeaders, flagResponseHeaders, flags); err != nil {
		return nil, err
	}
	if r.ResponseBody, err = s.codec.unpack(respBody, flagResponseBody, flags); err != nil {
		return nil, err
	}
	if r.RequestHeaders, err = decodeHeaders(reqHeaders); err != nil {
		return nil, err
	}
	if r.ResponseHeaders, err = decodeHeaders(respHeaders); err != nil {
		return nil, err
	}

	r.ResponseTime = time.Duration(responseTime * float64(time.Second))
	r.Attributes = attributes.String
	r.Attributes2 = attributes2.String
	r.ProcessedStatus = processedStatus.String
	r.ExpiresAt = parseNullTime(expiresAt)
	r.ProcessedAt = parseNullTime(processedAt)
	if t, err := store.ParseTime(createdAt); err == nil {
		r.CreatedAt = t
	}
	if t, err := store.ParseTime(updatedAt); err == nil {
		r.UpdatedAt = t
	}
	return &r, nil
}

func encodeHeaders(h http.Header) ([]byte, error) {
	if len(h) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode headers: %w", err)
	}
	return data, nil
}

func decodeHeaders(data []byte) (http.Header, error) {
	if len(data) == 0 {
		return http.Header{}, nil
	}
	var h http.Header
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("decode headers: %w", err)
	}
	return h, nil
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil
	}
	t, err := store.ParseTime(s.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Store = (*SQLStore)(nil)
