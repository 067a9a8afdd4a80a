package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestBuildURL(t *testing.T) {
	h := NewHTTP(HTTPConfig{Name: "demo", BaseURL: "https://api.example.com/"})

	tests := []struct {
		endpoint, version, want string
	}{
		{"predictions", "v1", "https://api.example.com/v1/predictions"},
		{"/predictions", "/v3/", "https://api.example.com/v3/predictions"},
		{"predictions", "", "https://api.example.com/predictions"},
	}
	for _, tt := range tests {
		if got := h.BuildURL(tt.endpoint, tt.version); got != tt.want {
			t.Errorf("BuildURL(%q, %q) = %q, want %q", tt.endpoint, tt.version, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	h := NewHTTP(HTTPConfig{
		Name:     "demo",
		Required: map[string][]string{"predictions": {"query"}},
	})

	if err := h.Validate("predictions", map[string]any{"query": "test"}); err != nil {
		t.Errorf("valid params: %v", err)
	}
	if err := h.Validate("predictions", map[string]any{"query": ""}); !errors.Is(err, ErrMissingParam) {
		t.Errorf("empty query err = %v, want ErrMissingParam", err)
	}
	if err := h.Validate("other", nil); !errors.Is(err, ErrUnknownEndpoint) {
		t.Errorf("unknown endpoint err = %v, want ErrUnknownEndpoint", err)
	}

	open := NewHTTP(HTTPConfig{Name: "open"})
	if err := open.Validate("anything", nil); err != nil {
		t.Errorf("no requirements configured: %v", err)
	}
}

func TestDoGetWithBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "login" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Query().Get("query") != "test" || r.URL.Query().Get("limit") != "5" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"result":"ok"}`)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{Name: "demo", BaseURL: srv.URL, Login: "login", Password: "secret"})
	req := &Request{Endpoint: "predictions", Version: "v1", Params: map[string]any{"query": "test", "limit": int64(5)}}
	resp, err := h.Do(context.Background(), req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != 200 || string(resp.Body) != `{"result":"ok"}` {
		t.Errorf("resp = %d %s", resp.StatusCode, resp.Body)
	}
	if !strings.HasPrefix(req.URL, srv.URL+"/v1/predictions?") {
		t.Errorf("req.URL = %q", req.URL)
	}
	if req.Method != http.MethodGet {
		t.Errorf("default method = %q", req.Method)
	}
	if got := req.Headers.Get("Authorization"); got != "[redacted]" {
		t.Errorf("recorded Authorization = %q, want redacted", got)
	}
}

func TestDoPostWithBearerToken(t *testing.T) {
	var gotBody []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("Content-Type") != "application/json" {
			w.WriteHeader(http.StatusUnsupportedMediaType)
			return
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		io.WriteString(w, `{"tasks":[]}`)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{Name: "demo", BaseURL: srv.URL, Token: "tok-123"})
	req := &Request{
		Endpoint: "keywords/live",
		Method:   http.MethodPost,
		Body:     []byte(`[{"keyword":"shoes"}]`),
	}
	if _, err := h.Do(context.Background(), req); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if len(gotBody) != 1 || gotBody[0]["keyword"] != "shoes" {
		t.Errorf("server saw body %v", gotBody)
	}
}

func TestDoPostSendsIndexedParamsAsTaskArray(t *testing.T) {
	var raw json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&raw)
		io.WriteString(w, `{"tasks":[]}`)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{Name: "demo", BaseURL: srv.URL})
	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{
			name:   "indexed tasks",
			params: map[string]any{"0": map[string]any{"keywords": []any{"shoes"}, "location_code": 2840}},
			want:   `[{"keywords":["shoes"],"location_code":2840}]`,
		},
		{
			name:   "plain object",
			params: map[string]any{"query": "test", "skip": nil},
			want:   `{"query":"test"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw = nil
			req := &Request{Endpoint: "keywords/live", Method: http.MethodPost, Params: tt.params}
			if _, err := h.Do(context.Background(), req); err != nil {
				t.Fatalf("Do: %v", err)
			}
			if string(raw) != tt.want {
				t.Errorf("server saw %s, want %s", raw, tt.want)
			}
		})
	}
}

func TestDoNon2xxIsRequestError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		io.WriteString(w, `{"status_code":40501,"status_message":"Invalid Field: 'keyword'."}`)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{Name: "demo", BaseURL: srv.URL})
	_, err := h.Do(context.Background(), &Request{Endpoint: "x", Method: http.MethodPost, Params: map[string]any{"a": 1}})

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("err = %v, want *RequestError", err)
	}
	if reqErr.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("StatusCode = %d", reqErr.StatusCode)
	}
	if reqErr.APIMessage != "Invalid Field: 'keyword'." {
		t.Errorf("APIMessage = %q", reqErr.APIMessage)
	}
}

func TestDoUnreachableIsConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	h := NewHTTP(HTTPConfig{Name: "demo", BaseURL: url, Timeout: time.Second})
	_, err := h.Do(context.Background(), &Request{Endpoint: "x"})

	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("err = %v, want *ConnectionError", err)
	}
}

func TestPacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	}))
	defer srv.Close()

	h := NewHTTP(HTTPConfig{Name: "demo", BaseURL: srv.URL, RequestsPerSecond: 20})
	start := time.Now()
	for i := 0; i < 25; i++ {
		if _, err := h.Do(context.Background(), &Request{Endpoint: "x"}); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	// 20 burst, then 5 more at 50ms each
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("25 calls took %v, expected pacing to slow them down", elapsed)
	}
}

func TestAPIMessage(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{`{"status_message":"Ok."}`, "Ok."},
		{`{"message":"bad"}`, "bad"},
		{`{"error":{"message":"nested"}}`, "nested"},
		{`not json`, ""},
		{`{"other":1}`, ""},
	}
	for _, tt := range tests {
		if got := APIMessage([]byte(tt.body)); got != tt.want {
			t.Errorf("APIMessage(%s) = %q, want %q", tt.body, got, tt.want)
		}
	}
}
