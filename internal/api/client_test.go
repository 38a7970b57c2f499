package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/motionfeed/internal/model"
)

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("http://scanner.local/data.json", "test-key")

		if c.dataURL != "http://scanner.local/data.json" {
			t.Errorf("dataURL = %q, want %q", c.dataURL, "http://scanner.local/data.json")
		}
		if c.apiKey != "test-key" {
			t.Errorf("apiKey = %q, want %q", c.apiKey, "test-key")
		}
		if c.httpClient.Timeout != 10*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 10*time.Second)
		}
		if c.maxRetries != 0 {
			t.Errorf("maxRetries = %d, want 0", c.maxRetries)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("http://scanner.local/data.json", "",
			WithTimeout(15*time.Second),
			WithRetries(2, 500*time.Millisecond),
			WithLogger(logger),
		)
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 15*time.Second)
		}
		if c.maxRetries != 2 {
			t.Errorf("maxRetries = %d, want 2", c.maxRetries)
		}
		if c.retryBackoff != 500*time.Millisecond {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, 500*time.Millisecond)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 3 * time.Second}
		c := NewClient("http://scanner.local/data.json", "", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "Not Found"}
	if got, want := err.Error(), "data source error 404: Not Found"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	tests := []struct {
		code     int
		expected bool
	}{
		{500, true},
		{503, true},
		{429, true},
		{400, false},
		{404, false},
		{200, false},
	}
	for _, tt := range tests {
		err := &APIError{StatusCode: tt.code}
		if got := err.IsRetryable(); got != tt.expected {
			t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
		}
	}
}

func TestRequestURL(t *testing.T) {
	c := NewClient("http://scanner.local/data.json?run=7&start=99", "")

	got, err := c.requestURL(url.Values{"start": {"3"}})
	if err != nil {
		t.Fatalf("requestURL: %v", err)
	}

	u, _ := url.Parse(got)
	if u.Query().Get("run") != "7" {
		t.Errorf("run = %q, want 7", u.Query().Get("run"))
	}
	if vs := u.Query()["start"]; len(vs) != 1 || vs[0] != "3" {
		t.Errorf("start = %v, want [3]", vs)
	}
}

func TestDoRequest(t *testing.T) {
	t.Run("headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q, want %q", r.Header.Get("Accept"), "application/json")
			}
			if !strings.HasPrefix(r.Header.Get("User-Agent"), "motionfeed/") {
				t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
			}
			if r.Header.Get("Authorization") != "Bearer test-key" {
				t.Errorf("Authorization header = %q, want %q", r.Header.Get("Authorization"), "Bearer test-key")
			}
			w.Write([]byte(`[]`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "test-key")
		body, err := c.doRequest(context.Background(), http.MethodGet, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `[]` {
			t.Errorf("body = %q, want %q", string(body), `[]`)
		}
	})

	t.Run("4xx error returns APIError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`no such run`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		_, err := c.doRequest(context.Background(), http.MethodGet, nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected *APIError, got %T", err)
		}
		if apiErr.StatusCode != 404 {
			t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
		}
		if !strings.Contains(string(apiErr.Body), "no such run") {
			t.Errorf("Body = %q, want it to contain 'no such run'", string(apiErr.Body))
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.doRequest(ctx, http.MethodGet, nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "context canceled") {
			t.Errorf("error should contain 'context canceled', got %v", err)
		}
	})
}

func TestDoWithRetry(t *testing.T) {
	t.Run("no retries by default", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		_, err := c.doWithRetry(context.Background(), http.MethodGet, nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if strings.Contains(err.Error(), "max retries exceeded") {
			t.Errorf("error = %v, should not mention retries when none are configured", err)
		}
		if got := attempts.Load(); got != 1 {
			t.Errorf("attempts = %d, want 1", got)
		}
	})

	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`[]`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := attempts.Load(); got != 3 {
			t.Errorf("attempts = %d, want 3", got)
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), http.MethodGet, nil); err == nil {
			t.Fatal("expected error, got nil")
		}
		if got := attempts.Load(); got != 1 {
			t.Errorf("attempts = %d, want 1", got)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient(server.URL, "", WithRetries(2, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), http.MethodGet, nil)
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Errorf("error = %v, want 'max retries exceeded'", err)
		}
		// 1 initial + 2 retries
		if got := attempts.Load(); got != 3 {
			t.Errorf("attempts = %d, want 3", got)
		}
	})
}

func TestFetchSince(t *testing.T) {
	t.Run("sends offsets and decodes series", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("start") != "2" {
				t.Errorf("start = %q, want 2", q.Get("start"))
			}
			if got := q["from"]; len(got) != 1 || got[0] != "Rotation:1" {
				t.Errorf("from = %v, want [Rotation:1]", got)
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`[
				{"name": "Mean Displacement", "data": [{"x": 4, "y": 0.456}]},
				{"name": "Rotation", "data": [{"x": 2, "y": 0.1}, {"x": 4, "y": 0.2}]}
			]`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "")
		series, err := c.FetchSince(context.Background(), model.Offsets{
			Start: 2,
			From:  map[string]int{"Rotation": 1},
		})
		if err != nil {
			t.Fatalf("FetchSince: %v", err)
		}

		if len(series) != 2 {
			t.Fatalf("len(series) = %d, want 2", len(series))
		}
		if series[0].Name != "Mean Displacement" {
			t.Errorf("series[0].Name = %q", series[0].Name)
		}
		if got := series[0].Data[0]; got.X != 4 || got.Y != 0.456 {
			t.Errorf("series[0].Data[0] = %+v, want {4 0.456}", got)
		}
		if len(series[1].Data) != 2 {
			t.Errorf("len(series[1].Data) = %d, want 2", len(series[1].Data))
		}
	})

	t.Run("empty body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer server.Close()

		series, err := NewClient(server.URL, "").FetchSince(context.Background(), model.Offsets{})
		if err != nil {
			t.Fatalf("FetchSince: %v", err)
		}
		if len(series) != 0 {
			t.Errorf("len(series) = %d, want 0", len(series))
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not valid json`))
		}))
		defer server.Close()

		_, err := NewClient(server.URL, "").FetchSince(context.Background(), model.Offsets{})
		if err == nil || !strings.Contains(err.Error(), "unmarshal") {
			t.Errorf("error = %v, want unmarshal error", err)
		}
	})
}

func TestClient_DataURL(t *testing.T) {
	c := NewClient("http://scanner.local/data.json", "")
	if got := c.DataURL(); got != "http://scanner.local/data.json" {
		t.Errorf("DataURL() = %q", got)
	}
}
