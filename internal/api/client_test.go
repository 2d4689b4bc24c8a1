package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://issuer.example.com/", "test-key")

		if c.baseURL != "https://issuer.example.com" {
			t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
		}
		if c.apiKey != "test-key" {
			t.Errorf("apiKey = %q, want %q", c.apiKey, "test-key")
		}
		if c.httpClient.Timeout != DefaultTimeout {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, DefaultTimeout)
		}
		if c.maxRetries != DefaultMaxRetries {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, DefaultMaxRetries)
		}
		if c.retryBackoff != DefaultRetryBackoff {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, DefaultRetryBackoff)
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		c := NewClient("https://issuer.example.com", "key",
			WithTimeout(15*time.Second),
			WithRetries(10, 20*time.Millisecond),
			WithLogger(logger),
		)
		if c.httpClient.Timeout != 15*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 15*time.Second)
		}
		if c.maxRetries != 10 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 10)
		}
		if c.retryBackoff != 20*time.Millisecond {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, 20*time.Millisecond)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
	})

	t.Run("nil logger keeps default", func(t *testing.T) {
		c := NewClient("https://issuer.example.com", "", WithLogger(nil))
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with custom HTTP client", func(t *testing.T) {
		customClient := &http.Client{Timeout: 10 * time.Second}
		c := NewClient("https://issuer.example.com", "", WithHTTPClient(customClient))
		if c.httpClient != customClient {
			t.Error("custom HTTP client not set")
		}
	})
}

func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 403, Message: "Forbidden"}
	if got, want := err.Error(), "token issuer error 403: Forbidden"; got != want {
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
		{401, false},
		{404, false},
		{499, false},
	}
	for _, tt := range tests {
		err := &APIError{StatusCode: tt.code}
		if got := err.IsRetryable(); got != tt.expected {
			t.Errorf("IsRetryable() for status %d = %v, want %v", tt.code, got, tt.expected)
		}
	}
}

func TestSend_Headers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept header = %q, want %q", r.Header.Get("Accept"), "application/json")
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization header = %q, want %q", r.Header.Get("Authorization"), "Bearer test-key")
		}
		if !strings.HasPrefix(r.Header.Get("User-Agent"), "wire-go/") {
			t.Errorf("User-Agent = %q, want wire-go/ prefix", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "test-key")
	if _, err := c.send(context.Background(), http.MethodGet, "/test", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSendWithRetry(t *testing.T) {
	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 5*time.Millisecond))
		body, err := c.sendWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("body = %q", string(body))
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("does not retry on 401", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(3, 5*time.Millisecond))
		_, err := c.sendWithRetry(context.Background(), http.MethodGet, "/test", nil)

		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
			t.Fatalf("err = %v, want 401 APIError", err)
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("max retries exceeded", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(2, 5*time.Millisecond))
		_, err := c.sendWithRetry(context.Background(), http.MethodGet, "/test", nil)
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Fatalf("err = %v, want max retries exceeded", err)
		}
		// 1 initial + 2 retries
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("context cancellation during retry", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		c := NewClient(server.URL, "key", WithRetries(5, 50*time.Millisecond))
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
		defer cancel()

		_, err := c.sendWithRetry(ctx, http.MethodGet, "/test", nil)
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if !strings.Contains(err.Error(), "context") {
			t.Errorf("error should be context-related, got %v", err)
		}
	})
}

func TestSendWithRetry_IssuerReason(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"issuer busy"}`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"channel not allowed"}`))
	}))
	defer server.Close()

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	c := NewClient(server.URL, "key", WithRetries(3, 5*time.Millisecond), WithLogger(logger))

	_, err := c.sendWithRetry(context.Background(), http.MethodGet, "/token/subscription", nil)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusForbidden || apiErr.Message != "channel not allowed" {
		t.Errorf("APIError = %d %q, want 403 %q", apiErr.StatusCode, apiErr.Message, "channel not allowed")
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}

	out := logs.String()
	for _, want := range []string{"token issuer request failed, retrying", "path=/token/subscription", "status=429", `reason="issuer busy"`, "attempt=1"} {
		if !strings.Contains(out, want) {
			t.Errorf("retry log missing %q: %s", want, out)
		}
	}
}

func TestAPIError_RetryAfter(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusServiceUnavailable,
		Header:     http.Header{"Retry-After": []string{"3"}},
	}
	apiErr := newAPIError(resp, []byte("upstream down"))

	if apiErr.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", apiErr.RetryAfter)
	}
	if apiErr.Message != "Service Unavailable" {
		t.Errorf("Message = %q, want status text for a non-JSON body", apiErr.Message)
	}
}

func TestConnectionToken(t *testing.T) {
	t.Run("successful response", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/token/connection" {
				t.Errorf("path = %q, want /token/connection", r.URL.Path)
			}
			w.Write([]byte(`{"token":"conn-token","expires_at":1700000000}`))
		}))
		defer server.Close()

		resp, err := NewClient(server.URL, "key").ConnectionToken(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Token != "conn-token" {
			t.Errorf("Token = %q, want %q", resp.Token, "conn-token")
		}
		if resp.ExpiresAt != 1700000000 {
			t.Errorf("ExpiresAt = %d, want 1700000000", resp.ExpiresAt)
		}
	})

	t.Run("empty token", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		if _, err := NewClient(server.URL, "key").ConnectionToken(context.Background()); err == nil {
			t.Fatal("expected error for empty token")
		}
	})
}

func TestChannelToken(t *testing.T) {
	t.Run("explicit channel", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/token/subscription" {
				t.Errorf("path = %q, want /token/subscription", r.URL.Path)
			}
			if got := r.URL.Query().Get("channel"); got != "lobby" {
				t.Errorf("channel = %q, want lobby", got)
			}
			w.Write([]byte(`{"token":"sub-token"}`))
		}))
		defer server.Close()

		resp, err := NewClient(server.URL, "key").ChannelToken(context.Background(), "lobby")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Channel != "lobby" {
			t.Errorf("Channel = %q, want lobby (request channel used when absent)", resp.Channel)
		}
		if resp.Token != "sub-token" {
			t.Errorf("Token = %q, want sub-token", resp.Token)
		}
	})

	t.Run("issuer assigned channel", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.RawQuery != "" {
				t.Errorf("query = %q, want empty", r.URL.RawQuery)
			}
			w.Write([]byte(`{"channel":"room:42","token":"t"}`))
		}))
		defer server.Close()

		resp, err := NewClient(server.URL, "key").ChannelToken(context.Background(), "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if resp.Channel != "room:42" {
			t.Errorf("Channel = %q, want room:42", resp.Channel)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{not json`))
		}))
		defer server.Close()

		_, err := NewClient(server.URL, "key").ChannelToken(context.Background(), "lobby")
		if err == nil || !strings.Contains(err.Error(), "decode issuer response") {
			t.Fatalf("err = %v, want decode error", err)
		}
	})
}
