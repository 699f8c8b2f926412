package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(endpoint string) Config {
	return Config{
		Endpoint:      endpoint,
		APIKey:        "test-key",
		Timeout:       5 * time.Second,
		MaxRetries:    2,
		MaxConcurrent: 4,
		Toolset:       []string{"calendar", "reminders"},
	}
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Error("expected error for missing endpoint")
	}

	client, err := NewClient(Config{Endpoint: "http://localhost"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.config.MaxConcurrent != 10 {
		t.Errorf("expected default concurrency, got %d", client.config.MaxConcurrent)
	}
}

func TestInvokeSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}

		if req.Input != "schedule lunch friday" {
			t.Errorf("unexpected input: %q", req.Input)
		}
		if req.ThreadID != "a1b2c3d4" {
			t.Errorf("unexpected thread id: %q", req.ThreadID)
		}
		if len(req.Tools) != 2 || req.Tools[0] != "calendar" {
			t.Errorf("expected configured toolset, got %v", req.Tools)
		}

		json.NewEncoder(w).Encode(Response{Reply: "Lunch booked for Friday at noon."})
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	resp, err := client.Invoke(context.Background(), &Request{
		Input:    "schedule lunch friday",
		ThreadID: "a1b2c3d4",
	})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}

	if resp.Reply != "Lunch booked for Friday at noon." {
		t.Errorf("unexpected reply: %q", resp.Reply)
	}
}

func TestInvokeEmptyInput(t *testing.T) {
	client, err := NewClient(testConfig("http://localhost:1"))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := client.Invoke(context.Background(), &Request{ThreadID: "t"}); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestInvokeRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "agent unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	var retryHookCalls atomic.Int32
	cfg := testConfig(srv.URL)
	cfg.OnRetry = func() { retryHookCalls.Add(1) }

	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	_, err = client.Invoke(context.Background(), &Request{Input: "hello", ThreadID: "t"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}

	// MaxRetries 2 means 3 attempts total.
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}

	stats := client.GetStats()
	if stats.FailedRequests != 1 || stats.TotalRetries != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	if retryHookCalls.Load() != 2 {
		t.Errorf("expected retry hook to fire twice, got %d", retryHookCalls.Load())
	}
}

func TestInvokeDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "malformed", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client, err := NewClient(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := client.Invoke(context.Background(), &Request{Input: "hi", ThreadID: "t"}); err == nil {
		t.Fatal("expected error for 422 response")
	}

	if calls.Load() != 1 {
		t.Errorf("expected a single attempt for a 4xx error, got %d", calls.Load())
	}
}
