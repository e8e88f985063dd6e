package clients

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func fastRetryConfig(maxRetries int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxRetries = maxRetries
	cfg.BaseDelay = 1 * time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestDoWithRetry_SucceedsWithoutRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(200)
	}))
	defer server.Close()

	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := DoWithRetry(context.Background(), server.Client(), req, fastRetryConfig(3))
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("expected 200 without error; got %v %d", err, resp.StatusCode)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", attempts)
	}
}

func TestDoWithRetry_RetriesOn429(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(200)
	}))
	defer server.Close()

	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := DoWithRetry(context.Background(), server.Client(), req, fastRetryConfig(3))
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("expected eventual 200; got %v %d", err, resp.StatusCode)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoWithRetry_ExhaustsRetriesOn503(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	cfg := fastRetryConfig(2)
	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := DoWithRetry(context.Background(), server.Client(), req, cfg)
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected final 503, got %d", resp.StatusCode)
	}
	if attempts != cfg.MaxRetries+1 {
		t.Fatalf("expected %d attempts, got %d", cfg.MaxRetries+1, attempts)
	}
}

func TestDoWithRetry_DoesNotRetryTerminalStatus(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	req, _ := http.NewRequest("GET", server.URL, nil)
	resp, err := DoWithRetry(context.Background(), server.Client(), req, fastRetryConfig(3))
	if err != nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected immediate 403; got %v %d", err, resp.StatusCode)
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt for terminal status, got %d", attempts)
	}
}

func TestDoWithRetry_RebuildsBodyPerAttempt(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		n, _ := r.Body.Read(buf)
		bodies = append(bodies, string(buf[:n]))
		if len(bodies) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(200)
	}))
	defer server.Close()

	req, _ := http.NewRequest("POST", server.URL, bytes.NewReader([]byte(`{"q":"acme"}`)))
	resp, err := DoWithRetry(context.Background(), server.Client(), req, fastRetryConfig(3))
	if err != nil || resp.StatusCode != 200 {
		t.Fatalf("expected eventual 200; got %v %d", err, resp.StatusCode)
	}
	for i, body := range bodies {
		if body != `{"q":"acme"}` {
			t.Fatalf("attempt %d saw body %q", i, body)
		}
	}
}

func TestDoWithRetry_RespectsContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	cfg := DefaultRetryConfig()
	cfg.BaseDelay = 200 * time.Millisecond
	req, _ := http.NewRequest("GET", server.URL, nil)
	_, err := DoWithRetry(ctx, server.Client(), req, cfg)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline exceeded, got %v", err)
	}
}

func TestBackoffWindow(t *testing.T) {
	base := 100 * time.Millisecond
	max := 5 * time.Second
	for attempt := 0; attempt < 5; attempt++ {
		exp := time.Duration(float64(base) * float64(uint(1)<<uint(attempt)))
		if exp > max {
			exp = max
		}
		for i := 0; i < 20; i++ {
			got := Backoff(base, max, attempt)
			if got < exp || got >= exp+maxJitter {
				t.Fatalf("attempt %d: backoff %v outside [%v, %v)", attempt, got, exp, exp+maxJitter)
			}
		}
	}
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	base := 1 * time.Second
	max := 2 * time.Second
	got := Backoff(base, max, 10)
	if got < max || got >= max+maxJitter {
		t.Fatalf("expected capped backoff in [%v, %v), got %v", max, max+maxJitter, got)
	}
}
