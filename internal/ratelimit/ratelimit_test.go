package ratelimit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newRequest(t *testing.T, method, url string, body io.Reader) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestRetryAfterRateLimit(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{MaxRetries: 3, BaseDelay: time.Millisecond})
	resp, err := client.Do(newRequest(t, http.MethodGet, server.URL, nil))
	if err != nil {
		t.Fatalf("expected success after retry, got %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if got := atomic.LoadInt32(&attempts); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestMaxRetriesExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "0")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	stats := NewStats()
	client := NewClient(Config{MaxRetries: 2, BaseDelay: time.Millisecond, Stats: stats, Backend: "supabase"})

	_, err := client.Do(newRequest(t, http.MethodGet, server.URL, nil))
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	var rlErr *RateLimitError
	if !errors.As(err, &rlErr) {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
	if !strings.Contains(rlErr.Error(), "supabase rate limit exceeded") {
		t.Errorf("unexpected error message: %v", rlErr)
	}
	if stats.RateLimitCount() != 3 {
		t.Errorf("expected 3 recorded rate limits, got %d", stats.RateLimitCount())
	}
}

func TestHeadersSurviveRetry(t *testing.T) {
	var attempts int32
	var lastAuth string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		lastAuth = r.Header.Get("Authorization")
		mu.Unlock()
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{MaxRetries: 2, BaseDelay: time.Millisecond})
	req := newRequest(t, http.MethodGet, server.URL, nil)
	req.Header.Set("Authorization", "Bearer secret-token")

	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if lastAuth != "Bearer secret-token" {
		t.Errorf("retried request lost its auth header, got %q", lastAuth)
	}
}

func TestBodyResentOnRetry(t *testing.T) {
	var attempts int32
	var bodies []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(data))
		mu.Unlock()
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{MaxRetries: 2, BaseDelay: time.Millisecond})
	resp, err := client.Do(newRequest(t, http.MethodPost, server.URL, strings.NewReader(`{"title":"x"}`)))
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 2 {
		t.Fatalf("expected 2 request bodies, got %d", len(bodies))
	}
	for i, body := range bodies {
		if body != `{"title":"x"}` {
			t.Errorf("attempt %d body = %q", i, body)
		}
	}
}

func TestNon429Passthrough(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(Config{MaxRetries: 3, BaseDelay: time.Millisecond})
	resp, err := client.Do(newRequest(t, http.MethodGet, server.URL, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Server errors are not retried, only 429s are.
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("expected 500 passed through, got %d", resp.StatusCode)
	}
}

func TestContextCancellationDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(Config{MaxRetries: 5, BaseDelay: 10 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := newRequest(t, http.MethodGet, server.URL, nil).WithContext(ctx)

	start := time.Now()
	_, err := client.Do(req)
	if err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("cancellation took too long: %v", elapsed)
	}
}

func TestCalculateBackoff(t *testing.T) {
	client := NewClient(Config{BaseDelay: time.Second, MaxDelay: 8 * time.Second})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 8 * time.Second}, // capped at MaxDelay
	}
	for _, tt := range tests {
		if got := client.calculateBackoff(tt.attempt, nil); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	retryAfter := 3 * time.Second
	if got := client.calculateBackoff(0, &retryAfter); got != retryAfter {
		t.Errorf("Retry-After should win, got %v", got)
	}
}

func TestJitterStaysInRange(t *testing.T) {
	client := NewClient(Config{BaseDelay: time.Second, MaxDelay: 32 * time.Second, EnableJitter: true})

	for i := 0; i < 100; i++ {
		delay := client.calculateBackoff(1, nil)
		if delay < 1600*time.Millisecond || delay > 2400*time.Millisecond {
			t.Fatalf("jittered delay %v outside ±20%% of 2s", delay)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  *time.Duration
	}{
		{"empty", "", nil},
		{"seconds", "5", durationPtr(5 * time.Second)},
		{"zero seconds", "0", durationPtr(0)},
		{"negative", "-1", nil},
		{"garbage", "soon", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseRetryAfter(tt.value)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("ParseRetryAfter(%q) = %v, want %v", tt.value, got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.value, *got, *tt.want)
			}
		})
	}

	// HTTP-date format resolves to roughly the interval until that date.
	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	got := ParseRetryAfter(future)
	if got == nil || *got > 11*time.Second {
		t.Errorf("HTTP-date Retry-After parsed to %v", got)
	}

	past := time.Now().Add(-10 * time.Second).UTC().Format(http.TimeFormat)
	if got := ParseRetryAfter(past); got == nil || *got != 0 {
		t.Errorf("past HTTP-date should clamp to 0, got %v", got)
	}
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(Config{})

	if client.maxRetries != 5 {
		t.Errorf("default maxRetries = %d, want 5", client.maxRetries)
	}
	if client.baseDelay != time.Second {
		t.Errorf("default baseDelay = %v, want 1s", client.baseDelay)
	}
	if client.maxDelay != 32*time.Second {
		t.Errorf("default maxDelay = %v, want 32s", client.maxDelay)
	}
	if client.httpClient == nil {
		t.Error("default transport should be set")
	}
}

func TestStatsThreadSafety(t *testing.T) {
	stats := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				stats.RecordRateLimit()
			}
		}()
	}
	wg.Wait()

	if got := stats.RateLimitCount(); got != 1000 {
		t.Errorf("expected 1000 events, got %d", got)
	}
	if stats.LastRateLimitTime().IsZero() {
		t.Error("last rate limit time should be set")
	}
}
