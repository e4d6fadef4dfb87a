package ratelimit

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowRespectsPerMinuteLimit(t *testing.T) {
	l := New(BucketDefault, 2)
	ip := net.ParseIP("203.0.113.10")

	if !l.Allow(ip) {
		t.Fatalf("first request should be allowed")
	}
	if !l.Allow(ip) {
		t.Fatalf("second request should be allowed")
	}
	if l.Allow(ip) {
		t.Fatalf("third request should be denied")
	}
}

func TestAllowIsolatesByAddress(t *testing.T) {
	l := New(BucketDefault, 1)
	a := net.ParseIP("203.0.113.10")
	b := net.ParseIP("203.0.113.11")

	if !l.Allow(a) {
		t.Fatalf("first address's first request should be allowed")
	}
	if l.Allow(a) {
		t.Fatalf("first address's second request should be denied")
	}
	if !l.Allow(b) {
		t.Fatalf("second address should have its own allowance")
	}
}

func TestMiddlewareRejectsWithRetryAfter(t *testing.T) {
	l := New(BucketHealth, 1)
	handler := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.RemoteAddr = "198.51.100.5:1234"

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	if first.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header on 429 response")
	}
}

func TestSweepRemovesIdleVisitors(t *testing.T) {
	l := New(BucketDefault, 10)
	l.Allow(net.ParseIP("203.0.113.20"))

	if len(l.visitors) != 1 {
		t.Fatalf("expected one visitor, got %d", len(l.visitors))
	}

	time.Sleep(time.Millisecond)
	l.Sweep(0)

	if len(l.visitors) != 0 {
		t.Fatalf("expected visitor to be swept, got %d remaining", len(l.visitors))
	}
}
