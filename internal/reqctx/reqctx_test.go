package reqctx

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEnrichGeneratesRequestIDWhenAbsent(t *testing.T) {
	var gotID string
	handler := Enrich(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotID == "" {
		t.Fatalf("expected a generated request id")
	}
	if rec.Header().Get("X-Request-Id") != gotID {
		t.Fatalf("X-Request-Id header = %q, want %q", rec.Header().Get("X-Request-Id"), gotID)
	}
}

func TestEnrichPreservesIncomingRequestID(t *testing.T) {
	var gotID string
	handler := Enrich(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = RequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "fixed-id-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if gotID != "fixed-id-123" {
		t.Fatalf("RequestID() = %q, want fixed-id-123", gotID)
	}
}

func TestRequestIDWithoutMiddlewareReturnsEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := RequestID(req.Context()); got != "" {
		t.Fatalf("RequestID() without Enrich = %q, want empty", got)
	}
}

func TestClientIPPrefersXForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	req.RemoteAddr = "192.0.2.1:1234"

	ip := ClientIP(req)
	if ip == nil || ip.String() != "203.0.113.5" {
		t.Fatalf("ClientIP() = %v, want 203.0.113.5", ip)
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.9:4321"

	ip := ClientIP(req)
	if ip == nil || ip.String() != "198.51.100.9" {
		t.Fatalf("ClientIP() = %v, want 198.51.100.9", ip)
	}
}

func TestClientIPReturnsNilWhenUnparseable(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "not-an-address"

	if ip := ClientIP(req); ip != nil {
		t.Fatalf("ClientIP() = %v, want nil", ip)
	}
}
