// Package reqctx attaches lightweight per-request metadata — the caller's
// source address and a correlation id — to the request context.  The
// request id is echoed in the X-Request-Id response header and included
// in every JSON error body the Query API writes, so an operator can match
// a client-reported failure to a single request (see §7's "every error
// log line carries… the correlating rid or request_id").
package reqctx

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Info is attached to the request context by Enrich.
type Info struct {
	RemoteAddr net.IP
	RequestID  string
	Timestamp  time.Time
}

type ctxKey struct{}

// Enrich wraps an http.Handler, attaches *Info, and forwards.  Insert
// this middleware early, directly after the panic recoverer, so every
// downstream handler and log line can see the request id.
func Enrich(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		info := &Info{
			RemoteAddr: ClientIP(r),
			RequestID:  id,
			Timestamp:  time.Now().UTC(),
		}
		w.Header().Set("X-Request-Id", id)
		ctx := context.WithValue(r.Context(), ctxKey{}, info)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext returns the *Info previously stored by Enrich, or nil if
// the middleware has not run.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(ctxKey{}).(*Info)
	return v
}

// RequestID is a convenience accessor returning "" when Enrich has not run.
func RequestID(ctx context.Context) string {
	if info := FromContext(ctx); info != nil {
		return info.RequestID
	}
	return ""
}

// ClientIP extracts the leftmost parseable address from X-Forwarded-For or
// X-Real-IP, falling back to r.RemoteAddr.  Used both for logging and as
// the rate limiter's bucket key.
func ClientIP(r *http.Request) net.IP {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		for _, part := range strings.Split(xff, ",") {
			if ip := net.ParseIP(strings.TrimSpace(part)); ip != nil {
				return ip
			}
		}
	}

	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		if ip := net.ParseIP(strings.TrimSpace(xrip)); ip != nil {
			return ip
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}

	return nil
}
