// Package ratelimit implements the per-source-address token buckets the
// Query API enforces (§4.H: "per-source-address token bucket; defaults
// health=60/min, others=120/min. Over-limit => 429 with Retry-After").
// It wraps golang.org/x/time/rate the way the teacher's packages wrap
// other golang.org/x/ libraries: a small named registry of limiters
// keyed by caller address, trimmed lazily to bound memory.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nrod/cancelwatch/internal/metrics"
	"github.com/nrod/cancelwatch/internal/reqctx"
)

// Bucket names the spec's two rate-limit classes.
type Bucket string

const (
	BucketDefault Bucket = "default"
	BucketHealth  Bucket = "health"
)

// Limiter is a named per-IP token-bucket limiter. PerMinute is the
// steady-state rate; burst defaults to the same value so a client can
// spend its whole minute's allowance immediately, matching a plain
// token bucket rather than a smoothed one.
type Limiter struct {
	perMinute int
	bucket    Bucket

	mu       sync.Mutex
	visitors map[string]*visitor
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New returns a Limiter allowing perMinute requests per source address.
func New(bucket Bucket, perMinute int) *Limiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &Limiter{
		perMinute: perMinute,
		bucket:    bucket,
		visitors:  make(map[string]*visitor),
	}
}

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	v, ok := l.visitors[key]
	if !ok {
		every := time.Minute / time.Duration(l.perMinute)
		v = &visitor{limiter: rate.NewLimiter(rate.Every(every), l.perMinute)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter
}

// Sweep drops visitor entries untouched for longer than idle; callers
// should run this periodically (e.g. from cmd/cancelwatchd's background
// ticker) so long-lived processes don't accumulate one limiter per
// transient client.
func (l *Limiter) Sweep(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	for k, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, k)
		}
	}
}

// Allow reports whether the request identified by ip may proceed.
func (l *Limiter) Allow(ip net.IP) bool {
	key := "unknown"
	if ip != nil {
		key = ip.String()
	}
	return l.get(key).Allow()
}

// Middleware enforces the limiter, responding 429 with Retry-After when
// exceeded, and incrementing metrics.RateLimitedTotal by bucket.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := reqctx.ClientIP(r)
		if !l.Allow(ip) {
			metrics.RateLimitedTotal.WithLabelValues(string(l.bucket)).Inc()
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(l.perMinute)))
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func retryAfterSeconds(perMinute int) int {
	secs := 60 / perMinute
	if secs < 1 {
		secs = 1
	}
	return secs
}
