// Package api implements the Query API (§4.H): a read-only HTTP service
// exposing cancellations, enrichment, route aggregates, health, and the
// operator dashboard. The router construction mirrors the teacher's
// internal/tenant/router.go (chi.NewRouter, ordered middleware, mounted
// route groups, custom NotFound) generalized from per-tenant component
// mounting to a fixed set of typed routes, per Design Notes §9's
// "dynamic tool registry… maps to a fixed, typed set of HTTP routes".
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nrod/cancelwatch/internal/apperr"
	"github.com/nrod/cancelwatch/internal/cache"
	"github.com/nrod/cancelwatch/internal/enrichment"
	appmiddleware "github.com/nrod/cancelwatch/internal/middleware"
	"github.com/nrod/cancelwatch/internal/metrics"
	"github.com/nrod/cancelwatch/internal/ratelimit"
	"github.com/nrod/cancelwatch/internal/reqctx"
	"github.com/nrod/cancelwatch/internal/store"
)

// Deps bundles everything route handlers need; assembled once in the
// composition root per §9's "dependency-injection container collapses
// to explicit constructor arguments assembled once".
type Deps struct {
	Cache      *cache.Cache
	Store      *store.Store
	Engine     *enrichment.Engine
	Health     *HealthChecker
	CORSOrigins []string
	DefaultLimiter *ratelimit.Limiter
	HealthLimiter  *ratelimit.Limiter
	RequestTimeout time.Duration
	Log            *zap.Logger
}

// NewRouter assembles the chi.Router for the whole Query API.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(reqctx.Enrich)
	r.Use(cors(d.CORSOrigins))
	r.Use(instrumentation)
	if d.RequestTimeout > 0 {
		r.Use(middleware.Timeout(d.RequestTimeout))
	}
	r.Use(appmiddleware.Security)

	r.Group(func(r chi.Router) {
		if d.DefaultLimiter != nil {
			r.Use(d.DefaultLimiter.Middleware)
		}
		r.Get("/cancellations", d.handleCancellations)
		r.Get("/cancellations/enriched", d.handleEnriched)
		r.Get("/cancellations/{rid}", d.handleCancellationByRID)
		r.Get("/cancellations/by-route", d.handleByRoute)
		r.Get("/cancellations/stats", d.handleStats)
		r.Get("/cancellations/dashboard", d.handleDashboard)
	})

	r.Group(func(r chi.Router) {
		if d.HealthLimiter != nil {
			r.Use(d.HealthLimiter.Middleware)
		}
		r.Get("/health/live", d.handleLive)
		r.Get("/health/ready", d.handleReady)
		r.Get("/health/deep", d.handleDeep)
	})

	r.Handle("/metrics", promhttp.Handler())

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, apperr.NotFound("route not found"))
	})

	return r
}

// instrumentation records metrics.HTTPRequestsTotal and
// metrics.HTTPRequestDuration per route pattern.
func instrumentation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := routePattern(r)
		recordHTTP(route, ww.Status(), time.Since(start))
	})
}

func recordHTTP(route string, status int, d time.Duration) {
	metrics.HTTPRequestsTotal.WithLabelValues(route, statusClass(status)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
		return rc.RoutePattern()
	}
	return r.URL.Path
}

// cors applies a static allowlist per §4.H / §6's cors.origins.
func cors(origins []string) func(http.Handler) http.Handler {
	allowAll := false
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		set[o] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				if allowAll {
					w.Header().Set("Access-Control-Allow-Origin", "*")
				} else if _, ok := set[origin]; ok {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Vary", "Origin")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// parseLimitSince implements §4.H's query constraints: limit defaults to
// 50, clamped to 500; since defaults to epoch; unknown params ignored.
func parseLimitSince(r *http.Request) (int, time.Time, error) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, time.Time{}, apperr.BadRequest("invalid limit parameter")
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}

	since := time.Unix(0, 0).UTC()
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return 0, time.Time{}, apperr.BadRequest("invalid since parameter, expected ISO-8601")
		}
		since = t
	}
	return limit, since, nil
}

func (d Deps) handleCancellations(w http.ResponseWriter, r *http.Request) {
	limit, since, err := parseLimitSince(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Cache.Recent(limit, since))
}

func (d Deps) handleEnriched(w http.ResponseWriter, r *http.Request) {
	limit, since, err := parseLimitSince(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d.Cache.Enriched(limit, since))
}

// handleCancellationByRID supplements §4.H with a direct single-record
// lookup — the base spec lists only collection endpoints, but an
// operator following up on one cancellation (e.g. from a dashboard link)
// has no way to fetch it directly without this route.
func (d Deps) handleCancellationByRID(w http.ResponseWriter, r *http.Request) {
	rid := chi.URLParam(r, "rid")
	for _, c := range d.Cache.Recent(500, time.Unix(0, 0).UTC()) {
		if c.RID == rid {
			writeJSON(w, http.StatusOK, c)
			return
		}
	}
	writeError(w, r, apperr.NotFound("cancellation not found"))
}

func (d Deps) handleByRoute(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.Cache.ByRoute())
}

type statsResponse struct {
	Cache                cache.Stats            `json:"cache"`
	EnrichmentFailures   map[string]int64       `json:"enrichment_failures_by_reason"`
	ScheduleStore        store.Statistics       `json:"schedule_store"`
}

func (d Deps) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := statsResponse{Cache: d.Cache.Stats()}
	if d.Engine != nil {
		stats.EnrichmentFailures = d.Engine.Stats.Snapshot().FailuresByReason
	}
	if d.Store != nil {
		if storeStats, err := d.Store.Statistics(); err == nil {
			stats.ScheduleStore = storeStats
		}
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":      err.Error(),
		"request_id": reqctx.RequestID(r.Context()),
	})
}
