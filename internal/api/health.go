package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/nrod/cancelwatch/internal/store"
	"github.com/nrod/cancelwatch/internal/stomp"
)

// CheckStatus is one component's health verdict.
type CheckStatus struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Detail  string `json:"detail,omitempty"`
}

// HealthChecker implements §4.H's /health/{live,ready,deep} trio, caching
// results for health.cache_ttl_ms so repeated probes within that window
// don't each hit the STOMP client and the store.
type HealthChecker struct {
	stomp         *stomp.Client
	store         *store.Store
	checkTimeout  time.Duration
	cacheTTL      time.Duration

	mu       sync.Mutex
	cachedAt time.Time
	cached   []CheckStatus
}

// NewHealthChecker wires the STOMP client and Schedule Store into checks.
func NewHealthChecker(s *stomp.Client, st *store.Store, checkTimeout, cacheTTL time.Duration) *HealthChecker {
	return &HealthChecker{stomp: s, store: st, checkTimeout: checkTimeout, cacheTTL: cacheTTL}
}

// Deep runs (or returns cached) per-check results.
func (h *HealthChecker) Deep() []CheckStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cacheTTL > 0 && time.Since(h.cachedAt) < h.cacheTTL && h.cached != nil {
		return h.cached
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.checkTimeout)
	defer cancel()

	checks := []CheckStatus{h.checkStomp(), h.checkStore(ctx)}
	h.cached = checks
	h.cachedAt = time.Now()
	return checks
}

func (h *HealthChecker) checkStomp() CheckStatus {
	if h.stomp == nil {
		return CheckStatus{Name: "stomp", OK: false, Detail: "not configured"}
	}
	state := h.stomp.State()
	return CheckStatus{
		Name:   "stomp",
		OK:     state == stomp.Subscribed,
		Detail: state.String(),
	}
}

func (h *HealthChecker) checkStore(ctx context.Context) CheckStatus {
	if h.store == nil {
		return CheckStatus{Name: "store", OK: false, Detail: "not configured"}
	}
	if err := h.store.Ping(ctx); err != nil {
		return CheckStatus{Name: "store", OK: false, Detail: err.Error()}
	}
	return CheckStatus{Name: "store", OK: true}
}

// Ready reports whether the service is ready to serve: STOMP subscribed
// and the store reachable (§4.H).
func (h *HealthChecker) Ready() (bool, []CheckStatus) {
	checks := h.Deep()
	ready := true
	for _, c := range checks {
		if !c.OK {
			ready = false
		}
	}
	return ready, checks
}

func (d Deps) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "live"})
}

func (d Deps) handleReady(w http.ResponseWriter, r *http.Request) {
	if d.Health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ready, checks := d.Health.Ready()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"ready": ready, "checks": checks})
}

func (d Deps) handleDeep(w http.ResponseWriter, r *http.Request) {
	if d.Health == nil {
		writeJSON(w, http.StatusOK, []CheckStatus{})
		return
	}
	writeJSON(w, http.StatusOK, d.Health.Deep())
}
