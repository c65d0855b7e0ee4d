package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"idlookup/pkg/platform/circuit"
	"idlookup/pkg/platform/httputil"
)

const pingTimeout = 2 * time.Second

type pinger func(ctx context.Context) error

type upstreamProbe interface {
	HealthCheck(ctx context.Context) bool
	BreakerState() circuit.State
}

// healthReporter serves /health from the last periodic upstream probe, so
// the endpoint never waits on the registry.
type healthReporter struct {
	upstream upstreamProbe
	deps     map[string]pinger

	mu        sync.RWMutex
	healthy   bool
	probed    bool
	checkedAt time.Time
}

type healthResponse struct {
	Status    string            `json:"status"`
	Upstream  upstreamHealth    `json:"upstream"`
	Deps      map[string]string `json:"dependencies,omitempty"`
	CheckedAt *time.Time        `json:"checked_at,omitempty"`
}

type upstreamHealth struct {
	Status  string `json:"status"`
	Breaker string `json:"breaker"`
}

func newHealthReporter(upstream upstreamProbe, deps map[string]pinger) *healthReporter {
	return &healthReporter{upstream: upstream, deps: deps}
}

// Run probes once immediately, then every interval until ctx is done.
func (h *healthReporter) Run(ctx context.Context, interval time.Duration, log *slog.Logger) {
	h.probe(ctx)
	if interval <= 0 {
		log.Info("periodic upstream health probe disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.probe(ctx)
		}
	}
}

func (h *healthReporter) probe(ctx context.Context) {
	healthy := h.upstream.HealthCheck(ctx)
	h.mu.Lock()
	h.healthy = healthy
	h.probed = true
	h.checkedAt = time.Now()
	h.mu.Unlock()
}

// ServeHTTP reports 503 only when a local dependency is down; a failing
// registry degrades lookups to fallbacks but the service still answers.
func (h *healthReporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Upstream: upstreamHealth{Status: "unknown", Breaker: h.upstream.BreakerState().String()},
	}

	h.mu.RLock()
	if h.probed {
		resp.Upstream.Status = "down"
		if h.healthy {
			resp.Upstream.Status = "up"
		}
		at := h.checkedAt
		resp.CheckedAt = &at
	}
	h.mu.RUnlock()

	if resp.Upstream.Status == "down" || resp.Upstream.Breaker != circuit.StateClosed.String() {
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if len(h.deps) > 0 {
		resp.Deps = make(map[string]string, len(h.deps))
		ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
		defer cancel()
		for name, ping := range h.deps {
			if err := ping(ctx); err != nil {
				resp.Deps[name] = "down"
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Deps[name] = "up"
		}
	}
	httputil.WriteJSON(w, status, resp)
}
