package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idlookup/pkg/platform/circuit"
)

type stubProbe struct {
	healthy bool
	state   circuit.State
	calls   int
}

func (s *stubProbe) HealthCheck(context.Context) bool { s.calls++; return s.healthy }
func (s *stubProbe) BreakerState() circuit.State      { return s.state }

func serveHealth(t *testing.T, h *healthReporter) (int, healthResponse) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr.Code, resp
}

func TestHealthReporter(t *testing.T) {
	t.Run("unknown before the first probe", func(t *testing.T) {
		h := newHealthReporter(&stubProbe{state: circuit.StateClosed}, nil)
		code, resp := serveHealth(t, h)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "unknown", resp.Upstream.Status)
		assert.Equal(t, "closed", resp.Upstream.Breaker)
		assert.Nil(t, resp.CheckedAt)
	})

	t.Run("failed probe degrades without failing", func(t *testing.T) {
		p := &stubProbe{healthy: false, state: circuit.StateClosed}
		h := newHealthReporter(p, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		h.Run(ctx, 0, slog.New(slog.NewTextHandler(io.Discard, nil)))

		code, resp := serveHealth(t, h)
		assert.Equal(t, 1, p.calls)
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "down", resp.Upstream.Status)
		assert.NotNil(t, resp.CheckedAt)
	})

	t.Run("open breaker degrades", func(t *testing.T) {
		h := newHealthReporter(&stubProbe{healthy: true, state: circuit.StateOpen}, nil)
		h.probe(context.Background())
		_, resp := serveHealth(t, h)
		assert.Equal(t, "degraded", resp.Status)
		assert.Equal(t, "up", resp.Upstream.Status)
		assert.Equal(t, "open", resp.Upstream.Breaker)
	})

	t.Run("local dependency down is unavailable", func(t *testing.T) {
		h := newHealthReporter(&stubProbe{healthy: true, state: circuit.StateClosed}, map[string]pinger{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		})
		code, resp := serveHealth(t, h)
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "unavailable", resp.Status)
		assert.Equal(t, "down", resp.Deps["redis"])
	})
}
