package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the upstream gateway and its result caches. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
	UpstreamRequests  *prometheus.CounterVec
	UpstreamLatency   prometheus.Histogram
	FallbacksTotal    *prometheus.CounterVec
	BreakerState      prometheus.Gauge
	BreakerTransition *prometheus.CounterVec
	UpstreamHealthy   prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idlookup_result_cache_hits_total",
			Help: "Result cache hits by backend",
		}, []string{"backend"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idlookup_result_cache_misses_total",
			Help: "Result cache misses by backend",
		}, []string{"backend"}),
		UpstreamRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idlookup_upstream_requests_total",
			Help: "Upstream registry attempts by outcome",
		}, []string{"outcome"}),
		UpstreamLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "idlookup_upstream_request_duration_seconds",
			Help:    "Duration of single upstream registry attempts",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15, 30},
		}),
		FallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idlookup_gateway_fallbacks_total",
			Help: "Synthesized fallback results by reason",
		}, []string{"reason"}),
		BreakerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "idlookup_circuit_breaker_state",
			Help: "Upstream breaker state (0 closed, 1 open, 2 half-open)",
		}),
		BreakerTransition: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idlookup_circuit_breaker_transitions_total",
			Help: "Upstream breaker transitions by target state",
		}, []string{"to"}),
		UpstreamHealthy: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "idlookup_upstream_healthy",
			Help: "1 when the last upstream health probe succeeded",
		}),
	}
}

func (m *Metrics) RecordCacheHit(backend string) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(backend).Inc()
}

func (m *Metrics) RecordCacheMiss(backend string) {
	if m == nil {
		return
	}
	m.CacheMisses.WithLabelValues(backend).Inc()
}

func (m *Metrics) ObserveUpstream(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(outcome).Inc()
	m.UpstreamLatency.Observe(d.Seconds())
}

func (m *Metrics) RecordFallback(reason string) {
	if m == nil {
		return
	}
	m.FallbacksTotal.WithLabelValues(reason).Inc()
}

// RecordBreakerTransition sets the state gauge; state follows circuit.State ordering.
func (m *Metrics) RecordBreakerTransition(to string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.Set(float64(state))
	m.BreakerTransition.WithLabelValues(to).Inc()
}

func (m *Metrics) SetUpstreamHealthy(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.UpstreamHealthy.Set(1)
		return
	}
	m.UpstreamHealthy.Set(0)
}
