package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions       *prometheus.CounterVec
	Degraded        prometheus.Gauge
	LimiterFailures prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idlookup_ratelimit_decisions_total",
			Help: "Query rate limit decisions by outcome (allowed, denied)",
		}, []string{"outcome"}),
		Degraded: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "idlookup_ratelimit_degraded",
			Help: "1 while the shared limiter is bypassed for the in-process fallback",
		}),
		LimiterFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idlookup_ratelimit_limiter_failures_total",
			Help: "Errors returned by the shared limiter backend",
		}),
	}
}

func (m *Metrics) RecordDecision(allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	m.Decisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if m == nil {
		return
	}
	v := 0.0
	if degraded {
		v = 1
	}
	m.Degraded.Set(v)
}

func (m *Metrics) IncrementLimiterFailures() {
	if m == nil {
		return
	}
	m.LimiterFailures.Inc()
}
