package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the query orchestrator. A nil *Metrics records nothing.
type Metrics struct {
	LookupsTotal     *prometheus.CounterVec
	LookupDuration   prometheus.Histogram
	RefundsTotal     *prometheus.CounterVec
	AsyncQueueDepth  prometheus.Gauge
	AsyncRejected    prometheus.Counter
	AbandonedRecords prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		LookupsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idlookup_lookups_total",
			Help: "Lookups by outcome (completed, failed, rejected) and reason",
		}, []string{"outcome", "reason"}),
		LookupDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "idlookup_lookup_duration_seconds",
			Help:    "End-to-end duration of billed lookups",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
		RefundsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idlookup_refunds_total",
			Help: "Token refunds by result (ok, failed)",
		}, []string{"result"}),
		AsyncQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "idlookup_async_queue_depth",
			Help: "Async lookups waiting for a worker",
		}),
		AsyncRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idlookup_async_rejected_total",
			Help: "Async lookups rejected because the queue was full",
		}),
		AbandonedRecords: promauto.NewCounter(prometheus.CounterOpts{
			Name: "idlookup_abandoned_records_total",
			Help: "Stale pending records marked failed by the sweeper",
		}),
	}
}

func (m *Metrics) RecordLookup(outcome, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.LookupsTotal.WithLabelValues(outcome, reason).Inc()
	if d > 0 {
		m.LookupDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) RecordRefund(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.RefundsTotal.WithLabelValues("ok").Inc()
		return
	}
	m.RefundsTotal.WithLabelValues("failed").Inc()
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.AsyncQueueDepth.Set(float64(n))
}

func (m *Metrics) IncAsyncRejected() {
	if m == nil {
		return
	}
	m.AsyncRejected.Inc()
}

func (m *Metrics) AddAbandoned(n int) {
	if m == nil {
		return
	}
	m.AbandonedRecords.Add(float64(n))
}
