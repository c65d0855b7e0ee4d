// Package gateway fronts the external identity registry.
//
// A fetch runs through a fixed pipeline, outermost first: fallback, result
// cache, circuit breaker, bounded retry, and finally a single HTTP attempt.
// Fetch therefore never surfaces transport errors; callers inspect the
// result's Fallback reason instead.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"idlookup/internal/identifier"
	"idlookup/internal/lookup"
	"idlookup/internal/lookup/metrics"
	"idlookup/internal/lookup/transcoder"
	"idlookup/pkg/platform/circuit"
)

// HealthProbeIdentifier is the synthetic identifier used by HealthCheck.
const HealthProbeIdentifier = "00100000001"

const breakerName = "identity-registry"

// Config holds upstream addressing, timeouts and the retry policy.
type Config struct {
	BaseURL        string
	Endpoint       string
	ServiceID      string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	Retry          RetryPolicy
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "/"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialBackoff < 0 {
		c.Retry.InitialBackoff = 0
	}
	if c.Retry.Multiplier < 1 {
		c.Retry.Multiplier = 2
	}
}

// Outcome is delivered by FetchAsync.
type Outcome struct {
	Result *lookup.Result
	Err    error
}

// Gateway is safe for concurrent use.
type Gateway struct {
	fetch   fetchFunc
	probe   fetchFunc
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Gateway.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	cache   ResultCache
	breaker *circuit.Breaker
	now     func() time.Time
	sleep   sleepFunc
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithCache enables read-through caching of successful results.
func WithCache(c ResultCache) Option {
	return func(o *options) { o.cache = c }
}

// WithBreaker supplies a shared breaker. Without it the gateway builds one
// with default thresholds.
func WithBreaker(b *circuit.Breaker) Option {
	return func(o *options) { o.breaker = b }
}

func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func withSleep(sleep sleepFunc) Option {
	return func(o *options) { o.sleep = sleep }
}

// New assembles the pipeline.
func New(cfg Config, opts ...Option) (*Gateway, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("gateway base URL is required")
	}
	cfg.applyDefaults()

	o := options{
		logger: slog.Default(),
		cache:  noCache{},
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.breaker == nil {
		o.breaker = circuit.New(breakerName, circuit.WithListener(StateListener(o.logger, o.metrics)))
	}

	tc := transcoder.New(transcoder.WithClock(o.now))
	client := newRegistryClient(cfg, tc, o.metrics.ObserveUpstream)

	g := &Gateway{
		breaker: o.breaker,
		logger:  o.logger,
		metrics: o.metrics,
		tracer:  otel.Tracer("idlookup/internal/lookup/gateway"),
		probe:   client.fetch,
	}
	g.fetch = withFallback(
		withCache(
			withBreaker(
				withRetry(client.fetch, cfg.Retry, o.sleep, o.logger),
				o.breaker),
			o.cache, &singleflight.Group{}, o.logger),
		o.now, g.onFallback)
	return g, nil
}

// Fetch returns the registry result for id. Upstream trouble yields a
// fallback result, not an error; an error means the call was malformed.
func (g *Gateway) Fetch(ctx context.Context, id identifier.Identifier) (*lookup.Result, error) {
	if id.IsZero() {
		return nil, errors.New("gateway: fetch called with an undecomposed identifier")
	}
	ctx, span := g.tracer.Start(ctx, "gateway.Fetch",
		trace.WithAttributes(attribute.String("identifier.masked", id.Masked())))
	defer span.End()

	res, err := g.fetch(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Bool("result.success", res.Success),
		attribute.String("result.fallback", string(res.Fallback)),
	)
	return res, nil
}

// FetchAsync runs Fetch on its own goroutine. The channel receives exactly
// one Outcome and is then closed.
func (g *Gateway) FetchAsync(ctx context.Context, id identifier.Identifier) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res, err := g.Fetch(ctx, id)
		out <- Outcome{Result: res, Err: err}
	}()
	return out
}

// HealthCheck calls the registry once for the probe identifier, bypassing
// cache, breaker and fallback. Any well-formed answer counts as healthy.
func (g *Gateway) HealthCheck(ctx context.Context) bool {
	id := identifier.MustDecompose(HealthProbeIdentifier)
	_, err := g.probe(ctx, id)
	healthy := err == nil
	g.metrics.SetUpstreamHealthy(healthy)
	if healthy {
		g.logger.InfoContext(ctx, "upstream health probe succeeded", "breaker", g.breaker.State().String())
	} else {
		g.logger.WarnContext(ctx, "upstream health probe failed",
			"category", CategoryOf(err),
			"breaker", g.breaker.State().String(),
			"error", err,
		)
	}
	return healthy
}

// BreakerState reports the upstream circuit position.
func (g *Gateway) BreakerState() circuit.State {
	return g.breaker.State()
}

func (g *Gateway) onFallback(ctx context.Context, id identifier.Identifier, reason lookup.FallbackReason, err error) {
	g.metrics.RecordFallback(string(reason))
	g.logger.WarnContext(ctx, "upstream fallback",
		"identifier", id.Masked(),
		"reason", string(reason),
		"category", CategoryOf(err),
		"error", err,
	)
}

// StateListener logs breaker transitions and mirrors them into metrics.
func StateListener(logger *slog.Logger, m *metrics.Metrics) circuit.Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return func(name string, from, to circuit.State) {
		logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		m.RecordBreakerTransition(to.String(), int(to))
	}
}
