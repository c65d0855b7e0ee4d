// Package middleware enforces the per-caller lookup limit.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"idlookup/internal/ratelimit/metrics"
	"idlookup/internal/ratelimit/models"
	"idlookup/pkg/platform/circuit"
	"idlookup/pkg/platform/httputil"
	"idlookup/pkg/requestcontext"
)

const (
	defaultLimit  = 10
	defaultWindow = time.Minute
)

// Limiter is a sliding-window bucket store.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*models.Result, error)
}

// Middleware checks the primary limiter and, while its breaker is open or
// it errors, an in-process fallback. With no fallback it fails open.
type Middleware struct {
	limiter  Limiter
	fallback Limiter
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
	limit    int
	window   time.Duration
	disabled bool
}

type Option func(*Middleware)

// WithLimit sets queries allowed per window.
func WithLimit(limit int, window time.Duration) Option {
	return func(m *Middleware) {
		if limit > 0 {
			m.limit = limit
		}
		if window > 0 {
			m.window = window
		}
	}
}

// WithFallback sets the limiter used while the primary is unavailable.
func WithFallback(fallback Limiter, breaker *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.fallback = fallback
		m.breaker = breaker
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(mw *Middleware) { mw.metrics = m }
}

// WithDisabled disables rate limiting entirely (for testing/demo mode).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) {
		m.disabled = disabled
	}
}

func New(limiter Limiter, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		limiter: limiter,
		logger:  logger,
		limit:   defaultLimit,
		window:  defaultWindow,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// QueryLimit limits lookups per authenticated caller.
func (m *Middleware) QueryLimit() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			callerID := requestcontext.CallerID(ctx)
			if m.disabled || callerID == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, degraded, err := m.check(ctx, models.QueryKey(callerID))
			if degraded {
				w.Header().Set("X-RateLimit-Status", "degraded")
			}
			if err != nil || result == nil {
				m.logger.ErrorContext(ctx, "rate limit check failed, allowing request",
					"error", err,
					"caller_id", callerID,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			addRateLimitHeaders(w, result)
			m.metrics.RecordDecision(result.Allowed)
			if !result.Allowed {
				m.logger.InfoContext(ctx, "query rate limit exceeded",
					"caller_id", callerID,
					"retry_after", result.RetryAfter,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeRateLimitExceeded(w, result)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// check reports degraded when the answer came from the fallback.
func (m *Middleware) check(ctx context.Context, key string) (*models.Result, bool, error) {
	if m.breaker != nil && !m.breaker.Allow() {
		m.metrics.SetDegraded(true)
		return m.checkFallback(ctx, key)
	}

	result, err := m.limiter.Allow(ctx, key, m.limit, m.window)
	if err != nil {
		m.metrics.IncrementLimiterFailures()
		if m.breaker == nil || m.fallback == nil {
			return nil, false, err
		}
		if open, change := m.breaker.RecordFailure(); open {
			if change.Opened {
				m.logger.WarnContext(ctx, "rate limiter degraded to in-process fallback", "error", err)
			}
			m.metrics.SetDegraded(true)
		}
		return m.checkFallback(ctx, key)
	}
	if m.breaker != nil {
		if closed, change := m.breaker.RecordSuccess(); closed && change.Closed {
			m.logger.InfoContext(ctx, "rate limiter recovered")
			m.metrics.SetDegraded(false)
		}
	}
	return result, false, nil
}

func (m *Middleware) checkFallback(ctx context.Context, key string) (*models.Result, bool, error) {
	if m.fallback == nil {
		return nil, true, nil
	}
	result, err := m.fallback.Allow(ctx, key, m.limit, m.window)
	return result, true, err
}

func addRateLimitHeaders(w http.ResponseWriter, result *models.Result) {
	if result == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeRateLimitExceeded(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, &models.RateLimitExceededResponse{
		Error:            "rate_limited",
		ErrorDescription: "query limit exceeded, retry later",
		RetryAfter:       result.RetryAfter,
	})
}
