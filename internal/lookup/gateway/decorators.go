package gateway

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"idlookup/internal/identifier"
	"idlookup/internal/lookup"
	"idlookup/pkg/platform/circuit"
	"idlookup/pkg/platform/sentinel"
)

// fetchFunc is one stage of the gateway pipeline.
type fetchFunc func(ctx context.Context, id identifier.Identifier) (*lookup.Result, error)

// ResultCache is the read-through store consulted before the breaker.
type ResultCache interface {
	Find(ctx context.Context, key string) (*lookup.Result, error)
	Save(ctx context.Context, key string, res *lookup.Result) error
}

// RetryPolicy bounds upstream attempts. The wait after attempt n is
// InitialBackoff * Multiplier^(n-1), capped at MaxBackoff when set.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Multiplier     float64
	MaxBackoff     time.Duration
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := time.Duration(float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1)))
	if p.MaxBackoff > 0 && d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withRetry repeats retryable failures; terminal errors return immediately.
func withRetry(next fetchFunc, policy RetryPolicy, sleep sleepFunc, logger *slog.Logger) fetchFunc {
	return func(ctx context.Context, id identifier.Identifier) (*lookup.Result, error) {
		var lastErr error
		for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
			res, err := next(ctx, id)
			if err == nil {
				return res, nil
			}
			lastErr = err
			if !IsRetryable(err) || attempt == policy.MaxAttempts {
				break
			}
			wait := policy.backoff(attempt)
			logger.WarnContext(ctx, "upstream attempt failed",
				"identifier", id.Masked(),
				"attempt", attempt,
				"category", CategoryOf(err),
				"retry_in", wait,
			)
			if sleep(ctx, wait) != nil {
				break
			}
		}
		return nil, lastErr
	}
}

// withBreaker rejects calls while the circuit is open and feeds transport
// outcomes back into it. Terminal 4xx answers count as healthy responses.
func withBreaker(next fetchFunc, breaker *circuit.Breaker) fetchFunc {
	return func(ctx context.Context, id identifier.Identifier) (*lookup.Result, error) {
		if !breaker.Allow() {
			return nil, ErrCircuitOpen
		}
		res, err := next(ctx, id)
		switch {
		case err == nil:
			breaker.RecordSuccess()
		case errors.Is(err, context.Canceled):
			breaker.Release()
		case IsTransport(err):
			breaker.RecordFailure()
		default:
			breaker.RecordSuccess()
		}
		return res, err
	}
}

// withCache serves stored successes and collapses concurrent misses for the
// same identifier into one downstream call. Cache faults degrade to a miss.
func withCache(next fetchFunc, cache ResultCache, group *singleflight.Group, logger *slog.Logger) fetchFunc {
	return func(ctx context.Context, id identifier.Identifier) (*lookup.Result, error) {
		key := id.Normalized()
		cached, err := cache.Find(ctx, key)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			logger.WarnContext(ctx, "result cache read failed", "identifier", id.Masked(), "error", err)
		}

		v, err, shared := group.Do(key, func() (any, error) {
			res, err := next(ctx, id)
			if err != nil {
				return nil, err
			}
			if res.Success {
				if err := cache.Save(ctx, key, res); err != nil {
					logger.WarnContext(ctx, "result cache write failed", "identifier", id.Masked(), "error", err)
				}
			}
			return res, nil
		})
		if err != nil {
			return nil, err
		}
		res := v.(*lookup.Result)
		if shared {
			cp := *res
			return &cp, nil
		}
		return res, nil
	}
}

// withFallback converts every downstream error into a synthesized
// "unavailable" result tagged with the reason.
func withFallback(next fetchFunc, now func() time.Time, onFallback func(context.Context, identifier.Identifier, lookup.FallbackReason, error)) fetchFunc {
	return func(ctx context.Context, id identifier.Identifier) (*lookup.Result, error) {
		res, err := next(ctx, id)
		if err == nil {
			return res, nil
		}
		reason := lookup.FallbackUpstreamFailure
		if errors.Is(err, ErrCircuitOpen) {
			reason = lookup.FallbackCircuitOpen
		}
		onFallback(ctx, id, reason, err)
		return lookup.Unavailable(id, reason, now()), nil
	}
}

type noCache struct{}

func (noCache) Find(context.Context, string) (*lookup.Result, error) { return nil, sentinel.ErrNotFound }
func (noCache) Save(context.Context, string, *lookup.Result) error  { return nil }
