package directions

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/fieldserve/backend/internal/metrics"
	"github.com/fieldserve/backend/internal/models"
)

const (
	DefaultTimeout = 8 * time.Second
	maxAttempts    = 2
)

// Resilient bounds every provider call with a timeout, retries once, and
// throttles outgoing requests. Failures come back as *ProviderUnavailableError.
type Resilient struct {
	next    Provider
	timeout time.Duration
	limiter *rate.Limiter
	logger  zerolog.Logger
}

func NewResilient(next Provider, timeout time.Duration, rps float64, logger zerolog.Logger) *Resilient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := rate.Inf
	burst := 1
	if rps > 0 {
		limit = rate.Limit(rps)
		burst = int(rps)
		if burst < 1 {
			burst = 1
		}
	}
	return &Resilient{
		next:    next,
		timeout: timeout,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

func (r *Resilient) Configured() bool {
	return IsConfigured(r.next)
}

func (r *Resilient) TravelTime(ctx context.Context, from, to models.GeoPoint) (int, error) {
	var minutes int
	err := r.do(ctx, "travel_time", func(callCtx context.Context) error {
		m, err := r.next.TravelTime(callCtx, from, to)
		if err != nil {
			return err
		}
		minutes = m
		return nil
	})
	return minutes, err
}

func (r *Resilient) OptimizedOrder(ctx context.Context, req RouteRequest) (RouteResponse, error) {
	var resp RouteResponse
	err := r.do(ctx, "optimized_order", func(callCtx context.Context) error {
		out, err := r.next.OptimizedOrder(callCtx, req)
		if err != nil {
			return err
		}
		resp = out
		return nil
	})
	return resp, err
}

func (r *Resilient) do(ctx context.Context, op string, call func(context.Context) error) error {
	if !r.Configured() {
		return ErrNotConfigured
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			lastErr = err
			metrics.ProviderCalls.WithLabelValues(op, "error").Inc()
			return &ProviderUnavailableError{Op: op, Attempts: attempt, Err: lastErr}
		}
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := call(callCtx)
		cancel()
		metrics.ProviderLatency.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))

		if err == nil {
			outcome := "ok"
			if attempt > 1 {
				outcome = "retry_ok"
			}
			metrics.ProviderCalls.WithLabelValues(op, outcome).Inc()
			return nil
		}
		if errors.Is(err, ErrNotConfigured) {
			return err
		}
		lastErr = err
		r.logger.Debug().Err(err).Str("op", op).Int("attempt", attempt).Msg("directions call failed")
		// A cancelled caller gets no retry.
		if ctx.Err() != nil || errors.Is(err, ErrNoRoute) {
			metrics.ProviderCalls.WithLabelValues(op, "error").Inc()
			return &ProviderUnavailableError{Op: op, Attempts: attempt, Err: lastErr}
		}
	}
	metrics.ProviderCalls.WithLabelValues(op, "error").Inc()
	return &ProviderUnavailableError{Op: op, Attempts: maxAttempts, Err: lastErr}
}
