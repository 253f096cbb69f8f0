package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/nina/mediascout/internal/domain"
	"github.com/nina/mediascout/internal/logger"
)

// RetryPolicy wraps a fallible operation with exponential backoff.
// Only retryable error categories (rate-limit, transient upstream
// failure) are retried; anything else aborts immediately. A circuit-open
// rejection also aborts without consuming the retry budget, so the caller
// can tell "circuit open" apart from "retries exhausted".
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	// Jitter randomizes each computed delay by ±25%.
	Jitter bool
}

// DefaultRetryPolicy returns production defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	}
}

// Delay computes the backoff before the given attempt (1-based), ignoring
// jitter: min(base * multiplier^(attempt-1), max).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := float64(p.BaseDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(d)
}

// jittered applies ±25% randomization when enabled.
func (p RetryPolicy) jittered(d time.Duration) time.Duration {
	if !p.Jitter || d <= 0 {
		return d
	}
	// factor in [0.75, 1.25)
	factor := 0.75 + rand.Float64()*0.5
	return time.Duration(float64(d) * factor)
}

// Do runs op with retries. The last error is surfaced on exhaustion.
// A RATE_LIMITED error's RetryAfter hint overrides the computed delay
// when it is longer.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if domain.CodeOf(lastErr) == domain.ErrCircuitOpen {
			// Short-circuit: do not burn the retry budget on a circuit
			// that will reject every attempt anyway.
			return lastErr
		}
		if !domain.Retryable(lastErr) || attempt == attempts {
			return lastErr
		}

		delay := p.jittered(p.Delay(attempt))
		if hint := domain.RetryAfterOf(lastErr); hint > delay {
			delay = hint
		}
		logger.CtxDebug(ctx, "Retrying after failure: attempt=%d, delay=%s, error=%v",
			attempt, delay, lastErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return lastErr
}
