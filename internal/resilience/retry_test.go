package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nina/mediascout/internal/domain"
)

func TestRetryPolicy_DelayMonotonicAndCapped(t *testing.T) {
	p := RetryPolicy{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   2 * time.Second,
		Multiplier: 2.0,
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := p.Delay(attempt)
		if d < prev {
			t.Errorf("attempt %d: delay %s decreased from %s", attempt, d, prev)
		}
		if d > p.MaxDelay {
			t.Errorf("attempt %d: delay %s exceeds max %s", attempt, d, p.MaxDelay)
		}
		prev = d
	}

	if p.Delay(1) != 100*time.Millisecond {
		t.Errorf("expected base delay on first attempt, got %s", p.Delay(1))
	}
	if p.Delay(2) != 200*time.Millisecond {
		t.Errorf("expected doubled delay on second attempt, got %s", p.Delay(2))
	}
	if p.Delay(10) != 2*time.Second {
		t.Errorf("expected cap at max delay, got %s", p.Delay(10))
	}
}

func TestRetryPolicy_JitterStaysWithinBounds(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Second, Multiplier: 2.0, Jitter: true}
	base := p.Delay(1)
	for i := 0; i < 100; i++ {
		d := p.jittered(base)
		if d < time.Duration(float64(base)*0.75) || d > time.Duration(float64(base)*1.25) {
			t.Fatalf("jittered delay %s outside ±25%% of %s", d, base)
		}
	}
}

func TestRetryPolicy_RetriesRetryableUntilSuccess(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2.0}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return domain.NewError(domain.ErrUpstreamUnavailable, "flaky")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestRetryPolicy_ExhaustionSurfacesLastError(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2.0}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return domain.WrapError(domain.ErrUpstreamUnavailable, "down", errors.New("attempt"))
	})
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if domain.CodeOf(err) != domain.ErrUpstreamUnavailable {
		t.Errorf("expected last error surfaced, got %v", err)
	}
}

func TestRetryPolicy_NonRetryableAbortsImmediately(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2.0}

	for _, code := range []domain.ErrorCode{
		domain.ErrValidation,
		domain.ErrAuth,
		domain.ErrQuotaExceeded,
		domain.ErrBudgetExceeded,
	} {
		calls := 0
		err := p.Do(context.Background(), func(ctx context.Context) error {
			calls++
			return domain.NewError(code, "terminal")
		})
		if calls != 1 {
			t.Errorf("%s: expected 1 attempt, got %d", code, calls)
		}
		if domain.CodeOf(err) != code {
			t.Errorf("%s: expected code surfaced, got %v", code, err)
		}
	}
}

func TestRetryPolicy_CircuitOpenDoesNotConsumeBudget(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, BaseDelay: time.Millisecond, Multiplier: 2.0}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return domain.NewError(domain.ErrCircuitOpen, "open")
	})
	if calls != 1 {
		t.Errorf("expected 1 attempt on circuit-open, got %d", calls)
	}
	if domain.CodeOf(err) != domain.ErrCircuitOpen {
		t.Errorf("expected CIRCUIT_OPEN distinguishable from exhaustion, got %v", err)
	}
}

func TestRetryPolicy_HonorsRateLimitRetryAfter(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, Multiplier: 2.0}

	start := time.Now()
	calls := 0
	p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return domain.RateLimitedError("throttled", 50*time.Millisecond)
		}
		return nil
	})
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("expected retry-after hint honored, waited only %s", elapsed)
	}
}

func TestRetryPolicy_ContextCancellationStopsWaiting(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour, Multiplier: 2.0}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, func(ctx context.Context) error {
		return domain.NewError(domain.ErrUpstreamUnavailable, "down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context cancellation, got %v", err)
	}
}
