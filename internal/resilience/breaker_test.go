package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nina/mediascout/internal/domain"
)

var errUpstream = domain.NewError(domain.ErrUpstreamUnavailable, "upstream down")

func failingOp(calls *int) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		*calls++
		return errUpstream
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	ctx := context.Background()
	b := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  time.Hour,
	})

	calls := 0
	for i := 0; i < 5; i++ {
		if err := b.Execute(ctx, failingOp(&calls)); err == nil {
			t.Fatalf("call %d: expected error", i+1)
		}
	}
	if calls != 5 {
		t.Fatalf("expected 5 underlying calls, got %d", calls)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after threshold, got %s", b.State())
	}

	// 6th call must be rejected without invoking the operation.
	err := b.Execute(ctx, failingOp(&calls))
	if calls != 5 {
		t.Errorf("expected short-circuit, underlying called %d times", calls)
	}
	if domain.CodeOf(err) != domain.ErrCircuitOpen {
		t.Errorf("expected CIRCUIT_OPEN, got %v", err)
	}
	if domain.RetryAfterOf(err) <= 0 {
		t.Error("expected a positive retry-after on circuit-open rejection")
	}
}

func TestBreaker_BelowThresholdStaysClosed(t *testing.T) {
	ctx := context.Background()
	b := NewCircuitBreaker("test", BreakerConfig{FailureThreshold: 3})

	calls := 0
	b.Execute(ctx, failingOp(&calls))
	b.Execute(ctx, failingOp(&calls))
	if b.State() != StateClosed {
		t.Errorf("expected closed below threshold, got %s", b.State())
	}
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	ctx := context.Background()
	b := NewCircuitBreaker("test", BreakerConfig{FailureThreshold: 3})

	calls := 0
	b.Execute(ctx, failingOp(&calls))
	b.Execute(ctx, failingOp(&calls))
	b.Execute(ctx, func(ctx context.Context) error { return nil })
	b.Execute(ctx, failingOp(&calls))
	b.Execute(ctx, failingOp(&calls))

	if b.State() != StateClosed {
		t.Errorf("expected closed after interleaved success, got %s", b.State())
	}
}

func TestBreaker_HalfOpenTrialSuccessCloses(t *testing.T) {
	ctx := context.Background()
	b := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  20 * time.Millisecond,
	})

	calls := 0
	b.Execute(ctx, failingOp(&calls))
	b.Execute(ctx, failingOp(&calls))
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	time.Sleep(30 * time.Millisecond)

	// Recovery timer elapsed: exactly one trial call is permitted.
	err := b.Execute(ctx, func(ctx context.Context) error { return nil })
	if err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed after successful trial, got %s", b.State())
	}

	// Failure counter was reset: a single new failure must not re-open.
	b.Execute(ctx, failingOp(&calls))
	if b.State() != StateClosed {
		t.Errorf("expected closed after one failure post-recovery, got %s", b.State())
	}
}

func TestBreaker_HalfOpenTrialFailureReopens(t *testing.T) {
	ctx := context.Background()
	b := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  20 * time.Millisecond,
	})

	calls := 0
	b.Execute(ctx, failingOp(&calls))
	b.Execute(ctx, failingOp(&calls))
	time.Sleep(30 * time.Millisecond)

	b.Execute(ctx, failingOp(&calls))
	if b.State() != StateOpen {
		t.Fatalf("expected re-open after failed trial, got %s", b.State())
	}

	// Timer restarted: immediate call is rejected again.
	pre := calls
	err := b.Execute(ctx, failingOp(&calls))
	if calls != pre {
		t.Error("expected short-circuit while re-opened")
	}
	if domain.CodeOf(err) != domain.ErrCircuitOpen {
		t.Errorf("expected CIRCUIT_OPEN, got %v", err)
	}
}

func TestBreaker_HalfOpenAdmitsSingleTrial(t *testing.T) {
	ctx := context.Background()
	b := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 1,
		RecoveryTimeout:  10 * time.Millisecond,
	})

	calls := 0
	b.Execute(ctx, failingOp(&calls))
	time.Sleep(20 * time.Millisecond)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(ctx, func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// A concurrent caller during the trial is rejected as circuit-open.
	err := b.Execute(ctx, func(ctx context.Context) error { return nil })
	if domain.CodeOf(err) != domain.ErrCircuitOpen {
		t.Errorf("expected concurrent caller rejected, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_MonitoringPeriodForgetsOldStreak(t *testing.T) {
	ctx := context.Background()
	b := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 3,
		MonitoringPeriod: 20 * time.Millisecond,
	})

	calls := 0
	b.Execute(ctx, failingOp(&calls))
	b.Execute(ctx, failingOp(&calls))
	time.Sleep(30 * time.Millisecond)
	b.Execute(ctx, failingOp(&calls))

	if b.State() != StateClosed {
		t.Errorf("expected stale streak forgotten, got %s", b.State())
	}
}

func TestRegistry_ReturnsSameBreakerPerKey(t *testing.T) {
	r := NewRegistry(DefaultBreakerConfig())
	a := r.Get("provider-a")
	if r.Get("provider-a") != a {
		t.Error("expected the same breaker instance for one key")
	}
	if r.Get("provider-b") == a {
		t.Error("expected distinct breakers per key")
	}
}

func TestBreaker_ErrorsPassThrough(t *testing.T) {
	ctx := context.Background()
	b := NewCircuitBreaker("test", DefaultBreakerConfig())
	want := errors.New("boom")
	got := b.Execute(ctx, func(ctx context.Context) error { return want })
	if !errors.Is(got, want) {
		t.Errorf("expected original error surfaced, got %v", got)
	}
}
