// Package resilience provides per-upstream failure isolation (circuit
// breaker) and retry with exponential backoff for fallible operations.
// Retryability is decided by the domain error taxonomy, so upstream
// classification happens once, at the provider boundary.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/nina/mediascout/internal/domain"
	"github.com/nina/mediascout/internal/logger"
)

// State is a circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// BreakerConfig holds circuit breaker thresholds.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before a trial call.
	RecoveryTimeout time.Duration
	// MonitoringPeriod bounds how long a failure streak stays relevant;
	// a streak older than this is forgotten.
	MonitoringPeriod time.Duration
}

// DefaultBreakerConfig returns production defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		MonitoringPeriod: 60 * time.Second,
	}
}

// CircuitBreaker isolates one upstream. Transitions:
// closed→open on the failure threshold, open→half-open on the recovery
// timer, half-open→closed on trial success, half-open→open on trial failure.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	firstFailure  time.Time
	nextAttemptAt time.Time
	trialInFlight bool
}

// NewCircuitBreaker creates a breaker for one upstream key.
func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	return &CircuitBreaker{name: name, cfg: cfg, state: StateClosed}
}

// State returns the current state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs op through the breaker.
// An open circuit rejects immediately with a CIRCUIT_OPEN error carrying
// the remaining cooldown, without invoking op. In half-open, exactly one
// trial call is admitted; concurrent callers are rejected as open.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := op(ctx)
	b.record(ctx, err)
	return err
}

// admit decides whether a call may proceed, handling the open→half-open
// transition on the recovery timer.
func (b *CircuitBreaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if now.Before(b.nextAttemptAt) {
			return &domain.Error{
				Code:       domain.ErrCircuitOpen,
				Message:    "upstream " + b.name + " temporarily unavailable",
				RetryAfter: b.nextAttemptAt.Sub(now),
			}
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return &domain.Error{
				Code:       domain.ErrCircuitOpen,
				Message:    "upstream " + b.name + " trial in progress",
				RetryAfter: b.cfg.RecoveryTimeout,
			}
		}
		b.trialInFlight = true
		return nil
	}
	return nil
}

// record updates breaker state from a call outcome.
func (b *CircuitBreaker) record(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.state == StateHalfOpen {
		b.trialInFlight = false
		if err == nil {
			b.state = StateClosed
			b.failures = 0
			logger.CtxInfo(ctx, "Circuit closed after successful trial: upstream=%s", b.name)
		} else {
			b.state = StateOpen
			b.nextAttemptAt = now.Add(b.cfg.RecoveryTimeout)
			logger.CtxWarn(ctx, "Circuit re-opened after failed trial: upstream=%s", b.name)
		}
		return
	}

	if err == nil {
		b.failures = 0
		return
	}

	// Forget streaks older than the monitoring period.
	if b.cfg.MonitoringPeriod > 0 && b.failures > 0 &&
		now.Sub(b.firstFailure) > b.cfg.MonitoringPeriod {
		b.failures = 0
	}
	if b.failures == 0 {
		b.firstFailure = now
	}
	b.failures++

	if b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.nextAttemptAt = now.Add(b.cfg.RecoveryTimeout)
		logger.CtxWarn(ctx, "Circuit opened: upstream=%s, failures=%d", b.name, b.failures)
	}
}

// Registry hands out one breaker per upstream key.
type Registry struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewRegistry creates a breaker registry with a shared configuration.
func NewRegistry(cfg BreakerConfig) *Registry {
	return &Registry{cfg: cfg, breakers: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for an upstream key, creating it on first use.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.breakers[name]
	if !ok {
		b = NewCircuitBreaker(name, r.cfg)
		r.breakers[name] = b
	}
	return b
}
