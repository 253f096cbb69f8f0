// Package ratelimit implements fixed-window request throttling keyed by
// operation class and caller identity. State lives in a pluggable store:
// in-memory by default, Redis when a shared backend is configured.
// Limiting is deliberately fail-open: a broken backend must never take
// down the feature it protects.
package ratelimit

import (
	"context"
	"time"

	"github.com/nina/mediascout/internal/logger"
)

// Config holds configuration for one limiter instance.
type Config struct {
	Window      time.Duration
	MaxRequests int
	// KeyPrefix namespaces this limiter's keys in the store.
	// Defaults to "rate_limit".
	KeyPrefix string
	// KeyGenerator derives the store key from a caller identifier.
	// Defaults to prefix + ":" + identifier.
	KeyGenerator func(identifier string) string
	// SkipSuccessful/SkipFailed control the post-hoc Record path only.
	SkipSuccessful bool
	SkipFailed     bool
}

// Result reports the outcome of a limit check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	TotalHits int64
}

// RetryAfter returns how long the caller should wait before retrying.
func (r Result) RetryAfter(now time.Time) time.Duration {
	d := r.ResetAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Store abstracts the counter backend. Implementations must be safe for
// concurrent use and must apply check-then-increment atomically.
type Store interface {
	// CheckIncr increments the window counter for key unless it already
	// reached max, creating the window with expiry on first hit.
	// The allowed flag is the authoritative verdict: a denied call and a
	// successful increment to max both report count == max, so callers
	// must not infer the outcome from the count.
	CheckIncr(ctx context.Context, key string, max int, window time.Duration) (allowed bool, count int64, resetAt time.Time, err error)
	// Incr unconditionally increments the window counter for key.
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
	// Reset clears the counter for key immediately.
	Reset(ctx context.Context, key string) error
}

// Limiter applies a fixed-window counter per identifier.
type Limiter struct {
	cfg   Config
	store Store
}

// New creates a limiter over the given store.
// Parameters:
//   - store: counter backend.
//   - cfg: window configuration.
// Returns:
//   - *Limiter: configured limiter.
func New(store Store, cfg Config) *Limiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rate_limit"
	}
	if cfg.KeyGenerator == nil {
		prefix := cfg.KeyPrefix
		cfg.KeyGenerator = func(identifier string) string {
			return prefix + ":" + identifier
		}
	}
	return &Limiter{cfg: cfg, store: store}
}

// Config returns the limiter's configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// Check applies the limit for one request from identifier.
// Denial does not inflate the counter past the configured maximum.
// Backend errors fail open: the request is allowed and the error logged.
func (l *Limiter) Check(ctx context.Context, identifier string) Result {
	key := l.cfg.KeyGenerator(identifier)
	allowed, count, resetAt, err := l.store.CheckIncr(ctx, key, l.cfg.MaxRequests, l.cfg.Window)
	if err != nil {
		logger.CtxWarn(ctx, "Rate limit store error, allowing request: key=%s, error=%v", key, err)
		return Result{Allowed: true, Remaining: 0, ResetAt: time.Now().Add(l.cfg.Window)}
	}

	remaining := l.cfg.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   allowed,
		Remaining: remaining,
		ResetAt:   resetAt,
		TotalHits: count,
	}
}

// Record is the secondary accounting path for post-hoc limiting.
// It increments the counter after the fact, honoring the skip flags.
func (l *Limiter) Record(ctx context.Context, identifier string, success bool) {
	if success && l.cfg.SkipSuccessful {
		return
	}
	if !success && l.cfg.SkipFailed {
		return
	}
	key := l.cfg.KeyGenerator(identifier)
	if _, _, err := l.store.Incr(ctx, key, l.cfg.Window); err != nil {
		logger.CtxWarn(ctx, "Rate limit record failed: key=%s, error=%v", key, err)
	}
}

// Reset clears the identifier's window immediately, independent of expiry.
func (l *Limiter) Reset(ctx context.Context, identifier string) {
	key := l.cfg.KeyGenerator(identifier)
	if err := l.store.Reset(ctx, key); err != nil {
		logger.CtxWarn(ctx, "Rate limit reset failed: key=%s, error=%v", key, err)
	}
}
