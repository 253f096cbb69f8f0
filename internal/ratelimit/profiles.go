package ratelimit

import "github.com/nina/mediascout/internal/config"

// Profiles holds the pre-configured limiter per operation class.
// These are configuration, not mechanism: every limiter shares the same
// fixed-window behavior with distinct windows and ceilings.
type Profiles struct {
	AIOperations       *Limiter
	Research           *Limiter
	Enrichment         *Limiter
	DuplicateDetection *Limiter
	// Anonymous is keyed by client IP rather than user id.
	Anonymous *Limiter
	Admin     *Limiter
}

// NewProfiles builds the limiter set from configuration over one shared store.
// Parameters:
//   - store: counter backend shared by all profiles.
//   - cfg: per-class window configuration.
// Returns:
//   - *Profiles: the limiter set.
func NewProfiles(store Store, cfg *config.RateLimitConfig) *Profiles {
	mk := func(prefix string, wc config.WindowConfig) *Limiter {
		return New(store, Config{
			Window:      wc.Window,
			MaxRequests: wc.MaxRequests,
			KeyPrefix:   "rate_limit:" + prefix,
		})
	}
	return &Profiles{
		AIOperations:       mk("ai", cfg.AIOperations),
		Research:           mk("research", cfg.Research),
		Enrichment:         mk("enrichment", cfg.Enrichment),
		DuplicateDetection: mk("dupdetect", cfg.DuplicateDetection),
		Anonymous:          mk("anon", cfg.Anonymous),
		Admin:              mk("admin", cfg.Admin),
	}
}
