// Package provider normalizes third-party web-search APIs behind one
// request/response contract. All upstream error shapes are translated to
// the domain taxonomy here; nothing downstream sees a raw provider error.
package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nina/mediascout/internal/domain"
)

// WebSearchRequest is the normalized search request sent to any provider.
type WebSearchRequest struct {
	Query      string               `json:"query"`
	Filters    domain.SearchFilters `json:"filters"`
	MaxResults int                  `json:"max_results"`
	Options    map[string]string    `json:"options,omitempty"`
}

// WebSearchResponse is the normalized provider response.
type WebSearchResponse struct {
	Results      []domain.WebResult `json:"results"`
	TotalResults int                `json:"total_results"`
	QueryTime    time.Duration      `json:"query_time"`
	SearchID     string             `json:"search_id"`
	// Cost is the provider-reported cost of this call, when available.
	Cost float64 `json:"cost"`
	// TokensUsed is the provider-reported token consumption.
	TokensUsed int64             `json:"tokens_used"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// HealthState classifies a provider's availability.
type HealthState string

const (
	Healthy   HealthState = "healthy"
	Degraded  HealthState = "degraded"
	Unhealthy HealthState = "unhealthy"
)

// HealthStatus is the result of a provider health probe.
type HealthStatus struct {
	State        HealthState   `json:"state"`
	ResponseTime time.Duration `json:"response_time"`
	ErrorRate    float64       `json:"error_rate"`
}

// SearchProvider is the uniform contract the orchestrator dispatches to.
type SearchProvider interface {
	// Name identifies the upstream for breakers, metrics, and cost entries.
	Name() string
	// Search executes one normalized search. Errors are always typed
	// *domain.Error values.
	Search(ctx context.Context, req *WebSearchRequest) (*WebSearchResponse, error)
	// Health runs a minimal low-cost probe.
	Health(ctx context.Context) HealthStatus
}

// Metrics tracks per-provider counters. Counter fields are updated
// atomically; Cost needs a mutex because float64 has no atomic add.
type Metrics struct {
	Requests      atomic.Int64
	Searches      atomic.Int64
	ResultsFound  atomic.Int64
	Errors        atomic.Int64
	RateLimitHits atomic.Int64

	costMu sync.Mutex
	cost   float64
	// QuotaRemaining is the last quota signal seen in response headers,
	// -1 when the provider never reported one.
	QuotaRemaining atomic.Int64
}

// AddCost accumulates provider-reported spend.
func (m *Metrics) AddCost(c float64) {
	m.costMu.Lock()
	m.cost += c
	m.costMu.Unlock()
}

// Cost returns the accumulated spend.
func (m *Metrics) Cost() float64 {
	m.costMu.Lock()
	defer m.costMu.Unlock()
	return m.cost
}

// ErrorRate returns errors/requests over the process lifetime.
func (m *Metrics) ErrorRate() float64 {
	reqs := m.Requests.Load()
	if reqs == 0 {
		return 0
	}
	return float64(m.Errors.Load()) / float64(reqs)
}

// Snapshot returns a plain-struct copy for reporting.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Requests:       m.Requests.Load(),
		Searches:       m.Searches.Load(),
		ResultsFound:   m.ResultsFound.Load(),
		Errors:         m.Errors.Load(),
		RateLimitHits:  m.RateLimitHits.Load(),
		Cost:           m.Cost(),
		QuotaRemaining: m.QuotaRemaining.Load(),
	}
}

// MetricsSnapshot is a point-in-time copy of provider metrics.
type MetricsSnapshot struct {
	Requests       int64   `json:"requests"`
	Searches       int64   `json:"searches"`
	ResultsFound   int64   `json:"results_found"`
	Errors         int64   `json:"errors"`
	RateLimitHits  int64   `json:"rate_limit_hits"`
	Cost           float64 `json:"cost"`
	QuotaRemaining int64   `json:"quota_remaining"`
}
