package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nina/mediascout/internal/domain"
)

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) *HTTPProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewHTTPProvider(HTTPConfig{
		Name:    "testsearch",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Authority: AuthorityConfig{
			TrustedDomains: []string{"reuters.com", "apnews.com"},
			Boost:          0.2,
		},
	})
}

func searchOK(results []searchAPIResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(searchAPIResponse{
			Results:  results,
			Total:    len(results),
			SearchID: "s-1",
			Cost:     0.03,
		})
	}
}

func TestSearch_NormalizesResults(t *testing.T) {
	p := newTestProvider(t, searchOK([]searchAPIResult{
		{
			URL:           "https://www.reuters.com/tech/article-1",
			Title:         "Jane Doe - Technology Correspondent",
			Snippet:       "Contact jane.doe@reuters.com for tips.",
			PublishedDate: "2026-05-01",
			Score:         0.7,
		},
	}))

	resp, err := p.Search(context.Background(), &WebSearchRequest{Query: "tech journalists"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}

	r := resp.Results[0]
	if r.Domain != "reuters.com" {
		t.Errorf("expected domain reuters.com, got %q", r.Domain)
	}
	if r.PublishedDate == nil {
		t.Error("expected published date parsed")
	}
	if r.Provider != "testsearch" {
		t.Errorf("expected provider tag, got %q", r.Provider)
	}
	if !approx(resp.Cost, 0.03) {
		t.Errorf("expected cost from body, got %f", resp.Cost)
	}
}

func TestSearch_AuthorityBoostForTrustedDomains(t *testing.T) {
	p := newTestProvider(t, searchOK([]searchAPIResult{
		{URL: "https://reuters.com/a", Title: "a", Score: 0.5},
		{URL: "https://obscure-blog.example/b", Title: "b", Score: 0.5},
		{URL: "https://apnews.com/c", Title: "c", Score: 0.95},
	}))

	resp, err := p.Search(context.Background(), &WebSearchRequest{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := resp.Results[0].Authority; !approx(got, 0.7) {
		t.Errorf("trusted domain: expected authority 0.7, got %f", got)
	}
	if got := resp.Results[1].Authority; !approx(got, 0.5) {
		t.Errorf("untrusted domain: expected authority 0.5, got %f", got)
	}
	// Boost is capped at 1.0.
	if got := resp.Results[2].Authority; !approx(got, 1.0) {
		t.Errorf("capped boost: expected 1.0, got %f", got)
	}
}

func TestSearch_ClampsProviderScore(t *testing.T) {
	p := newTestProvider(t, searchOK([]searchAPIResult{
		{URL: "https://example.com/a", Score: 3.5},
		{URL: "https://example.com/b", Score: -1},
	}))

	resp, err := p.Search(context.Background(), &WebSearchRequest{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Results[0].RelevanceScore != 1.0 {
		t.Errorf("expected clamp to 1.0, got %f", resp.Results[0].RelevanceScore)
	}
	if resp.Results[1].RelevanceScore != 0.0 {
		t.Errorf("expected clamp to 0.0, got %f", resp.Results[1].RelevanceScore)
	}
}

func TestSearch_Classifies429WithRetryAfter(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := p.Search(context.Background(), &WebSearchRequest{Query: "q"})
	if domain.CodeOf(err) != domain.ErrRateLimited {
		t.Fatalf("expected RATE_LIMITED, got %v", err)
	}
	if got := domain.RetryAfterOf(err); got != 120*time.Second {
		t.Errorf("expected retry-after 120s from header, got %s", got)
	}
	if p.Metrics().RateLimitHits.Load() != 1 {
		t.Error("expected rate limit hit counted")
	}
}

func TestSearch_Classifies429DefaultRetryAfter(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := p.Search(context.Background(), &WebSearchRequest{Query: "q"})
	if got := domain.RetryAfterOf(err); got != 60*time.Second {
		t.Errorf("expected default retry-after 60s, got %s", got)
	}
}

func TestSearch_ClassifiesTerminalStatuses(t *testing.T) {
	tests := []struct {
		status int
		code   domain.ErrorCode
	}{
		{402, domain.ErrQuotaExceeded},
		{401, domain.ErrAuth},
		{500, domain.ErrUpstreamUnavailable},
		{503, domain.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		_, err := p.Search(context.Background(), &WebSearchRequest{Query: "q"})
		if domain.CodeOf(err) != tt.code {
			t.Errorf("status %d: expected %s, got %v", tt.status, tt.code, err)
		}
	}
}

func TestSearch_CostFromHeaderWinsOverBody(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Search-Cost", "0.08")
		w.Header().Set("X-Quota-Remaining", "950")
		json.NewEncoder(w).Encode(searchAPIResponse{Cost: 0.01})
	})

	resp, err := p.Search(context.Background(), &WebSearchRequest{Query: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approx(resp.Cost, 0.08) {
		t.Errorf("expected header cost 0.08, got %f", resp.Cost)
	}
	if p.Metrics().QuotaRemaining.Load() != 950 {
		t.Errorf("expected quota signal recorded, got %d", p.Metrics().QuotaRemaining.Load())
	}
}

func TestSearch_MetricsAccumulate(t *testing.T) {
	p := newTestProvider(t, searchOK([]searchAPIResult{
		{URL: "https://example.com/a"},
		{URL: "https://example.com/b"},
	}))

	p.Search(context.Background(), &WebSearchRequest{Query: "q"})
	p.Search(context.Background(), &WebSearchRequest{Query: "q"})

	snap := p.Metrics().Snapshot()
	if snap.Requests != 2 || snap.Searches != 2 {
		t.Errorf("expected 2 requests/searches, got %+v", snap)
	}
	if snap.ResultsFound != 4 {
		t.Errorf("expected 4 results found, got %d", snap.ResultsFound)
	}
	if !approx(snap.Cost, 0.06) {
		t.Errorf("expected accumulated cost 0.06, got %f", snap.Cost)
	}
}

func TestHealth_States(t *testing.T) {
	healthy := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if got := healthy.Health(context.Background()).State; got != Healthy {
		t.Errorf("expected healthy, got %s", got)
	}

	unhealthy := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if got := unhealthy.Health(context.Background()).State; got != Unhealthy {
		t.Errorf("expected unhealthy, got %s", got)
	}
}

func TestDomainOf(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"https://www.reuters.com/article", "reuters.com"},
		{"https://apnews.com/x", "apnews.com"},
		{"not a url", ""},
	}
	for _, tt := range tests {
		if got := domainOf(tt.raw); got != tt.want {
			t.Errorf("domainOf(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}
