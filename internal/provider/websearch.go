package provider

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nina/mediascout/internal/domain"
	"github.com/nina/mediascout/internal/logger"
)

const defaultRetryAfter = 60 * time.Second

// AuthorityConfig tunes the domain-authority heuristic.
// The boost is a heuristic, not a guarantee: a match on the trusted
// allow-list raises the score by a fixed increment, capped at 1.0.
// Which domains qualify is a product decision, hence configuration.
type AuthorityConfig struct {
	TrustedDomains []string
	Boost          float64
}

// HTTPConfig holds configuration for one HTTP search provider.
type HTTPConfig struct {
	Name       string
	BaseURL    string
	APIKey     string
	MaxResults int
	// CostPerRequest is the assumed cost when the provider reports none.
	CostPerRequest float64
	Authority      AuthorityConfig
	Timeout        time.Duration
}

// HTTPProvider adapts a JSON-over-HTTP web search upstream.
type HTTPProvider struct {
	client  *resty.Client
	name    string
	baseURL string
	cfg     HTTPConfig
	trusted map[string]bool
	metrics Metrics
}

// NewHTTPProvider creates a provider adapter.
// Parameters:
//   - cfg: provider configuration including endpoint and API key.
// Returns:
//   - *HTTPProvider: initialized adapter.
func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client.SetTimeout(timeout)

	if cfg.Authority.Boost <= 0 {
		cfg.Authority.Boost = 0.2
	}
	trusted := make(map[string]bool, len(cfg.Authority.TrustedDomains))
	for _, d := range cfg.Authority.TrustedDomains {
		trusted[strings.ToLower(d)] = true
	}

	return &HTTPProvider{
		client:  client,
		name:    cfg.Name,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		cfg:     cfg,
		trusted: trusted,
	}
}

// Name implements SearchProvider.
func (p *HTTPProvider) Name() string {
	return p.name
}

// Metrics exposes the adapter's internal counters.
func (p *HTTPProvider) Metrics() *Metrics {
	return &p.metrics
}

// Upstream wire structures.
type searchAPIRequest struct {
	Query      string   `json:"query"`
	MaxResults int      `json:"max_results,omitempty"`
	Regions    []string `json:"regions,omitempty"`
	Countries  []string `json:"countries,omitempty"`
	Languages  []string `json:"languages,omitempty"`
	Topics     []string `json:"topics,omitempty"`
	FromDate   string   `json:"from_date,omitempty"`
	ToDate     string   `json:"to_date,omitempty"`
}

type searchAPIResult struct {
	URL           string            `json:"url"`
	Title         string            `json:"title"`
	Snippet       string            `json:"snippet"`
	PublishedDate string            `json:"published_date,omitempty"`
	Score         float64           `json:"score"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type searchAPIResponse struct {
	Results    []searchAPIResult `json:"results"`
	Total      int               `json:"total"`
	SearchID   string            `json:"search_id"`
	Cost       float64           `json:"cost,omitempty"`
	TokensUsed int64             `json:"tokens_used,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// Search implements SearchProvider.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: normalized search request.
// Returns:
//   - *WebSearchResponse: normalized results with authority scores.
//   - error: a typed *domain.Error classifying the failure.
func (p *HTTPProvider) Search(ctx context.Context, req *WebSearchRequest) (*WebSearchResponse, error) {
	p.metrics.Requests.Add(1)

	maxResults := req.MaxResults
	if maxResults <= 0 || (p.cfg.MaxResults > 0 && maxResults > p.cfg.MaxResults) {
		maxResults = p.cfg.MaxResults
	}

	apiReq := searchAPIRequest{
		Query:      req.Query,
		MaxResults: maxResults,
		Regions:    req.Filters.Regions,
		Countries:  req.Filters.Countries,
		Languages:  req.Filters.Languages,
		Topics:     req.Filters.Beats,
	}
	if req.Filters.From != nil {
		apiReq.FromDate = req.Filters.From.Format("2006-01-02")
	}
	if req.Filters.To != nil {
		apiReq.ToDate = req.Filters.To.Format("2006-01-02")
	}

	start := time.Now()
	var apiResp searchAPIResponse
	// Force JSON decoding so an upstream that mislabels its content type
	// does not silently yield an empty result set.
	httpResp, err := p.client.R().
		SetContext(ctx).
		SetBody(apiReq).
		SetResult(&apiResp).
		ForceContentType("application/json").
		Post(p.baseURL + "/v1/search")
	queryTime := time.Since(start)

	if err != nil {
		p.metrics.Errors.Add(1)
		return nil, domain.WrapError(domain.ErrUpstreamUnavailable,
			"search provider "+p.name+" unreachable", err)
	}

	if derr := p.classifyStatus(httpResp, apiResp.Error); derr != nil {
		p.metrics.Errors.Add(1)
		if derr.Code == domain.ErrRateLimited {
			p.metrics.RateLimitHits.Add(1)
		}
		return nil, derr
	}

	p.recordUsage(httpResp, &apiResp)

	results := make([]domain.WebResult, 0, len(apiResp.Results))
	for _, r := range apiResp.Results {
		results = append(results, p.normalize(r))
	}

	p.metrics.Searches.Add(1)
	p.metrics.ResultsFound.Add(int64(len(results)))

	logger.CtxDebug(ctx, "Provider search completed: provider=%s, results=%d, query_time=%s",
		p.name, len(results), queryTime)

	return &WebSearchResponse{
		Results:      results,
		TotalResults: apiResp.Total,
		QueryTime:    queryTime,
		SearchID:     apiResp.SearchID,
		Cost:         apiResp.Cost,
		TokensUsed:   apiResp.TokensUsed,
	}, nil
}

// classifyStatus maps upstream HTTP status codes to the domain taxonomy.
func (p *HTTPProvider) classifyStatus(resp *resty.Response, apiError string) *domain.Error {
	code := resp.StatusCode()
	if code >= 200 && code < 300 {
		return nil
	}

	msg := apiError
	if msg == "" {
		msg = "provider " + p.name + " returned status " + strconv.Itoa(code)
	}

	switch code {
	case 429:
		return &domain.Error{
			Code:       domain.ErrRateLimited,
			Message:    msg,
			RetryAfter: parseRetryAfter(resp.Header().Get("Retry-After")),
		}
	case 402:
		return domain.NewError(domain.ErrQuotaExceeded, msg)
	case 401:
		return domain.NewError(domain.ErrAuth, msg)
	default:
		return domain.NewError(domain.ErrUpstreamUnavailable, msg)
	}
}

// recordUsage reads cost and quota signals from the response.
// Header values win over body metadata; a configured flat per-request
// cost fills in when the provider reports nothing.
func (p *HTTPProvider) recordUsage(resp *resty.Response, apiResp *searchAPIResponse) {
	if h := resp.Header().Get("X-Search-Cost"); h != "" {
		if c, err := strconv.ParseFloat(h, 64); err == nil {
			apiResp.Cost = c
		}
	}
	if apiResp.Cost == 0 {
		apiResp.Cost = p.cfg.CostPerRequest
	}
	p.metrics.AddCost(apiResp.Cost)

	if h := resp.Header().Get("X-Quota-Remaining"); h != "" {
		if q, err := strconv.ParseInt(h, 10, 64); err == nil {
			p.metrics.QuotaRemaining.Store(q)
		}
	}
}

// normalize converts one upstream result, scoring authority.
func (p *HTTPProvider) normalize(r searchAPIResult) domain.WebResult {
	res := domain.WebResult{
		URL:            r.URL,
		Title:          r.Title,
		Summary:        r.Snippet,
		Domain:         domainOf(r.URL),
		RelevanceScore: clamp01(r.Score),
		Provider:       p.name,
		Metadata:       r.Metadata,
	}
	if r.PublishedDate != "" {
		if ts, err := time.Parse("2006-01-02", r.PublishedDate); err == nil {
			res.PublishedDate = &ts
		} else if ts, err := time.Parse(time.RFC3339, r.PublishedDate); err == nil {
			res.PublishedDate = &ts
		}
	}
	res.Authority = p.scoreAuthority(res.Domain, res.RelevanceScore)
	return res
}

// scoreAuthority applies the trusted-domain boost heuristic.
func (p *HTTPProvider) scoreAuthority(dom string, relevance float64) float64 {
	score := clamp01(relevance)
	if p.trusted[strings.ToLower(dom)] {
		score = clamp01(score + p.cfg.Authority.Boost)
	}
	return score
}

// Health implements SearchProvider with a minimal low-cost probe.
func (p *HTTPProvider) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	resp, err := p.client.R().
		SetContext(ctx).
		Get(p.baseURL + "/v1/health")
	elapsed := time.Since(start)

	status := HealthStatus{
		ResponseTime: elapsed,
		ErrorRate:    p.metrics.ErrorRate(),
	}
	switch {
	case err != nil || resp.StatusCode() >= 500:
		status.State = Unhealthy
	case resp.StatusCode() >= 400 || status.ErrorRate > 0.25 || elapsed > 5*time.Second:
		status.State = Degraded
	default:
		status.State = Healthy
	}
	return status
}

// parseRetryAfter reads a Retry-After header in seconds, defaulting to 60s.
func parseRetryAfter(header string) time.Duration {
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}

// domainOf extracts the registrable host portion of a URL, without the
// www prefix.
func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// clamp01 bounds a score to [0, 1].
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
