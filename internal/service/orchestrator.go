package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nina/mediascout/internal/config"
	"github.com/nina/mediascout/internal/cost"
	"github.com/nina/mediascout/internal/domain"
	"github.com/nina/mediascout/internal/logger"
	"github.com/nina/mediascout/internal/provider"
	"github.com/nina/mediascout/internal/ratelimit"
	"github.com/nina/mediascout/internal/resilience"
)

// CostTracker is the slice of the cost ledger the orchestrator needs.
// Satisfied by *cost.Ledger.
type CostTracker interface {
	Authorize(ctx context.Context, userID string) error
	Record(ctx context.Context, usage cost.Usage) (string, error)
	JobCost(ctx context.Context, jobID string) (float64, error)
}

// JobStore persists job snapshots. Satisfied by *repository.JobRepository.
type JobStore interface {
	Save(ctx context.Context, record *domain.JobRecord) error
}

// OrchestratorConfig holds tunables for the search orchestrator.
type OrchestratorConfig struct {
	MaxQueryLength int
	MaxResults     int
	// MaxConcurrent bounds in-flight provider calls across all jobs.
	MaxConcurrent int64
	// EstimatePerProvider feeds the duration estimate returned on submit.
	EstimatePerProvider time.Duration
	// Retention is how long terminal jobs stay queryable in memory
	// before the janitor evicts them. Persisted snapshots outlive this.
	Retention time.Duration
}

// DefaultOrchestratorConfig returns production defaults.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		MaxQueryLength:      500,
		MaxResults:          50,
		MaxConcurrent:       3,
		EstimatePerProvider: 10 * time.Second,
		Retention:           30 * time.Minute,
	}
}

// OrchestratorConfigFrom derives orchestrator tunables from app config.
func OrchestratorConfigFrom(search config.SearchConfig, providers config.ProvidersConfig) OrchestratorConfig {
	cfg := DefaultOrchestratorConfig()
	if search.MaxQueryLength > 0 {
		cfg.MaxQueryLength = search.MaxQueryLength
	}
	if search.MaxResults > 0 {
		cfg.MaxResults = search.MaxResults
	}
	if providers.MaxConcurrent > 0 {
		cfg.MaxConcurrent = int64(providers.MaxConcurrent)
	}
	if search.JobRetention > 0 {
		cfg.Retention = search.JobRetention
	}
	return cfg
}

// jobRunner owns the mutable state of one job. All writes to the job go
// through the runner mutex; the orchestrator goroutine for the job is
// the single writer, everyone else reads snapshots.
type jobRunner struct {
	mu        sync.Mutex
	job       *domain.SearchJob
	cancel    context.CancelFunc
	cancelled bool
	reason    string
	// estimate is the duration hint from submission, fixed for the
	// job's lifetime. Progress ETAs scale it by the remaining percent.
	estimate time.Duration
}

// etaFor converts a progress percentage into estimated seconds left.
func (r *jobRunner) etaFor(percent float64) float64 {
	eta := r.estimate.Seconds() * (100 - percent) / 100
	if eta < 0 {
		return 0
	}
	return eta
}

// snapshot returns a deep copy safe to hand to callers.
func (r *jobRunner) snapshot() *domain.SearchJob {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.job
	cp.Results = append([]domain.WebResult(nil), r.job.Results...)
	cp.Candidates = append([]domain.CandidateContact(nil), r.job.Candidates...)
	if r.job.Error != nil {
		e := *r.job.Error
		cp.Error = &e
	}
	if r.job.CompletedAt != nil {
		t := *r.job.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// Orchestrator runs AI search jobs: it validates and admits submissions,
// fans work out to providers through breakers and retries, merges
// results, tracks spend, and reports progress through the hub.
type Orchestrator struct {
	providers    []provider.SearchProvider
	breakers     *resilience.Registry
	retry        resilience.RetryPolicy
	limiter      *ratelimit.Limiter
	ledger       CostTracker
	hub          *ProgressHub
	jobStore     JobStore
	materializer *Materializer
	logger       *logger.Logger
	cfg          OrchestratorConfig
	sem          *semaphore.Weighted

	mu   sync.RWMutex
	jobs map[string]*jobRunner

	stop     chan struct{}
	stopOnce sync.Once
}

// NewOrchestrator creates an Orchestrator.
// Parameters:
//   - providers: the search providers to fan out to.
//   - breakers: per-provider circuit breaker registry.
//   - retry: retry policy applied around each provider call.
//   - limiter: rate limiter for the AI-operations class. The caller's
//     transport applies its own per-route profiles; this one must be a
//     different profile so a submission is not charged twice.
//   - ledger: cost tracker consulted before and after each dispatch.
//   - hub: progress event fan-out.
//   - jobStore: persistent job snapshot store.
//   - materializer: converts raw results into candidate contacts.
//   - log: logger instance.
//   - cfg: orchestrator tunables.
//
// Returns:
//   - *Orchestrator: initialized orchestrator.
func NewOrchestrator(
	providers []provider.SearchProvider,
	breakers *resilience.Registry,
	retry resilience.RetryPolicy,
	limiter *ratelimit.Limiter,
	ledger CostTracker,
	hub *ProgressHub,
	jobStore JobStore,
	materializer *Materializer,
	log *logger.Logger,
	cfg OrchestratorConfig,
) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultOrchestratorConfig().MaxConcurrent
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = DefaultOrchestratorConfig().MaxQueryLength
	}
	if cfg.EstimatePerProvider <= 0 {
		cfg.EstimatePerProvider = DefaultOrchestratorConfig().EstimatePerProvider
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultOrchestratorConfig().Retention
	}
	o := &Orchestrator{
		providers:    providers,
		breakers:     breakers,
		retry:        retry,
		limiter:      limiter,
		ledger:       ledger,
		hub:          hub,
		jobStore:     jobStore,
		materializer: materializer,
		logger:       log,
		cfg:          cfg,
		sem:          semaphore.NewWeighted(cfg.MaxConcurrent),
		jobs:         make(map[string]*jobRunner),
		stop:         make(chan struct{}),
	}
	go o.janitor()
	return o
}

// Close stops the background janitor. Running jobs are unaffected.
func (o *Orchestrator) Close() {
	o.stopOnce.Do(func() { close(o.stop) })
}

// janitor periodically evicts terminal jobs past the retention window.
// Their persisted snapshots remain available through the job store.
func (o *Orchestrator) janitor() {
	every := o.cfg.Retention / 4
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-o.stop:
			return
		case now := <-ticker.C:
			o.evictTerminal(now)
		}
	}
}

// evictTerminal drops terminal runners whose jobs finished before the
// retention cutoff.
func (o *Orchestrator) evictTerminal(now time.Time) {
	cutoff := now.Add(-o.cfg.Retention)
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, runner := range o.jobs {
		runner.mu.Lock()
		expired := runner.job.Status.Terminal() &&
			runner.job.CompletedAt != nil &&
			runner.job.CompletedAt.Before(cutoff)
		runner.mu.Unlock()
		if expired {
			delete(o.jobs, id)
		}
	}
}

// Submit validates and admits a search job, then starts it asynchronously.
// The returned job is the submitted snapshot; the estimate is a rough
// duration hint for the UI.
//
// Parameters:
//   - ctx: request context. Cancelling it does not cancel the job.
//   - ownerID: acting user.
//   - query: free-text search query.
//   - filters: structured filters.
//   - maxResults: per-provider result cap, clamped to configuration.
//
// Returns:
//   - *domain.SearchJob: the submitted job snapshot.
//   - time.Duration: estimated time to completion.
//   - error: VALIDATION, RATE_LIMITED, or BUDGET_EXCEEDED.
func (o *Orchestrator) Submit(ctx context.Context, ownerID, query string, filters domain.SearchFilters, maxResults int) (*domain.SearchJob, time.Duration, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, 0, domain.NewError(domain.ErrValidation, "query must not be empty")
	}
	if len(query) > o.cfg.MaxQueryLength {
		return nil, 0, domain.NewError(domain.ErrValidation,
			fmt.Sprintf("query exceeds maximum length of %d characters", o.cfg.MaxQueryLength))
	}
	if maxResults <= 0 || maxResults > o.cfg.MaxResults {
		maxResults = o.cfg.MaxResults
	}

	if o.limiter != nil {
		res := o.limiter.Check(ctx, ownerID)
		if !res.Allowed {
			return nil, 0, domain.RateLimitedError("search rate limit exceeded", res.RetryAfter(time.Now()))
		}
	}

	if err := o.ledger.Authorize(ctx, ownerID); err != nil {
		return nil, 0, err
	}

	estimate := time.Duration(len(o.providers)) * o.cfg.EstimatePerProvider
	if n := o.cfg.MaxConcurrent; n > 1 && int64(len(o.providers)) > n {
		estimate = estimate / time.Duration(n)
	}

	job := &domain.SearchJob{
		ID:      uuid.New().String(),
		OwnerID: ownerID,
		Query:   query,
		Filters: filters,
		Status:  domain.JobStatusSubmitted,
		Progress: domain.JobProgress{
			Stage: "queued",
			ETA:   estimate.Seconds(),
		},
		CreatedAt: time.Now(),
	}

	runner := &jobRunner{job: job, estimate: estimate}
	o.mu.Lock()
	o.jobs[job.ID] = runner
	o.mu.Unlock()

	o.persist(ctx, runner)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runner.mu.Lock()
	runner.cancel = cancel
	runner.mu.Unlock()

	go o.run(runCtx, runner, maxResults)

	return runner.snapshot(), estimate, nil
}

// GetStatus returns a consistent snapshot of a job.
func (o *Orchestrator) GetStatus(jobID string) (*domain.SearchJob, error) {
	runner, err := o.runner(jobID)
	if err != nil {
		return nil, err
	}
	return runner.snapshot(), nil
}

// Candidates returns the candidate contacts materialized for a job.
func (o *Orchestrator) Candidates(ctx context.Context, jobID string) ([]domain.CandidateContact, error) {
	runner, err := o.runner(jobID)
	if err != nil {
		return nil, err
	}
	return runner.snapshot().Candidates, nil
}

// MarkImported flags a candidate as imported and records the resulting
// contact id. Repeat imports of the same candidate become no-ops.
func (o *Orchestrator) MarkImported(ctx context.Context, jobID, candidateID, contactID string) error {
	runner, err := o.runner(jobID)
	if err != nil {
		return err
	}
	runner.mu.Lock()
	defer runner.mu.Unlock()
	for i := range runner.job.Candidates {
		if runner.job.Candidates[i].ID == candidateID {
			runner.job.Candidates[i].Imported = true
			runner.job.Candidates[i].ContactID = contactID
			return nil
		}
	}
	return domain.NewError(domain.ErrNotFound, "candidate not found: "+candidateID)
}

// Cancel requests cooperative cancellation of a job. Safe to call any
// number of times; cancelling a terminal job changes nothing.
func (o *Orchestrator) Cancel(ctx context.Context, jobID, reason string) error {
	runner, err := o.runner(jobID)
	if err != nil {
		return err
	}

	runner.mu.Lock()
	if runner.job.Status.Terminal() {
		runner.mu.Unlock()
		return nil
	}
	if !runner.cancelled {
		runner.cancelled = true
		runner.reason = reason
		if runner.cancel != nil {
			runner.cancel()
		}
	}
	runner.mu.Unlock()

	logger.CtxInfo(ctx, "cancellation requested: job=%s reason=%q", jobID, reason)
	return nil
}

func (o *Orchestrator) runner(jobID string) (*jobRunner, error) {
	o.mu.RLock()
	runner, ok := o.jobs[jobID]
	o.mu.RUnlock()
	if !ok {
		return nil, domain.NewError(domain.ErrNotFound, "search job not found: "+jobID)
	}
	return runner, nil
}

// run executes the job to a terminal state. It is the job's single
// writer; the cancelled flag is checked before every dispatch and before
// every merge, so results arriving after cancellation are discarded.
func (o *Orchestrator) run(ctx context.Context, runner *jobRunner, maxResults int) {
	job := runner.job
	ctx = logger.SetSearchID(ctx, job.ID)
	ctx = logger.SetUserID(ctx, job.OwnerID)

	runner.mu.Lock()
	job.Status = domain.JobStatusRunning
	job.Progress = domain.JobProgress{Stage: "dispatching", Percent: 5, ETA: runner.etaFor(5)}
	runner.mu.Unlock()
	o.publishProgress(ctx, runner, "dispatching", "search started")

	total := len(o.providers)
	var (
		wg        sync.WaitGroup
		completed int
		lastErr   error
		succeeded int
		budgetErr error
	)

	for _, p := range o.providers {
		if runner.isCancelled() {
			break
		}
		if err := o.ledger.Authorize(ctx, job.OwnerID); err != nil {
			budgetErr = err
			break
		}
		if err := o.sem.Acquire(ctx, 1); err != nil {
			break
		}
		if runner.isCancelled() {
			o.sem.Release(1)
			break
		}

		wg.Add(1)
		go func(p provider.SearchProvider) {
			defer wg.Done()
			defer o.sem.Release(1)

			resp, err := o.dispatch(ctx, p, job, maxResults)

			runner.mu.Lock()
			completed++
			done := completed
			if err != nil {
				lastErr = err
				runner.mu.Unlock()
				logger.CtxWarn(ctx, "provider dispatch failed: provider=%s err=%v", p.Name(), err)
			} else {
				succeeded++
				if !runner.cancelled {
					job.Results = append(job.Results, resp.Results...)
				}
				found := len(job.Results)
				pct := 10 + 80*float64(done)/float64(total)
				if pct > job.Progress.Percent {
					job.Progress = domain.JobProgress{Stage: "searching", Percent: pct, ETA: runner.etaFor(pct)}
				}
				runner.mu.Unlock()
				o.publishEvent(ctx, runner, domain.ProgressEvent{
					Type:    domain.EventProgress,
					Stage:   "searching",
					Message: fmt.Sprintf("%s returned %d results", p.Name(), len(resp.Results)),
					Found:   found,
				})
			}
		}(p)
	}

	wg.Wait()

	if runner.isCancelled() {
		o.finalizeCancelled(ctx, runner)
		return
	}
	if budgetErr != nil {
		o.finalizeFailed(ctx, runner, budgetErr)
		return
	}
	if succeeded == 0 && total > 0 {
		if lastErr == nil {
			lastErr = domain.NewError(domain.ErrUpstreamUnavailable, "all providers failed")
		}
		o.finalizeFailed(ctx, runner, lastErr)
		return
	}

	// All dispatches are in; turn raw results into candidate contacts.
	runner.mu.Lock()
	job.Progress = domain.JobProgress{Stage: "materializing", Percent: 92, ETA: runner.etaFor(92)}
	runner.mu.Unlock()
	o.publishProgress(ctx, runner, "materializing", "extracting contacts from results")

	candidates := o.materializer.Materialize(job)

	runner.mu.Lock()
	if runner.cancelled {
		runner.mu.Unlock()
		o.finalizeCancelled(ctx, runner)
		return
	}
	job.Candidates = candidates
	runner.mu.Unlock()

	o.finalizeCompleted(ctx, runner)
}

// dispatch runs one provider call through its breaker and the retry
// policy. A tripped breaker rejects immediately without consuming
// retry budget.
func (o *Orchestrator) dispatch(ctx context.Context, p provider.SearchProvider, job *domain.SearchJob, maxResults int) (*provider.WebSearchResponse, error) {
	req := &provider.WebSearchRequest{
		Query:      job.Query,
		Filters:    job.Filters,
		MaxResults: maxResults,
	}

	breaker := o.breakers.Get(p.Name())
	var resp *provider.WebSearchResponse

	err := o.retry.Do(ctx, func(ctx context.Context) error {
		return breaker.Execute(ctx, func(ctx context.Context) error {
			r, err := p.Search(ctx, req)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if resp.Cost > 0 || resp.TokensUsed > 0 {
		if _, rerr := o.ledger.Record(ctx, cost.Usage{
			UserID:     job.OwnerID,
			Operation:  "web_search",
			Provider:   p.Name(),
			JobID:      job.ID,
			TokensUsed: resp.TokensUsed,
			Cost:       resp.Cost,
		}); rerr != nil {
			logger.CtxError(ctx, "failed to record provider cost: provider=%s err=%v", p.Name(), rerr)
		}
	}
	return resp, nil
}

func (r *jobRunner) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (o *Orchestrator) finalizeCompleted(ctx context.Context, runner *jobRunner) {
	job := runner.job
	totalCost, err := o.ledger.JobCost(ctx, job.ID)
	if err != nil {
		logger.CtxWarn(ctx, "failed to sum job cost: %v", err)
	}

	runner.mu.Lock()
	now := time.Now()
	job.Status = domain.JobStatusCompleted
	job.Progress = domain.JobProgress{Stage: "completed", Percent: 100}
	job.CompletedAt = &now
	job.Summary = domain.ResultSummary{
		ContactsFound: len(job.Candidates),
		Cost:          totalCost,
	}
	summary := job.Summary
	runner.mu.Unlock()

	o.persist(ctx, runner)
	o.publishEvent(ctx, runner, domain.ProgressEvent{
		Type:    domain.EventCompleted,
		Stage:   "completed",
		Found:   summary.ContactsFound,
		Summary: summary,
	})
	logger.CtxInfo(ctx, "search job completed: contacts=%d cost=%.4f", summary.ContactsFound, summary.Cost)
}

func (o *Orchestrator) finalizeFailed(ctx context.Context, runner *jobRunner, cause error) {
	job := runner.job
	totalCost, _ := o.ledger.JobCost(ctx, job.ID)

	jobErr := &domain.JobError{
		Code:    domain.CodeOf(cause),
		Message: cause.Error(),
	}

	runner.mu.Lock()
	now := time.Now()
	job.Status = domain.JobStatusFailed
	job.Progress.ETA = 0
	job.CompletedAt = &now
	job.Error = jobErr
	// Partial results from providers that finished stay on the job and
	// are still materialized so the user can salvage them.
	if len(job.Candidates) == 0 && len(job.Results) > 0 {
		job.Candidates = o.materializer.Materialize(job)
	}
	job.Summary = domain.ResultSummary{
		ContactsFound: len(job.Candidates),
		Cost:          totalCost,
	}
	summary := job.Summary
	runner.mu.Unlock()

	o.persist(ctx, runner)
	o.publishEvent(ctx, runner, domain.ProgressEvent{
		Type:    domain.EventFailed,
		Stage:   "failed",
		Error:   jobErr,
		Summary: summary,
	})
	logger.CtxWarn(ctx, "search job failed: code=%s err=%v", jobErr.Code, cause)
}

func (o *Orchestrator) finalizeCancelled(ctx context.Context, runner *jobRunner) {
	job := runner.job
	totalCost, _ := o.ledger.JobCost(ctx, job.ID)

	runner.mu.Lock()
	if job.Status.Terminal() {
		runner.mu.Unlock()
		return
	}
	now := time.Now()
	job.Status = domain.JobStatusCancelled
	job.Progress.ETA = 0
	job.CompletedAt = &now
	if len(job.Candidates) == 0 && len(job.Results) > 0 {
		job.Candidates = o.materializer.Materialize(job)
	}
	job.Summary = domain.ResultSummary{
		ContactsFound: len(job.Candidates),
		Cost:          totalCost,
	}
	reason := runner.reason
	summary := job.Summary
	runner.mu.Unlock()

	o.persist(ctx, runner)
	o.publishEvent(ctx, runner, domain.ProgressEvent{
		Type:    domain.EventCancelled,
		Stage:   "cancelled",
		Message: reason,
		Summary: summary,
	})
	logger.CtxInfo(ctx, "search job cancelled: reason=%q", reason)
}

func (o *Orchestrator) publishProgress(ctx context.Context, runner *jobRunner, stage, message string) {
	o.publishEvent(ctx, runner, domain.ProgressEvent{
		Type:    domain.EventProgress,
		Stage:   stage,
		Message: message,
	})
}

// publishEvent stamps the event with the job's current percent and
// forwards it to the hub, which assigns the sequence number.
func (o *Orchestrator) publishEvent(ctx context.Context, runner *jobRunner, event domain.ProgressEvent) {
	runner.mu.Lock()
	event.Percent = runner.job.Progress.Percent
	jobID := runner.job.ID
	runner.mu.Unlock()
	o.hub.Publish(ctx, jobID, event)
}

// persist writes the current snapshot to the job store. Persistence
// failures are logged, not propagated: the in-memory job remains the
// source of truth for the running process.
func (o *Orchestrator) persist(ctx context.Context, runner *jobRunner) {
	snap := runner.snapshot()
	record := &domain.JobRecord{
		ID:            snap.ID,
		OwnerID:       snap.OwnerID,
		Query:         snap.Query,
		Status:        snap.Status,
		Stage:         snap.Progress.Stage,
		Percent:       snap.Progress.Percent,
		ContactsFound: snap.Summary.ContactsFound,
		Cost:          snap.Summary.Cost,
		CreatedAt:     snap.CreatedAt,
		CompletedAt:   snap.CompletedAt,
	}
	if snap.Error != nil {
		record.ErrorCode = string(snap.Error.Code)
		record.ErrorMessage = snap.Error.Message
	}
	if err := o.jobStore.Save(ctx, record); err != nil {
		logger.CtxError(ctx, "failed to persist job snapshot: job=%s err=%v", snap.ID, err)
	}
}
