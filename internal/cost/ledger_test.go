package cost

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nina/mediascout/internal/config"
	"github.com/nina/mediascout/internal/domain"
)

type fakeStore struct {
	mu      sync.Mutex
	entries []*domain.CostEntry
	err     error
}

func (s *fakeStore) Append(ctx context.Context, entry *domain.CostEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *fakeStore) SumByJob(ctx context.Context, jobID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, e := range s.entries {
		if e.JobID == jobID {
			total += e.Cost
		}
	}
	return total, nil
}

func (s *fakeStore) SumByUserSince(ctx context.Context, userID string, since time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, e := range s.entries {
		if e.UserID == userID && !e.CreatedAt.Before(since) {
			total += e.Cost
		}
	}
	return total, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func (n *fakeNotifier) Notify(ctx context.Context, alert Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

func (n *fakeNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.alerts))
	for _, a := range n.alerts {
		out = append(out, a.Kind)
	}
	return out
}

func newTestLedger(store *fakeStore, cfg config.BudgetConfig, notifier Notifier) *Ledger {
	l := NewLedger(store, cfg, notifier)
	l.now = func() time.Time {
		return time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	}
	return l
}

func TestRecord_AppendsEntry(t *testing.T) {
	store := &fakeStore{}
	ledger := newTestLedger(store, config.BudgetConfig{DailyLimit: 10}, nil)

	id, err := ledger.Record(context.Background(), Usage{
		UserID:     "user-1",
		Operation:  "web_search",
		Provider:   "searchapi",
		JobID:      "job-1",
		TokensUsed: 1200,
		Cost:       0.05,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == "" {
		t.Error("expected a non-empty entry ID")
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(store.entries))
	}
	e := store.entries[0]
	if e.UserID != "user-1" || e.Operation != "web_search" || e.Provider != "searchapi" {
		t.Errorf("entry fields not carried over: %+v", e)
	}
}

func TestJobCost_SumsEntriesForJob(t *testing.T) {
	store := &fakeStore{}
	ledger := newTestLedger(store, config.BudgetConfig{}, nil)
	ctx := context.Background()

	for _, u := range []Usage{
		{UserID: "u", JobID: "job-1", Cost: 0.02},
		{UserID: "u", JobID: "job-1", Cost: 0.03},
		{UserID: "u", JobID: "job-2", Cost: 0.50},
	} {
		if _, err := ledger.Record(ctx, u); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	total, err := ledger.JobCost(ctx, "job-1")
	if err != nil {
		t.Fatalf("JobCost: %v", err)
	}
	if !approxCost(total, 0.05) {
		t.Errorf("expected job-1 cost 0.05, got %f", total)
	}
}

func TestCheckBudget_ReportsDailySpend(t *testing.T) {
	store := &fakeStore{}
	ledger := newTestLedger(store, config.BudgetConfig{DailyLimit: 5}, nil)
	ctx := context.Background()

	// Spend from a previous day must not count.
	store.entries = append(store.entries, &domain.CostEntry{
		UserID:    "user-1",
		Cost:      4.0,
		CreatedAt: time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC),
	})
	if _, err := ledger.Record(ctx, Usage{UserID: "user-1", Cost: 2.0}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	status, err := ledger.CheckBudget(ctx, "user-1")
	if err != nil {
		t.Fatalf("CheckBudget: %v", err)
	}
	if !approxCost(status.Used, 2.0) {
		t.Errorf("expected used 2.0, got %f", status.Used)
	}
	if !approxCost(status.Remaining, 3.0) {
		t.Errorf("expected remaining 3.0, got %f", status.Remaining)
	}
	if status.Exceeded() {
		t.Error("budget should not be exceeded")
	}
}

func TestAuthorize_FailsWhenBudgetExhausted(t *testing.T) {
	store := &fakeStore{}
	ledger := newTestLedger(store, config.BudgetConfig{DailyLimit: 1}, nil)
	ctx := context.Background()

	if err := ledger.Authorize(ctx, "user-1"); err != nil {
		t.Fatalf("fresh user should be authorized: %v", err)
	}

	if _, err := ledger.Record(ctx, Usage{UserID: "user-1", Cost: 1.5}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	err := ledger.Authorize(ctx, "user-1")
	if err == nil {
		t.Fatal("expected authorization to fail")
	}
	if domain.CodeOf(err) != domain.ErrBudgetExceeded {
		t.Errorf("expected BUDGET_EXCEEDED, got %s", domain.CodeOf(err))
	}
	if domain.Retryable(err) {
		t.Error("budget exhaustion must not be retryable")
	}
}

func TestRecord_AlertsOnCostPerOperation(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	ledger := newTestLedger(store, config.BudgetConfig{AlertCostPerOp: 0.10}, notifier)

	if _, err := ledger.Record(context.Background(), Usage{UserID: "u", Cost: 0.25}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	kinds := notifier.kinds()
	if len(kinds) != 1 || kinds[0] != AlertKindCostPerOp {
		t.Errorf("expected one cost_per_operation alert, got %v", kinds)
	}
}

func TestRecord_AlertsOnTokensPerOperation(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	ledger := newTestLedger(store, config.BudgetConfig{AlertTokensPerOp: 1000}, notifier)

	if _, err := ledger.Record(context.Background(), Usage{UserID: "u", TokensUsed: 5000}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	kinds := notifier.kinds()
	if len(kinds) != 1 || kinds[0] != AlertKindTokensPerOp {
		t.Errorf("expected one tokens_per_operation alert, got %v", kinds)
	}
}

func TestRecord_AlertsOnBudgetFraction(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	ledger := newTestLedger(store, config.BudgetConfig{
		DailyLimit:          10,
		AlertBudgetFraction: 0.8,
	}, notifier)
	ctx := context.Background()

	if _, err := ledger.Record(ctx, Usage{UserID: "u", Cost: 5}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got := notifier.kinds(); len(got) != 0 {
		t.Fatalf("no alert expected at 50%% of budget, got %v", got)
	}

	if _, err := ledger.Record(ctx, Usage{UserID: "u", Cost: 3.5}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	kinds := notifier.kinds()
	if len(kinds) != 1 || kinds[0] != AlertKindBudgetFraction {
		t.Errorf("expected one budget_fraction alert at 85%%, got %v", kinds)
	}
}

func TestRecord_NoAlertsBelowThresholds(t *testing.T) {
	store := &fakeStore{}
	notifier := &fakeNotifier{}
	ledger := newTestLedger(store, config.BudgetConfig{
		DailyLimit:          100,
		AlertCostPerOp:      1,
		AlertTokensPerOp:    100000,
		AlertBudgetFraction: 0.8,
	}, notifier)

	if _, err := ledger.Record(context.Background(), Usage{UserID: "u", Cost: 0.01, TokensUsed: 500}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if got := notifier.kinds(); len(got) != 0 {
		t.Errorf("expected no alerts, got %v", got)
	}
}

func approxCost(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
