package cost

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nina/mediascout/internal/config"
	"github.com/nina/mediascout/internal/domain"
	"github.com/nina/mediascout/internal/logger"
)

// Store persists cost entries and answers aggregate queries.
// Satisfied by repository.CostRepository.
type Store interface {
	Append(ctx context.Context, entry *domain.CostEntry) error
	SumByJob(ctx context.Context, jobID string) (float64, error)
	SumByUserSince(ctx context.Context, userID string, since time.Time) (float64, error)
}

// Usage describes one billable provider operation.
type Usage struct {
	UserID     string
	Operation  string
	Provider   string
	JobID      string
	TokensUsed int64
	Cost       float64
}

// Ledger records spend as append-only entries and evaluates alert rules
// against each recorded operation. Recording never mutates or deletes
// prior entries; a job's cost is always the sum over its entries.
type Ledger struct {
	store    Store
	cfg      config.BudgetConfig
	notifier Notifier
	now      func() time.Time
}

// NewLedger creates a Ledger. A nil notifier disables alerting.
func NewLedger(store Store, cfg config.BudgetConfig, notifier Notifier) *Ledger {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Ledger{
		store:    store,
		cfg:      cfg,
		notifier: notifier,
		now:      time.Now,
	}
}

// Record appends a cost entry for one operation and returns its ID.
// Alert evaluation happens after the entry is durably stored, so a
// failed notification never loses spend data.
//
// Parameters:
//   - ctx: request context
//   - usage: the operation's spend
//
// Returns:
//   - string: the new entry's ID
//   - error: storage failure
func (l *Ledger) Record(ctx context.Context, usage Usage) (string, error) {
	entry := &domain.CostEntry{
		ID:         uuid.New().String(),
		UserID:     usage.UserID,
		Operation:  usage.Operation,
		Provider:   usage.Provider,
		JobID:      usage.JobID,
		TokensUsed: usage.TokensUsed,
		Cost:       usage.Cost,
		CreatedAt:  l.now(),
	}
	if err := l.store.Append(ctx, entry); err != nil {
		return "", domain.WrapError(domain.ErrInternal, "failed to record cost entry", err)
	}

	l.evaluateAlerts(ctx, usage)
	return entry.ID, nil
}

// CheckBudget reports a user's spend against the daily ceiling. The day
// rolls over at midnight UTC.
func (l *Ledger) CheckBudget(ctx context.Context, userID string) (domain.BudgetStatus, error) {
	since := l.dayStart()
	used, err := l.store.SumByUserSince(ctx, userID, since)
	if err != nil {
		return domain.BudgetStatus{}, domain.WrapError(domain.ErrInternal, "failed to sum user spend", err)
	}
	return domain.BudgetStatus{
		UserID:    userID,
		Period:    "daily",
		Used:      used,
		Limit:     l.cfg.DailyLimit,
		Remaining: l.cfg.DailyLimit - used,
		Since:     since,
	}, nil
}

// Authorize fails with BUDGET_EXCEEDED when the user's daily budget is
// already consumed. Callers check before dispatching billable work.
func (l *Ledger) Authorize(ctx context.Context, userID string) error {
	status, err := l.CheckBudget(ctx, userID)
	if err != nil {
		return err
	}
	if status.Exceeded() {
		return domain.NewError(domain.ErrBudgetExceeded,
			fmt.Sprintf("daily budget of $%.2f exhausted", status.Limit))
	}
	return nil
}

// JobCost returns the authoritative total cost of a job.
func (l *Ledger) JobCost(ctx context.Context, jobID string) (float64, error) {
	total, err := l.store.SumByJob(ctx, jobID)
	if err != nil {
		return 0, domain.WrapError(domain.ErrInternal, "failed to sum job cost", err)
	}
	return total, nil
}

func (l *Ledger) dayStart() time.Time {
	now := l.now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// evaluateAlerts checks the recorded operation against the configured
// alert rules and notifies for each rule that fires. Alerting is
// advisory and never blocks or fails the recording path.
func (l *Ledger) evaluateAlerts(ctx context.Context, usage Usage) {
	if l.cfg.AlertCostPerOp > 0 && usage.Cost > l.cfg.AlertCostPerOp {
		l.notifier.Notify(ctx, Alert{
			Kind:      AlertKindCostPerOp,
			UserID:    usage.UserID,
			JobID:     usage.JobID,
			Provider:  usage.Provider,
			Operation: usage.Operation,
			Cost:      usage.Cost,
			Message:   fmt.Sprintf("operation cost $%.4f exceeds per-operation threshold $%.4f", usage.Cost, l.cfg.AlertCostPerOp),
		})
	}

	if l.cfg.AlertTokensPerOp > 0 && usage.TokensUsed > l.cfg.AlertTokensPerOp {
		l.notifier.Notify(ctx, Alert{
			Kind:      AlertKindTokensPerOp,
			UserID:    usage.UserID,
			JobID:     usage.JobID,
			Provider:  usage.Provider,
			Operation: usage.Operation,
			Tokens:    usage.TokensUsed,
			Message:   fmt.Sprintf("operation used %d tokens, threshold is %d", usage.TokensUsed, l.cfg.AlertTokensPerOp),
		})
	}

	if l.cfg.AlertBudgetFraction > 0 && l.cfg.DailyLimit > 0 {
		status, err := l.CheckBudget(ctx, usage.UserID)
		if err != nil {
			logger.CtxWarn(ctx, "budget alert check failed: %v", err)
			return
		}
		if status.Used/status.Limit >= l.cfg.AlertBudgetFraction {
			l.notifier.Notify(ctx, Alert{
				Kind:        AlertKindBudgetFraction,
				UserID:      usage.UserID,
				BudgetUsed:  status.Used,
				BudgetLimit: status.Limit,
				Message:     fmt.Sprintf("daily spend $%.2f has reached %.0f%% of the $%.2f budget", status.Used, status.Used/status.Limit*100, status.Limit),
			})
		}
	}
}
