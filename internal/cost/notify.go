package cost

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/nina/mediascout/internal/logger"
)

// Alert kinds, one per configured rule.
const (
	AlertKindCostPerOp      = "cost_per_operation"
	AlertKindTokensPerOp    = "tokens_per_operation"
	AlertKindBudgetFraction = "budget_fraction"
)

// Alert describes a threshold breach worth telling an operator about.
type Alert struct {
	Kind        string  `json:"kind"`
	UserID      string  `json:"user_id,omitempty"`
	JobID       string  `json:"job_id,omitempty"`
	Provider    string  `json:"provider,omitempty"`
	Operation   string  `json:"operation,omitempty"`
	Cost        float64 `json:"cost,omitempty"`
	Tokens      int64   `json:"tokens,omitempty"`
	BudgetUsed  float64 `json:"budget_used,omitempty"`
	BudgetLimit float64 `json:"budget_limit,omitempty"`
	Message     string  `json:"message"`
}

// Notifier delivers alerts. Delivery is best-effort; implementations
// must not block the caller on slow downstreams.
type Notifier interface {
	Notify(ctx context.Context, alert Alert)
}

// NopNotifier discards alerts. Used when no webhook is configured.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(ctx context.Context, alert Alert) {}

// WebhookNotifier posts alerts as JSON to a configured URL.
type WebhookNotifier struct {
	client *resty.Client
	url    string
}

// NewWebhookNotifier creates a WebhookNotifier for the given URL.
func NewWebhookNotifier(url string) *WebhookNotifier {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)
	return &WebhookNotifier{client: client, url: url}
}

// Notify posts the alert in a background goroutine. Failures are logged
// and otherwise swallowed; alerting never propagates errors to the
// spend-recording path.
func (n *WebhookNotifier) Notify(ctx context.Context, alert Alert) {
	log := logger.FromContext(ctx)
	go func() {
		resp, err := n.client.R().
			SetHeader("Content-Type", "application/json").
			SetBody(alert).
			Post(n.url)
		if err != nil {
			log.WithError(err).WithField(logger.FieldComponent, "cost-notify").
				Warnf("alert webhook delivery failed: kind=%s", alert.Kind)
			return
		}
		if resp.StatusCode() >= 300 {
			log.WithField(logger.FieldComponent, "cost-notify").
				Warnf("alert webhook returned %d: kind=%s", resp.StatusCode(), alert.Kind)
		}
	}()
}
