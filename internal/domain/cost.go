package domain

import "time"

// CostEntry is an immutable, append-only record of money/tokens spent on
// one provider operation. Entries carrying a JobID sum to the job's
// authoritative cost.
type CostEntry struct {
	ID         string    `gorm:"type:text;primaryKey" json:"id"`
	UserID     string    `gorm:"type:text;not null;index" json:"user_id"`
	Operation  string    `gorm:"type:text;not null" json:"operation"`
	Provider   string    `gorm:"type:text;index" json:"provider"`
	JobID      string    `gorm:"type:text;index" json:"job_id,omitempty"`
	TokensUsed int64     `gorm:"default:0" json:"tokens_used"`
	Cost       float64   `gorm:"default:0" json:"cost"`
	CreatedAt  time.Time `json:"timestamp"`
}

// TableName returns the database table name for CostEntry.
func (CostEntry) TableName() string {
	return "cost_entries"
}

// BudgetStatus reports spend against a configured ceiling for a period.
type BudgetStatus struct {
	UserID    string    `json:"user_id"`
	Period    string    `json:"period"`
	Used      float64   `json:"used"`
	Limit     float64   `json:"limit"`
	Remaining float64   `json:"remaining"`
	Since     time.Time `json:"since"`
}

// Exceeded reports whether the budget has been fully consumed.
func (b BudgetStatus) Exceeded() bool {
	return b.Limit > 0 && b.Remaining <= 0
}
