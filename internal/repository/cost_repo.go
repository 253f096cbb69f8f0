package repository

import (
	"context"
	"time"

	"github.com/nina/mediascout/internal/domain"
	"gorm.io/gorm"
)

// CostRepository handles append-only cost entry persistence.
type CostRepository struct {
	db *gorm.DB
}

// NewCostRepository creates a new CostRepository.
func NewCostRepository(db *gorm.DB) *CostRepository {
	return &CostRepository{db: db}
}

// Append inserts a cost entry. Entries are never updated or deleted.
func (r *CostRepository) Append(ctx context.Context, entry *domain.CostEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// SumByJob returns the total cost of entries referencing a job.
func (r *CostRepository) SumByJob(ctx context.Context, jobID string) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).Model(&domain.CostEntry{}).
		Where("job_id = ?", jobID).
		Select("COALESCE(SUM(cost), 0)").
		Scan(&total).Error
	return total, err
}

// SumByUserSince returns a user's total cost since a point in time.
func (r *CostRepository) SumByUserSince(ctx context.Context, userID string, since time.Time) (float64, error) {
	var total float64
	err := r.db.WithContext(ctx).Model(&domain.CostEntry{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Select("COALESCE(SUM(cost), 0)").
		Scan(&total).Error
	return total, err
}

// RecentByUser returns a user's most recent cost entries, newest first.
func (r *CostRepository) RecentByUser(ctx context.Context, userID string, limit int) ([]domain.CostEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []domain.CostEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// ProviderTotal aggregates cost per provider over a period.
type ProviderTotal struct {
	Provider   string  `json:"provider"`
	Operations int64   `json:"operations"`
	Tokens     int64   `json:"tokens"`
	Cost       float64 `json:"cost"`
}

// SummarizeByProvider aggregates spend per provider since a point in time.
func (r *CostRepository) SummarizeByProvider(ctx context.Context, since time.Time) ([]ProviderTotal, error) {
	var totals []ProviderTotal
	err := r.db.WithContext(ctx).Model(&domain.CostEntry{}).
		Select("provider, COUNT(*) as operations, COALESCE(SUM(tokens_used),0) as tokens, COALESCE(SUM(cost),0) as cost").
		Where("created_at >= ?", since).
		Group("provider").
		Order("cost desc").
		Scan(&totals).Error
	return totals, err
}

// UserTotal aggregates cost per user over a period.
type UserTotal struct {
	UserID     string  `json:"user_id"`
	Operations int64   `json:"operations"`
	Cost       float64 `json:"cost"`
}

// SummarizeByUser aggregates spend per user since a point in time.
func (r *CostRepository) SummarizeByUser(ctx context.Context, since time.Time) ([]UserTotal, error) {
	var totals []UserTotal
	err := r.db.WithContext(ctx).Model(&domain.CostEntry{}).
		Select("user_id, COUNT(*) as operations, COALESCE(SUM(cost),0) as cost").
		Where("created_at >= ?", since).
		Group("user_id").
		Order("cost desc").
		Scan(&totals).Error
	return totals, err
}
