package repository

import (
	"context"

	"github.com/nina/mediascout/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// JobRepository persists search job snapshots. The orchestrator's
// in-memory job is authoritative while a job runs; snapshots are written
// on every state transition for durability and audit.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Save upserts a job snapshot keyed by job id.
func (r *JobRepository) Save(ctx context.Context, rec *domain.JobRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(rec).Error
}

// GetByID retrieves a job snapshot by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.JobRecord, error) {
	var rec domain.JobRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByOwner retrieves recent job snapshots for a user.
func (r *JobRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]domain.JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	var recs []domain.JobRecord
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at desc").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}
