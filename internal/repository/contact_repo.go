package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/nina/mediascout/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateEmail marks an insert that collided with an existing
// contact's email. Import reports it per-item rather than failing the batch.
var ErrDuplicateEmail = errors.New("contact with this email already exists")

// ContactRepository handles durable contact data operations.
type ContactRepository struct {
	db *gorm.DB
}

// NewContactRepository creates a new ContactRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ContactRepository: repository instance bound to db.
func NewContactRepository(db *gorm.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

// Create inserts a new contact record.
// A unique-constraint collision on email is reported as ErrDuplicateEmail.
func (r *ContactRepository) Create(ctx context.Context, contact *domain.Contact) error {
	err := r.db.WithContext(ctx).Create(contact).Error
	if err != nil && isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

// CreateMany inserts a batch of contacts, silently skipping duplicates.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - contacts: contact records to persist.
// Returns:
//   - int64: number of rows actually inserted.
//   - error: non-nil if the insert fails.
func (r *ContactRepository) CreateMany(ctx context.Context, contacts []*domain.Contact) (int64, error) {
	if len(contacts) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&contacts)
	return res.RowsAffected, res.Error
}

// GetByID retrieves a contact by its ID.
func (r *ContactRepository) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	var contact domain.Contact
	if err := r.db.WithContext(ctx).First(&contact, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &contact, nil
}

// ContactFilters narrows a contact listing.
type ContactFilters struct {
	Company string
	List    string
	Tag     string
	JobID   string
}

// List retrieves contacts with cursor-based pagination by monotonic id.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filters: optional filters; zero values mean no filtering.
//   - cursor: last seen contact id; empty starts from the beginning.
//   - limit: maximum number of records to return.
// Returns:
//   - []domain.Contact: matching contacts ordered by id.
//   - string: cursor for the next page, empty when exhausted.
//   - error: non-nil if the query fails.
func (r *ContactRepository) List(ctx context.Context, filters ContactFilters, cursor string, limit int) ([]domain.Contact, string, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	q := r.db.WithContext(ctx).Model(&domain.Contact{}).Order("id asc").Limit(limit + 1)
	if cursor != "" {
		q = q.Where("id > ?", cursor)
	}
	if filters.Company != "" {
		q = q.Where("company = ?", filters.Company)
	}
	if filters.JobID != "" {
		q = q.Where("imported_from = ?", filters.JobID)
	}
	// Lists and tags are stored as JSON text; LIKE keeps the filter
	// portable across sqlite and postgres.
	if filters.List != "" {
		q = q.Where("lists LIKE ?", "%\""+filters.List+"\"%")
	}
	if filters.Tag != "" {
		q = q.Where("tags LIKE ?", "%\""+filters.Tag+"\"%")
	}

	var contacts []domain.Contact
	if err := q.Find(&contacts).Error; err != nil {
		return nil, "", err
	}

	next := ""
	if len(contacts) > limit {
		contacts = contacts[:limit]
		next = contacts[limit-1].ID
	}
	return contacts, next, nil
}

// isUniqueViolation detects a unique-constraint error across drivers.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique failed")
}
