package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// VerificationStatus marks how much trust a candidate contact has earned.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
)

// CandidateContact is a provisional contact extracted from provider
// results. It lives only as long as its job's result set; a durable
// identifier is assigned by the store when the importer promotes it.
type CandidateContact struct {
	ID           string             `json:"id"`
	JobID        string             `json:"job_id"`
	Name         string             `json:"name,omitempty"`
	Email        string             `json:"email,omitempty"`
	Title        string             `json:"title,omitempty"`
	Company      string             `json:"company,omitempty"`
	Confidence   float64            `json:"confidence_score"`
	SourceURL    string             `json:"source_url"`
	Verification VerificationStatus `json:"verification_status"`
	Imported     bool               `json:"imported"`
	// ContactID is the durable store id once imported.
	ContactID string `json:"contact_id,omitempty"`
}

// StringList stores a string slice as JSON text in the database.
type StringList []string

// Value implements driver.Valuer for database serialization.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner for database deserialization.
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = StringList{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringList")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, l)
}

// Contact is a durable media contact in the persistent store.
type Contact struct {
	ID         string     `gorm:"type:text;primaryKey" json:"id"`
	Name       string     `gorm:"type:text;not null" json:"name"`
	Email      string     `gorm:"type:text;uniqueIndex:idx_contacts_email" json:"email"`
	Title      string     `gorm:"type:text" json:"title,omitempty"`
	Company    string     `gorm:"type:text;index:idx_contacts_company" json:"company,omitempty"`
	SourceURL  string     `gorm:"type:text" json:"source_url,omitempty"`
	Confidence float64    `json:"confidence_score"`
	Lists      StringList `gorm:"type:text" json:"lists"`
	Tags       StringList `gorm:"type:text" json:"tags"`
	// ImportedFrom references the search job that produced this contact,
	// empty for contacts created outside AI search.
	ImportedFrom string    `gorm:"type:text;index" json:"imported_from,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Contact.
func (Contact) TableName() string {
	return "contacts"
}
