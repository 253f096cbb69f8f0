package domain

import "time"

// JobStatus represents the lifecycle state of a search job.
// Values include JobStatusSubmitted, JobStatusRunning, JobStatusCompleted,
// JobStatusFailed, and JobStatusCancelled.
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
// A job in a terminal state never transitions again.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// SearchFilters enumerates the supported structured filters for a search.
// Unknown filter keys are rejected at the API boundary by binding to this
// struct; there is deliberately no free-form filter map.
type SearchFilters struct {
	Beats     []string   `json:"beats,omitempty"`
	Regions   []string   `json:"regions,omitempty"`
	Countries []string   `json:"countries,omitempty"`
	Languages []string   `json:"languages,omitempty"`
	From      *time.Time `json:"from,omitempty"`
	To        *time.Time `json:"to,omitempty"`
}

// JobProgress carries the last known progress of a running job.
type JobProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	// ETA is the estimated remaining duration in seconds.
	ETA float64 `json:"eta_seconds,omitempty"`
}

// ResultSummary summarizes a job's outcome.
// Cost is the authoritative sum of the job's cost ledger entries.
type ResultSummary struct {
	ContactsFound int     `json:"contacts_found"`
	Cost          float64 `json:"cost"`
}

// JobError describes why a job failed, with a stable code for the UI.
type JobError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// SearchJob tracks one AI-search execution from submission to terminal state.
// The orchestrator is the only writer; snapshots handed to callers are copies.
type SearchJob struct {
	ID          string        `json:"id"`
	OwnerID     string        `json:"owner_id"`
	Query       string        `json:"query"`
	Filters     SearchFilters `json:"filters"`
	Status      JobStatus     `json:"status"`
	Progress    JobProgress   `json:"progress"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Summary     ResultSummary `json:"result_summary"`
	Error       *JobError     `json:"error,omitempty"`
	// Results holds the merged raw provider results gathered so far.
	// Preserved on failure and cancellation so partial finds stay usable.
	Results []WebResult `json:"results,omitempty"`
	// Candidates is populated by the materializer from Results.
	Candidates []CandidateContact `json:"candidates,omitempty"`
}

// WebResult is one normalized result from a search provider.
type WebResult struct {
	URL            string            `json:"url"`
	Title          string            `json:"title"`
	Summary        string            `json:"summary"`
	PublishedDate  *time.Time        `json:"published_date,omitempty"`
	Domain         string            `json:"domain"`
	Authority      float64           `json:"authority"`
	RelevanceScore float64           `json:"relevance_score"`
	Provider       string            `json:"provider,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// JobRecord is the persisted snapshot of a SearchJob.
type JobRecord struct {
	ID            string     `gorm:"type:text;primaryKey" json:"id"`
	OwnerID       string     `gorm:"type:text;not null;index" json:"owner_id"`
	Query         string     `gorm:"type:text;not null" json:"query"`
	Status        JobStatus  `gorm:"type:text;index;default:submitted" json:"status"`
	Stage         string     `gorm:"type:text" json:"stage"`
	Percent       float64    `json:"percent"`
	ContactsFound int        `gorm:"default:0" json:"contacts_found"`
	Cost          float64    `gorm:"default:0" json:"cost"`
	ErrorCode     string     `gorm:"type:text" json:"error_code,omitempty"`
	ErrorMessage  string     `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName returns the database table name for JobRecord.
func (JobRecord) TableName() string {
	return "search_jobs"
}
