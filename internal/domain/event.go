package domain

import "time"

// EventType classifies a progress event.
type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventCancelled EventType = "cancelled"
)

// Terminal reports whether the event type ends a job's event stream.
func (t EventType) Terminal() bool {
	return t == EventCompleted || t == EventFailed || t == EventCancelled
}

// ProgressEvent is an immutable, ordered notification of job state change.
// Sequence is strictly increasing per job; consumers that miss events
// reconcile against the job snapshot rather than replaying history.
type ProgressEvent struct {
	JobID     string        `json:"job_id"`
	Sequence  uint64        `json:"sequence"`
	Type      EventType     `json:"type"`
	Stage     string        `json:"stage,omitempty"`
	Percent   float64       `json:"percent"`
	Message   string        `json:"message,omitempty"`
	Found     int           `json:"contacts_found,omitempty"`
	Error     *JobError     `json:"error,omitempty"`
	Summary   ResultSummary `json:"summary"`
	Timestamp time.Time     `json:"timestamp"`
}
