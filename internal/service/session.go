package service

import (
	"context"
	"sync"
	"time"

	"github.com/nina/mediascout/internal/domain"
)

// SearchSession is the per-user facade over the search workflow. It
// composes submission, progress, candidate selection, and import into
// one stateful surface and owns the in-memory selection set.
type SearchSession struct {
	userID       string
	orchestrator *Orchestrator
	hub          *ProgressHub
	importer     *Importer

	mu sync.Mutex
	// selection maps jobID -> selected candidate ids.
	selection map[string]map[string]struct{}
}

// NewSearchSession creates a session for one user.
func NewSearchSession(userID string, orchestrator *Orchestrator, hub *ProgressHub, importer *Importer) *SearchSession {
	return &SearchSession{
		userID:       userID,
		orchestrator: orchestrator,
		hub:          hub,
		importer:     importer,
		selection:    make(map[string]map[string]struct{}),
	}
}

// Submit starts a search job owned by the session's user.
func (s *SearchSession) Submit(ctx context.Context, query string, filters domain.SearchFilters, maxResults int) (*domain.SearchJob, time.Duration, error) {
	return s.orchestrator.Submit(ctx, s.userID, query, filters, maxResults)
}

// Cancel requests cancellation of a job.
func (s *SearchSession) Cancel(ctx context.Context, jobID, reason string) error {
	return s.orchestrator.Cancel(ctx, jobID, reason)
}

// Snapshot returns the current state of a job.
func (s *SearchSession) Snapshot(jobID string) (*domain.SearchJob, error) {
	return s.orchestrator.GetStatus(jobID)
}

// Subscribe attaches to a job's progress stream.
func (s *SearchSession) Subscribe(jobID string) *Subscription {
	return s.hub.Subscribe(jobID)
}

// Select marks candidates of a job as chosen for import. Selecting the
// same candidate twice is a no-op.
func (s *SearchSession) Select(jobID string, candidateIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.selection[jobID]
	if !ok {
		set = make(map[string]struct{})
		s.selection[jobID] = set
	}
	for _, id := range candidateIDs {
		set[id] = struct{}{}
	}
}

// Deselect removes candidates from the selection set.
func (s *SearchSession) Deselect(jobID string, candidateIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.selection[jobID]; ok {
		for _, id := range candidateIDs {
			delete(set, id)
		}
	}
}

// Selected returns the currently selected candidate ids for a job.
func (s *SearchSession) Selected(jobID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.selection[jobID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// ImportSelected imports the session's selected candidates for a job.
// Successfully imported candidates leave the selection set; failed ones
// stay selected so the user can retry after fixing the cause.
func (s *SearchSession) ImportSelected(ctx context.Context, jobID string, lists, tags []string) (*ImportReport, error) {
	ids := s.Selected(jobID)
	report, err := s.importer.ImportSelected(ctx, jobID, ids, lists, tags)
	if err != nil {
		return nil, err
	}

	// Drop imported (and previously imported) candidates from the set.
	failed := make(map[string]struct{}, len(report.Errors))
	for _, e := range report.Errors {
		failed[e.CandidateID] = struct{}{}
	}
	s.mu.Lock()
	if set, ok := s.selection[jobID]; ok {
		for id := range set {
			if _, stillFailed := failed[id]; !stillFailed {
				delete(set, id)
			}
		}
		if len(set) == 0 {
			delete(s.selection, jobID)
		}
	}
	s.mu.Unlock()

	return report, nil
}

// SessionManager hands out one SearchSession per user.
type SessionManager struct {
	orchestrator *Orchestrator
	hub          *ProgressHub
	importer     *Importer

	mu       sync.Mutex
	sessions map[string]*SearchSession
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(orchestrator *Orchestrator, hub *ProgressHub, importer *Importer) *SessionManager {
	return &SessionManager{
		orchestrator: orchestrator,
		hub:          hub,
		importer:     importer,
		sessions:     make(map[string]*SearchSession),
	}
}

// Session returns the user's session, creating it on first use.
func (m *SessionManager) Session(userID string) *SearchSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[userID]; ok {
		return s
	}
	s := NewSearchSession(userID, m.orchestrator, m.hub, m.importer)
	m.sessions[userID] = s
	return s
}
