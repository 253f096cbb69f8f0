package service

import (
	"context"
	"sort"
	"testing"

	"github.com/nina/mediascout/internal/domain"
)

func newTestSession(t *testing.T, candidates map[string][]domain.CandidateContact, store *fakeContactStore) *SearchSession {
	t.Helper()
	source := &fakeCandidateSource{candidates: candidates}
	importer := NewImporter(store, source, nil)
	hub := NewProgressHub(nil)
	return NewSearchSession("user-1", nil, hub, importer)
}

func TestSession_SelectionSet(t *testing.T) {
	s := newTestSession(t, nil, &fakeContactStore{})

	s.Select("job-1", "a", "b")
	s.Select("job-1", "b", "c")
	got := s.Selected("job-1")
	sort.Strings(got)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("selection set wrong: %v", got)
	}

	s.Deselect("job-1", "b")
	got = s.Selected("job-1")
	sort.Strings(got)
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Errorf("deselect failed: %v", got)
	}

	if n := len(s.Selected("other-job")); n != 0 {
		t.Errorf("expected empty selection for other job, got %d", n)
	}
}

func TestSession_ImportClearsImportedFromSelection(t *testing.T) {
	store := &fakeContactStore{existing: map[string]struct{}{
		"bob@apnews.com": {},
	}}
	s := newTestSession(t, map[string][]domain.CandidateContact{
		"job-1": testCandidates("job-1"),
	}, store)

	s.Select("job-1", "job-1-0", "job-1-1", "job-1-2")

	report, err := s.ImportSelected(context.Background(), "job-1", nil, nil)
	if err != nil {
		t.Fatalf("ImportSelected: %v", err)
	}
	if report.Imported != 2 || report.Failed != 1 {
		t.Fatalf("expected imported=2 failed=1, got %+v", report)
	}

	// The failed duplicate stays selected for retry; the rest are gone.
	remaining := s.Selected("job-1")
	if len(remaining) != 1 || remaining[0] != "job-1-1" {
		t.Errorf("expected only the failed candidate to stay selected, got %v", remaining)
	}
}
