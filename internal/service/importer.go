package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/nina/mediascout/internal/domain"
	"github.com/nina/mediascout/internal/logger"
	"github.com/nina/mediascout/internal/repository"
)

// ContactStore is the slice of the contact repository the importer
// needs. Satisfied by *repository.ContactRepository.
type ContactStore interface {
	Create(ctx context.Context, contact *domain.Contact) error
}

// CandidateSource provides candidate contacts per job and records
// import outcomes against them. Satisfied by *Orchestrator.
type CandidateSource interface {
	Candidates(ctx context.Context, jobID string) ([]domain.CandidateContact, error)
	MarkImported(ctx context.Context, jobID, candidateID, contactID string) error
}

// ImportError itemizes one candidate that could not be imported.
type ImportError struct {
	CandidateID string `json:"candidate_id"`
	Email       string `json:"email,omitempty"`
	Message     string `json:"message"`
}

// ImportReport summarizes an import batch. Total always equals
// Imported + Failed + AlreadyImported.
type ImportReport struct {
	Total           int           `json:"total"`
	Imported        int           `json:"imported"`
	Failed          int           `json:"failed"`
	AlreadyImported int           `json:"already_imported"`
	Errors          []ImportError `json:"errors,omitempty"`
}

// Importer promotes selected candidate contacts into the durable
// contact store. Imports are idempotent per candidate id and report
// per-item failures instead of aborting the batch.
type Importer struct {
	contacts   ContactStore
	candidates CandidateSource
	logger     *logger.Logger
	// batchSize bounds concurrent inserts per import call.
	batchSize int64
}

// NewImporter creates an Importer.
// Parameters:
//   - contacts: durable contact store.
//   - candidates: source of per-job candidates.
//   - log: logger instance.
func NewImporter(contacts ContactStore, candidates CandidateSource, log *logger.Logger) *Importer {
	return &Importer{
		contacts:   contacts,
		candidates: candidates,
		logger:     log,
		batchSize:  8,
	}
}

// ImportSelected imports the chosen candidates of a job into the
// contact store. A duplicate email counts as a per-item failure and is
// reported in the result; it never aborts the remaining items. A
// candidate already imported by a previous call is skipped and counted
// separately, so retrying a partially failed batch is safe.
//
// Parameters:
//   - ctx: request context.
//   - jobID: the job whose candidates to import from.
//   - candidateIDs: candidates to import. Empty means all.
//   - lists: list memberships applied to each new contact.
//   - tags: tags applied to each new contact.
//
// Returns:
//   - *ImportReport: per-item accounting for the batch.
//   - error: NOT_FOUND for an unknown job.
func (im *Importer) ImportSelected(ctx context.Context, jobID string, candidateIDs []string, lists, tags []string) (*ImportReport, error) {
	all, err := im.candidates.Candidates(ctx, jobID)
	if err != nil {
		return nil, err
	}

	selected := selectCandidates(all, candidateIDs)
	report := &ImportReport{Total: len(selected)}
	if len(selected) == 0 {
		return report, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = semaphore.NewWeighted(im.batchSize)
	)

	for _, cand := range selected {
		if cand.Imported {
			report.AlreadyImported++
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			report.Failed++
			report.Errors = append(report.Errors, ImportError{
				CandidateID: cand.ID,
				Message:     "import interrupted: " + err.Error(),
			})
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(cand domain.CandidateContact) {
			defer wg.Done()
			defer sem.Release(1)

			contact := &domain.Contact{
				ID:           uuid.New().String(),
				Name:         cand.Name,
				Email:        cand.Email,
				Title:        cand.Title,
				Company:      cand.Company,
				SourceURL:    cand.SourceURL,
				Confidence:   cand.Confidence,
				Lists:        append(domain.StringList{}, lists...),
				Tags:         append(domain.StringList{}, tags...),
				ImportedFrom: jobID,
			}

			err := im.contacts.Create(ctx, contact)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Imported++
				if merr := im.candidates.MarkImported(ctx, jobID, cand.ID, contact.ID); merr != nil {
					logger.CtxWarn(ctx, "failed to mark candidate imported: candidate=%s err=%v", cand.ID, merr)
				}
			case errors.Is(err, repository.ErrDuplicateEmail):
				report.Failed++
				report.Errors = append(report.Errors, ImportError{
					CandidateID: cand.ID,
					Email:       cand.Email,
					Message:     "contact with this email already exists",
				})
			default:
				report.Failed++
				report.Errors = append(report.Errors, ImportError{
					CandidateID: cand.ID,
					Email:       cand.Email,
					Message:     err.Error(),
				})
			}
		}(cand)
	}

	wg.Wait()

	logger.CtxInfo(ctx, "import batch finished: job=%s total=%d imported=%d failed=%d skipped=%d",
		jobID, report.Total, report.Imported, report.Failed, report.AlreadyImported)
	return report, nil
}

// selectCandidates filters candidates to the requested ids, preserving
// candidate order. Empty ids selects everything.
func selectCandidates(all []domain.CandidateContact, ids []string) []domain.CandidateContact {
	if len(ids) == 0 {
		return all
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]domain.CandidateContact, 0, len(ids))
	for _, c := range all {
		if _, ok := want[c.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}
