package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/nina/mediascout/internal/domain"
	"github.com/nina/mediascout/internal/logger"
	"github.com/nina/mediascout/internal/storage"
)

// exportColumns is the fixed CSV header for contact exports.
var exportColumns = []string{"name", "email", "title", "company", "source_url", "confidence", "verification"}

// Exporter writes a job's candidate contacts to object storage as CSV.
type Exporter struct {
	jobs    *Orchestrator
	storage storage.ObjectStorage
	logger  *logger.Logger
}

// NewExporter creates an Exporter.
func NewExporter(jobs *Orchestrator, store storage.ObjectStorage, log *logger.Logger) *Exporter {
	return &Exporter{
		jobs:    jobs,
		storage: store,
		logger:  log,
	}
}

// ExportCSV writes the candidates of a finished job as a CSV object and
// returns its URL. Only terminal jobs export; a running job's candidate
// set is still moving.
//
// Parameters:
//   - ctx: request context.
//   - jobID: the job to export.
//
// Returns:
//   - string: URL of the stored CSV object.
//   - error: NOT_FOUND, VALIDATION for a non-terminal job, INTERNAL on
//     storage failure.
func (e *Exporter) ExportCSV(ctx context.Context, jobID string) (string, error) {
	job, err := e.jobs.GetStatus(jobID)
	if err != nil {
		return "", err
	}
	if !job.Status.Terminal() {
		return "", domain.NewError(domain.ErrValidation, "job is still running, export after it finishes")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportColumns); err != nil {
		return "", domain.WrapError(domain.ErrInternal, "failed to write csv header", err)
	}
	for _, c := range job.Candidates {
		row := []string{
			c.Name,
			c.Email,
			c.Title,
			c.Company,
			c.SourceURL,
			strconv.FormatFloat(c.Confidence, 'f', 2, 64),
			string(c.Verification),
		}
		if err := w.Write(row); err != nil {
			return "", domain.WrapError(domain.ErrInternal, "failed to write csv row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", domain.WrapError(domain.ErrInternal, "failed to flush csv", err)
	}

	key := fmt.Sprintf("exports/%s/contacts-%s.csv", jobID, time.Now().UTC().Format("20060102-150405"))
	size := int64(buf.Len())
	if err := e.storage.Upload(ctx, key, &buf, size, "text/csv"); err != nil {
		return "", domain.WrapError(domain.ErrInternal, "failed to upload export", err)
	}

	url := e.storage.GetURL(key)
	logger.CtxInfo(ctx, "exported contacts: job=%s rows=%d key=%s", jobID, len(job.Candidates), key)
	return url, nil
}
