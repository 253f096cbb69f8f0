package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nina/mediascout/internal/api/middleware"
	"github.com/nina/mediascout/internal/domain"
	"github.com/nina/mediascout/internal/repository"
	"github.com/nina/mediascout/internal/service"
)

// SearchHandler handles AI search workflow endpoints.
type SearchHandler struct {
	sessions     *service.SessionManager
	orchestrator *service.Orchestrator
	hub          *service.ProgressHub
	exporter     *service.Exporter
	jobs         *repository.JobRepository
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - sessions: per-user session manager.
//   - orchestrator: job orchestrator for snapshots.
//   - hub: progress event hub.
//   - exporter: CSV exporter, may be nil when storage is disabled.
//   - jobs: persisted job snapshots, serves history and jobs from
//     before the last restart.
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(sessions *service.SessionManager, orchestrator *service.Orchestrator, hub *service.ProgressHub, exporter *service.Exporter, jobs *repository.JobRepository) *SearchHandler {
	return &SearchHandler{
		sessions:     sessions,
		orchestrator: orchestrator,
		hub:          hub,
		exporter:     exporter,
		jobs:         jobs,
	}
}

// submitRequest is the POST /search body. Filters bind to the explicit
// struct; unknown keys are rejected rather than silently dropped.
type submitRequest struct {
	Query      string               `json:"query"`
	Filters    domain.SearchFilters `json:"filters"`
	MaxResults int                  `json:"max_results"`
}

// Submit handles POST /api/v1/search.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Submit(c *gin.Context) {
	var req submitRequest
	dec := json.NewDecoder(c.Request.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		respondError(c, domain.NewError(domain.ErrValidation, "invalid request body: "+err.Error()))
		return
	}

	session := h.sessions.Session(middleware.UserID(c))
	job, estimate, err := session.Submit(c.Request.Context(), req.Query, req.Filters, req.MaxResults)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job":                        job,
		"estimated_duration_seconds": int(estimate.Seconds()),
	})
}

// GetStatus handles GET /api/v1/search/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) GetStatus(c *gin.Context) {
	job, err := h.ownedJob(c)
	if err != nil {
		// Jobs from before the last restart only exist as persisted
		// snapshots; candidates and events are gone but the outcome
		// survives.
		if domain.CodeOf(err) == domain.ErrNotFound && h.jobs != nil {
			if rec, derr := h.jobs.GetByID(c.Request.Context(), c.Param("id")); derr == nil {
				if rec.OwnerID == middleware.UserID(c) || middleware.UserRole(c) == middleware.RoleAdmin {
					c.JSON(http.StatusOK, rec)
					return
				}
			}
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// History handles GET /api/v1/search, listing the caller's recent
// search jobs newest first.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) History(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, domain.NewError(domain.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	records, err := h.jobs.ListByOwner(c.Request.Context(), middleware.UserID(c), limit)
	if err != nil {
		respondError(c, domain.WrapError(domain.ErrInternal, "failed to list search jobs", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": records})
}

// cancelRequest is the optional POST /search/:id/cancel body.
type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /api/v1/search/:id/cancel. Cancelling a finished
// job is a no-op and still returns the current snapshot.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Cancel(c *gin.Context) {
	if _, err := h.ownedJob(c); err != nil {
		respondError(c, err)
		return
	}

	var req cancelRequest
	// Body is optional.
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		respondError(c, domain.NewError(domain.ErrValidation, "invalid request body: "+err.Error()))
		return
	}

	session := h.sessions.Session(middleware.UserID(c))
	if err := session.Cancel(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		respondError(c, err)
		return
	}

	job, err := h.orchestrator.GetStatus(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, job)
}

// Events handles GET /api/v1/search/:id/events as a Server-Sent Events
// stream. A stream on a finished job emits one terminal event derived
// from the snapshot and closes; missed history is never replayed.
// Parameters:
//   - c: Gin request context.
// Returns: none (streams SSE).
func (h *SearchHandler) Events(c *gin.Context) {
	job, err := h.ownedJob(c)
	if err != nil {
		respondError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	// Subscribe before re-checking the snapshot so no terminal event
	// can slip between the check and the subscription.
	sub := h.hub.Subscribe(job.ID)
	defer sub.Close()

	snap, err := h.orchestrator.GetStatus(job.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if snap.Status.Terminal() {
		c.SSEvent("event", terminalEventFor(snap))
		c.Writer.Flush()
		return
	}

	clientGone := c.Request.Context().Done()
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			c.SSEvent("event", ev)
			c.Writer.Flush()
			if ev.Type.Terminal() {
				return
			}
		case <-clientGone:
			return
		}
	}
}

// terminalEventFor synthesizes the terminal event for a job that ended
// before the subscriber attached.
func terminalEventFor(job *domain.SearchJob) domain.ProgressEvent {
	ev := domain.ProgressEvent{
		JobID:   job.ID,
		Stage:   job.Progress.Stage,
		Percent: job.Progress.Percent,
		Found:   job.Summary.ContactsFound,
		Summary: job.Summary,
		Error:   job.Error,
	}
	switch job.Status {
	case domain.JobStatusFailed:
		ev.Type = domain.EventFailed
	case domain.JobStatusCancelled:
		ev.Type = domain.EventCancelled
	default:
		ev.Type = domain.EventCompleted
	}
	if job.CompletedAt != nil {
		ev.Timestamp = *job.CompletedAt
	}
	return ev
}

// importRequest is the POST /search/:id/import body. Empty candidate
// ids import every candidate of the job.
type importRequest struct {
	CandidateIDs []string `json:"candidate_ids"`
	Lists        []string `json:"lists"`
	Tags         []string `json:"tags"`
}

// Import handles POST /api/v1/search/:id/import.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Import(c *gin.Context) {
	if _, err := h.ownedJob(c); err != nil {
		respondError(c, err)
		return
	}

	var req importRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		respondError(c, domain.NewError(domain.ErrValidation, "invalid request body: "+err.Error()))
		return
	}

	jobID := c.Param("id")
	session := h.sessions.Session(middleware.UserID(c))
	session.Select(jobID, req.CandidateIDs...)

	report, err := session.ImportSelected(c.Request.Context(), jobID, req.Lists, req.Tags)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Export handles POST /api/v1/search/:id/export.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Export(c *gin.Context) {
	if _, err := h.ownedJob(c); err != nil {
		respondError(c, err)
		return
	}
	if h.exporter == nil {
		respondError(c, domain.NewError(domain.ErrValidation, "export is not configured on this deployment"))
		return
	}

	url, err := h.exporter.ExportCSV(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

// ownedJob loads the job and enforces ownership. Someone else's job id
// reads as not found rather than forbidden, so ids don't leak.
func (h *SearchHandler) ownedJob(c *gin.Context) (*domain.SearchJob, error) {
	job, err := h.orchestrator.GetStatus(c.Param("id"))
	if err != nil {
		return nil, err
	}
	if job.OwnerID != middleware.UserID(c) && middleware.UserRole(c) != middleware.RoleAdmin {
		return nil, domain.NewError(domain.ErrNotFound, "search job not found: "+c.Param("id"))
	}
	return job, nil
}
