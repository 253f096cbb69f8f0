package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nina/mediascout/internal/domain"
	"github.com/nina/mediascout/internal/repository"
)

// ContactHandler handles contact listing endpoints.
type ContactHandler struct {
	contacts *repository.ContactRepository
}

// NewContactHandler creates a new contact handler.
// Parameters:
//   - contacts: contact repository.
// Returns:
//   - *ContactHandler: initialized handler.
func NewContactHandler(contacts *repository.ContactRepository) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// List handles GET /api/v1/contacts with cursor pagination.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ContactHandler) List(c *gin.Context) {
	filters := repository.ContactFilters{
		Company: c.Query("company"),
		List:    c.Query("list"),
		Tag:     c.Query("tag"),
		JobID:   c.Query("job_id"),
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, domain.NewError(domain.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}

	contacts, next, err := h.contacts.List(c.Request.Context(), filters, c.Query("cursor"), limit)
	if err != nil {
		respondError(c, domain.WrapError(domain.ErrInternal, "failed to list contacts", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contacts":    contacts,
		"next_cursor": next,
	})
}

// bulkCreateRequest is the POST /contacts body for manual bulk adds.
type bulkCreateRequest struct {
	Contacts []struct {
		Name    string   `json:"name"`
		Email   string   `json:"email"`
		Title   string   `json:"title"`
		Company string   `json:"company"`
		Lists   []string `json:"lists"`
		Tags    []string `json:"tags"`
	} `json:"contacts"`
}

// BulkCreate handles POST /api/v1/contacts. Contacts whose email
// already exists are skipped, not rejected.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ContactHandler) BulkCreate(c *gin.Context) {
	var req bulkCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, domain.WrapError(domain.ErrValidation, "invalid request body", err))
		return
	}
	if len(req.Contacts) == 0 {
		respondError(c, domain.NewError(domain.ErrValidation, "contacts must not be empty"))
		return
	}

	contacts := make([]*domain.Contact, 0, len(req.Contacts))
	for i, in := range req.Contacts {
		if in.Name == "" || in.Email == "" {
			respondError(c, domain.NewError(domain.ErrValidation,
				fmt.Sprintf("contact %d: name and email are required", i)))
			return
		}
		contacts = append(contacts, &domain.Contact{
			ID:      uuid.New().String(),
			Name:    in.Name,
			Email:   in.Email,
			Title:   in.Title,
			Company: in.Company,
			Lists:   domain.StringList(in.Lists),
			Tags:    domain.StringList(in.Tags),
		})
	}

	created, err := h.contacts.CreateMany(c.Request.Context(), contacts)
	if err != nil {
		respondError(c, domain.WrapError(domain.ErrInternal, "failed to create contacts", err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"created": created,
		"skipped": int64(len(contacts)) - created,
	})
}

// Get handles GET /api/v1/contacts/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ContactHandler) Get(c *gin.Context) {
	contact, err := h.contacts.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, domain.NewError(domain.ErrNotFound, "contact not found: "+c.Param("id")))
		return
	}
	c.JSON(http.StatusOK, contact)
}
