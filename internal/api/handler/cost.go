package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nina/mediascout/internal/api/middleware"
	"github.com/nina/mediascout/internal/cost"
	"github.com/nina/mediascout/internal/domain"
	"github.com/nina/mediascout/internal/repository"
)

// CostHandler exposes spend visibility endpoints.
type CostHandler struct {
	ledger *cost.Ledger
	repo   *repository.CostRepository
}

// NewCostHandler creates a new cost handler.
// Parameters:
//   - ledger: cost ledger for budget status.
//   - repo: cost repository for entry queries.
// Returns:
//   - *CostHandler: initialized handler.
func NewCostHandler(ledger *cost.Ledger, repo *repository.CostRepository) *CostHandler {
	return &CostHandler{ledger: ledger, repo: repo}
}

// Summary handles GET /api/v1/costs/summary. Users see their own daily
// budget status and recent entries; admins additionally get per-provider
// totals for the requested period.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CostHandler) Summary(c *gin.Context) {
	userID := middleware.UserID(c)
	ctx := c.Request.Context()

	status, err := h.ledger.CheckBudget(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if n, perr := strconv.Atoi(raw); perr == nil && n > 0 {
			limit = n
		}
	}
	recent, err := h.repo.RecentByUser(ctx, userID, limit)
	if err != nil {
		respondError(c, domain.WrapError(domain.ErrInternal, "failed to load recent cost entries", err))
		return
	}

	body := gin.H{
		"budget": status,
		"recent": recent,
	}

	if middleware.UserRole(c) == middleware.RoleAdmin {
		hours := 24
		if raw := c.Query("since_hours"); raw != "" {
			if n, perr := strconv.Atoi(raw); perr == nil && n > 0 {
				hours = n
			}
		}
		since := time.Now().Add(-time.Duration(hours) * time.Hour)
		providers, perr := h.repo.SummarizeByProvider(ctx, since)
		if perr != nil {
			respondError(c, domain.WrapError(domain.ErrInternal, "failed to summarize provider spend", perr))
			return
		}
		body["providers"] = providers
	}

	c.JSON(http.StatusOK, body)
}
