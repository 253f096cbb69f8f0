package api

import (
	"github.com/gin-gonic/gin"
	"github.com/nina/mediascout/internal/api/handler"
	"github.com/nina/mediascout/internal/api/middleware"
	"github.com/nina/mediascout/internal/config"
	"github.com/nina/mediascout/internal/cost"
	"github.com/nina/mediascout/internal/logger"
	"github.com/nina/mediascout/internal/provider"
	"github.com/nina/mediascout/internal/ratelimit"
	"github.com/nina/mediascout/internal/repository"
	"github.com/nina/mediascout/internal/service"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Sessions     *service.SessionManager
	Orchestrator *service.Orchestrator
	Hub          *service.ProgressHub
	Exporter     *service.Exporter
	Jobs         *repository.JobRepository
	Contacts     *repository.ContactRepository
	Ledger       *cost.Ledger
	Costs        *repository.CostRepository
	Providers    []provider.SearchProvider
	Limiters     *ratelimit.Profiles
	Logger       *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps Deps, cfg *config.ServerConfig) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Identity())

	// Create handlers
	healthHandler := handler.NewHealthHandler(deps.Providers)
	searchHandler := handler.NewSearchHandler(deps.Sessions, deps.Orchestrator, deps.Hub, deps.Exporter, deps.Jobs)
	contactHandler := handler.NewContactHandler(deps.Contacts)
	costHandler := handler.NewCostHandler(deps.Ledger, deps.Costs)

	// Health check
	r.GET("/health", healthHandler.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// AI search workflow. Submission is the expensive entry point
		// and carries the research-class limit; reads share the cheaper
		// enrichment-class limit.
		search := v1.Group("/search")
		var submitLimit, readLimit, importLimit gin.HandlerFunc
		if deps.Limiters != nil {
			submitLimit = middleware.RateLimit(deps.Limiters.Research, deps.Limiters.Anonymous)
			readLimit = middleware.RateLimit(deps.Limiters.Enrichment, deps.Limiters.Anonymous)
			importLimit = middleware.RateLimit(deps.Limiters.DuplicateDetection, deps.Limiters.Anonymous)
		} else {
			submitLimit = middleware.RateLimit(nil, nil)
			readLimit = middleware.RateLimit(nil, nil)
			importLimit = middleware.RateLimit(nil, nil)
		}
		{
			search.POST("", submitLimit, searchHandler.Submit)
			search.GET("", readLimit, searchHandler.History)
			search.GET("/:id", readLimit, searchHandler.GetStatus)
			search.GET("/:id/events", searchHandler.Events)
			search.POST("/:id/cancel", readLimit, searchHandler.Cancel)
			search.POST("/:id/import", importLimit, searchHandler.Import)
			search.POST("/:id/export", readLimit, searchHandler.Export)
		}

		// Contacts
		v1.GET("/contacts", readLimit, contactHandler.List)
		v1.POST("/contacts", readLimit, contactHandler.BulkCreate)
		v1.GET("/contacts/:id", readLimit, contactHandler.Get)

		// Spend visibility
		v1.GET("/costs/summary", readLimit, costHandler.Summary)
	}

	return r
}
