package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nina/mediascout/internal/api"
	"github.com/nina/mediascout/internal/config"
	"github.com/nina/mediascout/internal/cost"
	"github.com/nina/mediascout/internal/logger"
	"github.com/nina/mediascout/internal/provider"
	"github.com/nina/mediascout/internal/ratelimit"
	"github.com/nina/mediascout/internal/repository"
	"github.com/nina/mediascout/internal/resilience"
	"github.com/nina/mediascout/internal/service"
	"github.com/nina/mediascout/internal/storage"
)

func main() {
	// Load configuration
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "mediascout",
		File:        cfg.Log.File,
		FileOnly:    cfg.Log.FileOnly,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
		Compress:    cfg.Log.Compress,
	})
	logger.SetDefault(appLogger)
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	// Initialize repositories
	contactRepo := repository.NewContactRepository(db)
	jobRepo := repository.NewJobRepository(db)
	costRepo := repository.NewCostRepository(db)

	ctx := context.Background()

	// Rate-limit store: Redis when configured, in-memory otherwise.
	var limitStore ratelimit.Store
	if cfg.Redis.URL != "" {
		redisStore, err := ratelimit.NewRedisStore(ctx, cfg.Redis.URL)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisStore.Close()
		limitStore = redisStore
	} else {
		memStore := ratelimit.NewMemoryStore(time.Minute)
		defer memStore.Close()
		limitStore = memStore
		appLogger.Info("No Redis configured, rate limits are per-process")
	}
	limiters := ratelimit.NewProfiles(limitStore, &cfg.RateLimit)

	// Search providers with shared authority heuristics.
	authority := provider.AuthorityConfig{
		TrustedDomains: cfg.Search.TrustedDomains,
		Boost:          cfg.Search.AuthorityBoost,
	}
	providers := make([]provider.SearchProvider, 0, len(cfg.Providers.Endpoints))
	for _, pc := range cfg.Providers.Endpoints {
		providers = append(providers, provider.NewHTTPProvider(provider.HTTPConfig{
			Name:           pc.Name,
			BaseURL:        pc.BaseURL,
			APIKey:         pc.APIKey,
			MaxResults:     pc.MaxResults,
			CostPerRequest: pc.CostPerReq,
			Authority:      authority,
		}))
	}
	if len(providers) == 0 {
		appLogger.Warn("No search providers configured, submissions will fail")
	}

	// Resilience: one breaker per provider, shared retry policy.
	breakers := resilience.NewRegistry(resilience.BreakerConfig{
		FailureThreshold: cfg.Providers.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Providers.Breaker.RecoveryTimeout,
		MonitoringPeriod: cfg.Providers.Breaker.MonitoringPeriod,
	})
	retryPolicy := resilience.RetryPolicy{
		MaxAttempts: cfg.Providers.Retry.MaxAttempts,
		BaseDelay:   cfg.Providers.Retry.BaseDelay,
		MaxDelay:    cfg.Providers.Retry.MaxDelay,
		Multiplier:  cfg.Providers.Retry.Multiplier,
		Jitter:      cfg.Providers.Retry.Jitter,
	}

	// Cost ledger with optional webhook alerting.
	var notifier cost.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = cost.NewWebhookNotifier(cfg.Notify.WebhookURL)
	}
	ledger := cost.NewLedger(costRepo, cfg.Budget, notifier)

	// Object storage for CSV exports, optional.
	var exporter *service.Exporter
	var objectStorage storage.ObjectStorage
	if cfg.Storage.Enabled {
		s3, err := storage.NewS3Storage(cfg.Storage)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
		objectStorage = s3
	}

	// Core workflow services
	hub := service.NewProgressHub(appLogger)
	materializer := service.NewMaterializer()
	// The research window is charged once, by the API middleware; the
	// orchestrator charges the separate aiOperations class so a single
	// submission is never billed twice against the same profile.
	orchestrator := service.NewOrchestrator(
		providers,
		breakers,
		retryPolicy,
		limiters.AIOperations,
		ledger,
		hub,
		jobRepo,
		materializer,
		appLogger,
		service.OrchestratorConfigFrom(cfg.Search, cfg.Providers),
	)
	defer orchestrator.Close()
	importer := service.NewImporter(contactRepo, orchestrator, appLogger)
	sessions := service.NewSessionManager(orchestrator, hub, importer)
	if objectStorage != nil {
		exporter = service.NewExporter(orchestrator, objectStorage, appLogger)
	}

	// Setup router
	router := api.SetupRouter(api.Deps{
		Sessions:     sessions,
		Orchestrator: orchestrator,
		Hub:          hub,
		Exporter:     exporter,
		Jobs:         jobRepo,
		Contacts:     contactRepo,
		Ledger:       ledger,
		Costs:        costRepo,
		Providers:    providers,
		Limiters:     limiters,
		Logger:       appLogger,
	}, &cfg.Server)

	// Create HTTP server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Fatal("Server forced to shutdown")
	}

	appLogger.Info("Server exited")
}
