package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/nina/mediascout/internal/config"
	"github.com/nina/mediascout/internal/logger"
	"github.com/nina/mediascout/internal/repository"
)

// costreport prints aggregate AI search spend from the cost ledger,
// broken down by provider and by user over a trailing window.
func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "warn",
		Format:      "text",
		ServiceName: "mediascout-costreport",
	})
	logger.SetDefault(appLogger)

	configPath := flag.String("config", "", "Path to config file")
	sinceHours := flag.Int("since", 24, "Reporting window in hours")
	asJSON := flag.Bool("json", false, "Emit the report as JSON instead of a table")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	costRepo := repository.NewCostRepository(db)
	since := time.Now().Add(-time.Duration(*sinceHours) * time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	providers, err := costRepo.SummarizeByProvider(ctx, since)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to summarize by provider")
	}
	users, err := costRepo.SummarizeByUser(ctx, since)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to summarize by user")
	}

	if *asJSON {
		report := map[string]interface{}{
			"since":     since.UTC().Format(time.RFC3339),
			"providers": providers,
			"users":     users,
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			appLogger.WithError(err).Fatal("Failed to encode report")
		}
		return
	}

	fmt.Printf("Cost report since %s\n\n", since.UTC().Format(time.RFC3339))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tOPS\tTOKENS\tCOST")
	var totalCost float64
	var totalOps int64
	for _, p := range providers {
		fmt.Fprintf(w, "%s\t%d\t%d\t$%.4f\n", p.Provider, p.Operations, p.Tokens, p.Cost)
		totalCost += p.Cost
		totalOps += p.Operations
	}
	fmt.Fprintf(w, "TOTAL\t%d\t\t$%.4f\n", totalOps, totalCost)
	w.Flush()

	fmt.Fprintln(os.Stdout)

	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tOPS\tCOST")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%d\t$%.4f\n", u.UserID, u.Operations, u.Cost)
	}
	w.Flush()
}
