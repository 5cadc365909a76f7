// resolution-repair finishes duplicate resolutions that were interrupted between
// overwriting the registered driver and deleting the staged row.
//
// Usage:
//
//	go run ./cmd/resolution-repair [-dry-run]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/mmdatafocus/fleet_backend/workflow"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "Report open resolutions without changing anything")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if os.Getenv("REDIS_ADDRESS") != "" {
		config.ConnectRedisWithRetry()
	}

	logger := config.GetLogger()
	store := models.NewDriverStore(db)
	resolver := workflow.NewResolver(store, store, store, utils.RedisLocker{Prefix: "lock"}, logger)

	report, err := resolver.RepairOpenResolutions(ctx, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "repair failed: %v\n", err)
		os.Exit(1)
	}

	mode := "APPLY"
	if *dryRun {
		mode = "DRY RUN"
	}
	fmt.Printf("%s closed=%d reapplied=%d failed=%d\n", mode, report.Closed, report.Reapplied, report.Failed)
	for _, e := range report.Entries {
		fmt.Printf("  resolution=%d pending=%s driver=%s action=%s %s\n", e.ResolutionId, e.PendingId, e.DriverId, e.Action, e.Error)
	}

	if !*dryRun && report.Closed+report.Reapplied > 0 {
		if _, err := utils.BumpDriverViewGeneration(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "warning: view generation not bumped: %v\n", err)
		}
	}
	if report.Failed > 0 {
		os.Exit(2)
	}
}
