// import-drivers runs a local driver spreadsheet through the batch classifier.
//
// Usage:
//
//	go run ./cmd/import-drivers -file drivers.xlsx -mapping mapping.json [-sheet Plan1] [-uploaded-by 3] [-dry-run]
//
// mapping.json maps logical fields to header text, e.g. {"full_name":"Nome","cpf":"CPF","cnh":"CNH"}.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/fleet_backend/config"
	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/mmdatafocus/fleet_backend/utils"
	"github.com/mmdatafocus/fleet_backend/workflow"
)

func main() {
	filePath := flag.String("file", "", "Required: path to the .xlsx file")
	mappingPath := flag.String("mapping", "", "Required: path to the column mapping JSON")
	sheet := flag.String("sheet", "", "Optional: sheet name (defaults to the first sheet)")
	uploadedBy := flag.Int("uploaded-by", 0, "Optional: operator id recorded on staged rows")
	dryRun := flag.Bool("dry-run", false, "Classify against the current drivers without writing")
	flag.Parse()

	if strings.TrimSpace(*filePath) == "" || strings.TrimSpace(*mappingPath) == "" {
		fmt.Fprintln(os.Stderr, "-file and -mapping are required")
		os.Exit(1)
	}

	rawMapping, err := os.ReadFile(*mappingPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read mapping: %v\n", err)
		os.Exit(1)
	}
	var mapping workflow.ColumnMapping
	if err := json.Unmarshal(rawMapping, &mapping); err != nil {
		fmt.Fprintf(os.Stderr, "invalid mapping JSON: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Open(*filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open file: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	result, err := workflow.ReadDriverSheet(f, *sheet, mapping)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read sheet: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("sheet=%q rows=%d\n", result.Sheet, len(result.Rows))

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if err := models.AutoMigrate(db); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	logger := config.GetLogger()
	store := models.NewDriverStore(db)

	if *dryRun {
		keys, err := store.ListDriverKeys(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load drivers: %v\n", err)
			os.Exit(1)
		}
		fields, skipped := workflow.PrepareRows(result.Rows, time.Now())
		classified := workflow.ClassifyBatch(fields, keys)
		fmt.Printf("DRY RUN insert=%d stage=%d skipped=%d\n", len(classified.Accepted), len(classified.Staged), skipped)
		for _, s := range classified.Staged {
			fmt.Printf("  stage cpf=%s reason=%s original=%s\n", s.Fields.Cpf, s.Reason.String(), utils.DereferencePtr(s.OriginalDriverId))
		}
		return
	}

	var operator *int
	if *uploadedBy > 0 {
		operator = uploadedBy
	}
	importer := workflow.NewImporter(store, store, logger)
	res, err := importer.Import(ctx, result.Rows, operator)
	n := workflow.ImportNotification(res, err)
	_ = workflow.LogNotifier{Logger: logger}.Notify(ctx, n)
	fmt.Printf("inserted=%d staged=%d skipped=%d\n", res.Inserted, res.Staged, res.Skipped)
	if err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		os.Exit(1)
	}
	if _, err := utils.BumpDriverViewGeneration(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "warning: view generation not bumped: %v\n", err)
	}
}
