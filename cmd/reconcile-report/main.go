// reconcile-report ties subledger snapshots to GL balances and prints the summary.
//
// Usage:
//
//	go run ./cmd/reconcile-report -company 1000 -as-of 2024-01-31 -snapshot snap.json
//	go run ./cmd/reconcile-report -company 1000 -as-of 2024-01-31 -snapshot snap.json -db -save -xlsx recon.xlsx
//
// The snapshot file holds {"gl_balances": {...}, "subledgers": {...}}. With -db and no
// gl_balances in the file, balances come from posted journals.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/models/reports"
	"github.com/mmdatafocus/settlement_backend/utils"
	"github.com/mmdatafocus/settlement_backend/workflow"
	"github.com/shopspring/decimal"
)

type snapshotFile struct {
	GlBalances map[string]decimal.Decimal `json:"gl_balances"`
	Subledgers workflow.SubledgerSnapshot `json:"subledgers"`
}

func main() {
	company := flag.String("company", "", "Company code (required).")
	asOf := flag.String("as-of", "", "Reconciliation date (YYYY-MM-DD, required).")
	snapshotPath := flag.String("snapshot", "", "Path to the subledger snapshot (JSON).")
	useDB := flag.Bool("db", false, "Read GL balances from the database (DB_* env).")
	save := flag.Bool("save", false, "With -db: store the report rows.")
	xlsxPath := flag.String("xlsx", "", "Optional: write the report workbook to this path.")
	flag.Parse()

	companyCode := strings.TrimSpace(*company)
	if companyCode == "" || strings.TrimSpace(*asOf) == "" {
		fmt.Fprintln(os.Stderr, "-company and -as-of are required")
		os.Exit(2)
	}
	asOfDate, err := time.Parse("2006-01-02", strings.TrimSpace(*asOf))
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -as-of: %v\n", err)
		os.Exit(2)
	}

	var snap snapshotFile
	if *snapshotPath != "" {
		raw, err := os.ReadFile(*snapshotPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to read snapshot: %v\n", err)
			os.Exit(1)
		}
		if err := json.Unmarshal(raw, &snap); err != nil {
			fmt.Fprintf(os.Stderr, "failed to parse snapshot: %v\n", err)
			os.Exit(1)
		}
	}

	logger := config.GetLogger()
	ctx := utils.SetCompanyCodeInContext(context.Background(), companyCode)
	ctx = utils.SetUserIdInContext(ctx, 0)

	balances := snap.GlBalances
	if *useDB {
		config.ConnectDatabaseWithRetry()
		db := config.GetDB()
		if db == nil {
			fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
			os.Exit(1)
		}
		if balances == nil {
			balances, err = workflow.NewGormJournalSink(db, logger).GLBalances(ctx, companyCode, asOfDate)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to load GL balances: %v\n", err)
				os.Exit(1)
			}
		}
	}

	engine := workflow.NewReconciliationEngine(workflow.LoadReconciliationConfig(), logger)
	report := engine.FullReconciliation(companyCode, asOfDate, balances, snap.Subledgers)
	fmt.Println(report.Summary())

	if *save {
		db := config.GetDB()
		if db == nil {
			fmt.Fprintln(os.Stderr, "-save needs -db")
			os.Exit(2)
		}
		if err := workflow.SaveReconciliationReport(ctx, db, report, ""); err != nil {
			fmt.Fprintf(os.Stderr, "failed to save report: %v\n", err)
			os.Exit(1)
		}
	}

	if *xlsxPath != "" {
		f, err := reports.ExportReconciliationReport(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to build workbook: %v\n", err)
			os.Exit(1)
		}
		err = f.SaveAs(*xlsxPath)
		_ = f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", *xlsxPath, err)
			os.Exit(1)
		}
	}

	if !report.AllReconciled {
		os.Exit(3)
	}
}
