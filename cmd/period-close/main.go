// period-close runs one period close from a JSON fixture and prints the outcome.
//
// Usage:
//
//	go run ./cmd/period-close -fixture close.json
//	go run ./cmd/period-close -fixture close.json -xlsx run.xlsx
//	go run ./cmd/period-close -fixture close.json -db -upload
//
// Without -db the entries go to an in-process sink and nothing is persisted.
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
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/mmdatafocus/settlement_backend/models/reports"
	"github.com/mmdatafocus/settlement_backend/utils"
	"github.com/mmdatafocus/settlement_backend/workflow"
	"gorm.io/gorm"
)

type fixture struct {
	CompanyCode  string                      `json:"company_code"`
	Year         int                         `json:"year"`
	Period       int                         `json:"period"`
	YearEnd      bool                        `json:"year_end"`
	PeriodStatus models.PeriodStatus         `json:"period_status"`
	Schedule     *models.CloseSchedule       `json:"schedule"`
	Config       *workflow.CloseEngineConfig `json:"config"`
	Data         workflow.CloseData          `json:"data"`
}

func main() {
	fixturePath := flag.String("fixture", "", "Path to the close fixture (JSON).")
	xlsxPath := flag.String("xlsx", "", "Optional: write the run workbook to this path.")
	useDB := flag.Bool("db", false, "Post entries and save the run to the database (DB_* env).")
	upload := flag.Bool("upload", false, "Upload the run workbook to GCS_BUCKET and print a signed link.")
	flag.Parse()

	if strings.TrimSpace(*fixturePath) == "" {
		fmt.Fprintln(os.Stderr, "-fixture is required")
		os.Exit(2)
	}
	raw, err := os.ReadFile(*fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read fixture: %v\n", err)
		os.Exit(1)
	}
	defaults := workflow.LoadCloseEngineConfig()
	fx := fixture{Config: &defaults}
	if err := json.Unmarshal(raw, &fx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse fixture: %v\n", err)
		os.Exit(1)
	}
	if fx.CompanyCode == "" || fx.Year == 0 || fx.Period < 1 || fx.Period > 12 {
		fmt.Fprintln(os.Stderr, "fixture needs company_code, year and period 1..12")
		os.Exit(2)
	}

	logger := config.GetLogger()
	ctx := utils.SetCompanyCodeInContext(context.Background(), fx.CompanyCode)
	ctx = utils.SetUserIdInContext(ctx, 0)
	ctx = utils.SetCorrelationIdInContext(ctx, "period-close-cli")

	var db *gorm.DB
	var sink workflow.JournalSink
	memory := workflow.NewMemoryJournalSink()
	sink = memory
	if *useDB {
		config.ConnectDatabaseWithRetry()
		db = config.GetDB()
		if db == nil {
			fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
			os.Exit(1)
		}
		sink = workflow.NewGormJournalSink(db, logger)
	}

	period := models.NewMonthlyPeriod(fx.Year, fx.Period)
	if fx.PeriodStatus != "" {
		period.Status = fx.PeriodStatus
	}
	if db != nil {
		if stored, err := models.FindFiscalPeriodForDate(ctx, db, fx.CompanyCode, period.StartDate); err == nil {
			period = stored
		}
	}

	schedule := models.StandardMonthlySchedule(fx.CompanyCode)
	if fx.YearEnd {
		schedule = models.YearEndSchedule(fx.CompanyCode)
	}
	if fx.Schedule != nil {
		schedule = *fx.Schedule
	}

	cfg := workflow.LoadCloseEngineConfig()
	if fx.Config != nil {
		cfg = *fx.Config
	}
	var balances workflow.GLBalanceReader = &fx.Data
	if fx.Data.GlBalances == nil && db != nil {
		balances = workflow.NewGormJournalSink(db, logger)
	}
	handlers := workflow.BuildCloseHandlers(workflow.CloseHandlerOptions{
		Data:           &fx.Data,
		Balances:       balances,
		Accruals:       workflow.NewAccrualGenerator(cfg.AccrualConfig(workflow.LoadAccrualGeneratorConfig()), logger),
		Depreciation:   workflow.NewDepreciationRunGenerator(workflow.LoadDepreciationRunConfig(), logger),
		Reconciliation: workflow.NewReconciliationEngine(workflow.LoadReconciliationConfig(), logger),
		TaxAccounts:    workflow.LoadTaxAccounts(),
		Logger:         logger,
	})
	engine := workflow.NewCloseEngine(cfg, handlers, logger)

	out, err := workflow.NewCloseService(engine, sink, db, logger).RunClose(ctx, fx.CompanyCode, period, schedule)
	if err != nil {
		fmt.Fprintf(os.Stderr, "close failed: %v\n", err)
		for _, b := range out.Readiness.Blockers {
			fmt.Fprintf(os.Stderr, "  blocker: %s\n", b)
		}
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode outcome: %v\n", err)
		os.Exit(1)
	}

	if *xlsxPath == "" && !*upload {
		return
	}
	rec, err := models.NewCloseRunRecord(out.Run, "period-close-cli")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build run record: %v\n", err)
		os.Exit(1)
	}
	entries := memory.RunEntries(out.Run.RunId)
	if db != nil {
		entries = out.Run.JournalEntries
	}
	f, err := reports.ExportCloseRun(rec, entries)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build workbook: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	if *xlsxPath != "" {
		if err := f.SaveAs(*xlsxPath); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", *xlsxPath, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", *xlsxPath)
	}
	if *upload {
		data, err := reports.WorkbookBytes(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to serialize workbook: %v\n", err)
			os.Exit(1)
		}
		objectName := fmt.Sprintf("close-runs/%s/%s.xlsx", fx.CompanyCode, out.Run.RunId)
		uri, err := utils.UploadBytesToGCS(ctx, objectName, data, utils.XlsxContentType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "upload failed: %v\n", err)
			os.Exit(1)
		}
		url, err := utils.SignedDownloadURL(ctx, objectName, 15*time.Minute)
		if err != nil {
			fmt.Fprintf(os.Stderr, "uploaded to %s but signing failed: %v\n", uri, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "uploaded %s\n%s\n", uri, url)
	}
}
