package reports

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func reopen(t *testing.T, f *excelize.File) *excelize.File {
	t.Helper()
	data, err := WorkbookBytes(f)
	require.NoError(t, err)
	out, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { _ = out.Close() })
	return out
}

func sampleRun() *models.PeriodCloseRun {
	period := models.NewMonthlyPeriod(2024, 1)
	run := models.NewPeriodCloseRun("CLOSE-00000001", "1000", period)
	run.Status = models.PeriodCloseStatusCompletedWithErrors

	ok := models.NewCloseTaskResult(models.CloseTaskRunDepreciation, "1000", period)
	ok.Status = models.TaskCompleted()
	ok.JournalEntriesCreated = 1
	ok.TotalAmount = decimal.NewFromInt(1800)

	failed := models.NewCloseTaskResult(models.CloseTaskReconcileArToGl, "1000", period)
	failed.Status = models.TaskFailed("Reconciliation difference: 12.5")
	failed.TotalAmount = decimal.RequireFromString("12.5")

	run.TaskResults = []models.CloseTaskResult{ok, failed}
	run.TotalJournalEntries = 1
	run.Errors = []string{"Reconcile AR to GL: Reconciliation difference: 12.5"}

	entry := models.JournalEntry{
		EntryId:     uuid.MustParse("00000000-0000-4000-8000-000000000001"),
		CompanyCode: "1000",
		PostingDate: period.EndDate,
		DocumentId:  "DEPR-FA1",
		Source:      models.JournalSourceDepreciation,
	}
	entry.AddLine(models.DebitLine(1, "6100", decimal.NewFromInt(1800)))
	entry.AddLine(models.CreditLine(2, "1510", decimal.NewFromInt(1800)))
	run.JournalEntries = []models.JournalEntry{entry}
	return run
}

func TestExportCloseRun_HeaderTasksAndJournal(t *testing.T) {
	run := sampleRun()
	rec, err := models.NewCloseRunRecord(run, "cid-1")
	require.NoError(t, err)

	f, err := ExportCloseRun(rec, run.JournalEntries)
	require.NoError(t, err)
	out := reopen(t, f)

	assert.Equal(t, []string{closeRunSheet, journalSheet}, out.GetSheetList())

	v, err := out.GetCellValue(closeRunSheet, "B1")
	require.NoError(t, err)
	assert.Equal(t, "CLOSE-00000001", v)
	v, _ = out.GetCellValue(closeRunSheet, "B3")
	assert.Equal(t, "2024-01", v)
	v, _ = out.GetCellValue(closeRunSheet, "B7")
	assert.Equal(t, "Reconcile AR to GL: Reconciliation difference: 12.5", v)

	rows, err := out.GetRows(closeRunSheet)
	require.NoError(t, err)
	var tasks []string
	for _, r := range rows {
		if len(r) > 2 && (r[2] == "Completed" || r[2] == "Failed") {
			tasks = append(tasks, r[1])
		}
	}
	assert.Equal(t, []string{"Run Depreciation", "Reconcile AR to GL"}, tasks)

	lines, err := out.GetRows(journalSheet)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "6100", lines[1][5])
	assert.Equal(t, "1510", lines[2][5])
}

func TestExportCloseRun_NoEntriesNoJournalSheet(t *testing.T) {
	run := sampleRun()
	rec, err := models.NewCloseRunRecord(run, "")
	require.NoError(t, err)

	f, err := ExportCloseRun(rec, nil)
	require.NoError(t, err)
	out := reopen(t, f)
	assert.Equal(t, []string{closeRunSheet}, out.GetSheetList())
}

func TestExportReconciliationReport(t *testing.T) {
	asOf := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	report := models.FullReconciliationReport{
		CompanyCode: "1000",
		AsOfDate:    asOf,
		AR: models.ReconciliationResult{
			ReconciliationId: "RECON-AR-00000001",
			SubledgerType:    models.SubledgerTypeAR,
			GlAccount:        "1200",
			GlBalance:        decimal.NewFromInt(1000),
			SubledgerBalance: decimal.NewFromInt(900),
			Difference:       decimal.NewFromInt(100),
			Status:           models.ReconciliationStatusPartiallyReconciled,
			UnreconciledItems: []models.UnreconciledItem{{
				EntryType:      "Timing Difference",
				DocumentNumber: "INV-9",
				Amount:         decimal.NewFromInt(100),
			}},
		},
		AP:              models.ReconciliationResult{ReconciliationId: "RECON-AP-00000002", SubledgerType: models.SubledgerTypeAP, Status: models.ReconciliationStatusReconciled},
		FaAssets:        models.ReconciliationResult{ReconciliationId: "RECON-FA-00000003", SubledgerType: models.SubledgerTypeFA, Status: models.ReconciliationStatusReconciled},
		FaDepreciation:  models.ReconciliationResult{ReconciliationId: "RECON-FA-00000004", SubledgerType: models.SubledgerTypeFA, Status: models.ReconciliationStatusReconciled},
		Inventory:       models.ReconciliationResult{ReconciliationId: "RECON-INV-00000005", SubledgerType: models.SubledgerTypeInventory, Status: models.ReconciliationStatusReconciled},
		AllReconciled:   false,
		TotalDifference: decimal.NewFromInt(100),
	}

	f, err := ExportReconciliationReport(report)
	require.NoError(t, err)
	out := reopen(t, f)

	assert.Equal(t, []string{reconciliationSheet, unreconciledSheet}, out.GetSheetList())
	v, _ := out.GetCellValue(reconciliationSheet, "A4")
	assert.Equal(t, "RECON-AR-00000001", v)
	v, _ = out.GetCellValue(reconciliationSheet, "G4")
	assert.Equal(t, "PARTIAL", v)
	v, _ = out.GetCellValue(reconciliationSheet, "B10")
	assert.Equal(t, "UNRECONCILED", v)
	v, _ = out.GetCellValue(unreconciledSheet, "C2")
	assert.Equal(t, "INV-9", v)
}
