package workflow

import (
	"context"
	"testing"

	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/shopspring/decimal"
)

func closeRequest(task models.CloseTask) CloseRequest {
	return CloseRequest{CompanyCode: testCompany, Period: models.NewMonthlyPeriod(2024, 12), Task: task}
}

func taxInput() *models.TaxProvisionInput {
	return &models.TaxProvisionInput{
		CompanyCode:          testCompany,
		FiscalYear:           2024,
		PretaxIncome:         d("1000000"),
		PermanentDifferences: []models.TaxAdjustment{{Description: "Fines", Amount: d("20000"), IsAddition: true}},
		TemporaryDifferences: []models.TaxAdjustment{{Description: "Accelerated depreciation", Amount: d("40000"), IsAddition: false}},
		StatutoryRate:        d("25"),
	}
}

func TestCalculateTaxProvision(t *testing.T) {
	p := models.CalculateTaxProvision(*taxInput())
	if !p.TaxableIncome.Equal(d("1020000")) || !p.CurrentTaxExpense.Equal(d("255000")) {
		t.Fatalf("current=%s taxable=%s", p.CurrentTaxExpense, p.TaxableIncome)
	}
	if !p.DeferredTaxExpense.Equal(d("-10000")) || !p.TotalTaxExpense.Equal(d("245000")) {
		t.Fatalf("deferred=%s total=%s", p.DeferredTaxExpense, p.TotalTaxExpense)
	}
	if !p.EffectiveRate.Equal(d("24.5")) {
		t.Fatalf("effective=%s", p.EffectiveRate)
	}
}

func TestTaxProvisionHandler(t *testing.T) {
	reg := BuildCloseHandlers(CloseHandlerOptions{Data: &CloseData{TaxInput: taxInput()}})
	entries, total, err := reg[models.CloseTaskCalculateTaxProvision].Entries(context.Background(), closeRequest(models.CloseTaskCalculateTaxProvision))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 || !total.Equal(d("245000")) {
		t.Fatalf("entries=%d total=%s", len(entries), total)
	}
	current, deferred := entries[0], entries[1]
	if current.DocumentId != "TAX00000001" || current.Lines[0].AccountCode != "8000" || current.Lines[1].AccountCode != "2500" {
		t.Fatalf("current entry=%+v", current)
	}
	// A deferred benefit books from the deferred account back to expense.
	if deferred.Lines[0].AccountCode != "2600" || deferred.Lines[1].AccountCode != "8000" || !deferred.Lines[0].DebitAmount.Equal(d("10000")) {
		t.Fatalf("deferred entry=%+v", deferred)
	}
	if current.Description != "Current Tax Provision FY2024" {
		t.Fatalf("description=%q", current.Description)
	}
}

func TestTaxProvisionHandler_OtherCompanyIsNoop(t *testing.T) {
	in := taxInput()
	in.CompanyCode = "2000"
	reg := BuildCloseHandlers(CloseHandlerOptions{Data: &CloseData{TaxInput: in}})
	entries, total, err := reg[models.CloseTaskCalculateTaxProvision].Entries(context.Background(), closeRequest(models.CloseTaskCalculateTaxProvision))
	if err != nil || len(entries) != 0 || !total.IsZero() {
		t.Fatalf("expected no-op, got %d entries total %s err %v", len(entries), total, err)
	}
}

func TestReconcileHandler_FaSumsBothSides(t *testing.T) {
	asset := truck()
	asset.AccumulatedDepreciation = d("1800")
	data := &CloseData{
		Subledgers: SubledgerSnapshot{FixedAssets: []models.FixedAssetRecord{asset}},
		// Cost side 100 over, accumulated side 100 under.
		GlBalances: map[string]decimal.Decimal{"1500": d("120100"), "1500-ACCUM": d("1700")},
	}
	reg := BuildCloseHandlers(CloseHandlerOptions{Data: data})
	diff, err := reg[models.CloseTaskReconcileFaToGl].Reconcile(context.Background(), closeRequest(models.CloseTaskReconcileFaToGl))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !diff.Equal(d("200")) {
		t.Fatalf("offsetting FA breaks must add up, got %s", diff)
	}
}

func TestAccrualHandler_SplitsByTask(t *testing.T) {
	revenue := models.NewAccrualDefinition("R-1", testCompany, "Unbilled services", models.AccrualTypeAccruedRevenue, "4100", "1250").
		WithFixedAmount(d("900"))
	data := &CloseData{AccrualDefinitions: []models.AccrualDefinition{accruedExpense("E-1", "400"), revenue}}
	reg := BuildCloseHandlers(CloseHandlerOptions{Data: data})

	entries, total, err := reg[models.CloseTaskPostAccruedExpenses].Entries(context.Background(), closeRequest(models.CloseTaskPostAccruedExpenses))
	if err != nil || len(entries) != 2 || !total.Equal(d("400")) {
		t.Fatalf("expenses: %d entries total %s err %v", len(entries), total, err)
	}
	entries, total, err = reg[models.CloseTaskPostAccruedRevenue].Entries(context.Background(), closeRequest(models.CloseTaskPostAccruedRevenue))
	if err != nil || len(entries) != 2 || !total.Equal(d("900")) {
		t.Fatalf("revenue: %d entries total %s err %v", len(entries), total, err)
	}
	if entries[0].Lines[0].AccountCode != "1250" {
		t.Fatalf("accrued revenue debits the accrual account, got %+v", entries[0].Lines)
	}
}

func TestCloseWithBuiltHandlers_DepreciationFeedsFaReconciliation(t *testing.T) {
	data := &CloseData{
		FixedAssets: []models.FixedAssetRecord{truck()},
		GlBalances:  map[string]decimal.Decimal{"1500": d("120000"), "1500-ACCUM": d("1800")},
	}
	data.Subledgers.FixedAssets = data.FixedAssets
	engine := NewCloseEngine(DefaultCloseEngineConfig(), BuildCloseHandlers(CloseHandlerOptions{Data: data}), nil)

	run := engine.ExecuteClose(context.Background(), testCompany, january(), schedule(
		task(models.CloseTaskRunDepreciation, 1),
		task(models.CloseTaskReconcileFaToGl, 2).After(models.CloseTaskRunDepreciation),
	))
	if run.Status != models.PeriodCloseStatusCompleted {
		t.Fatalf("status=%s errors=%v", run.Status, run.Errors)
	}
	dep := mustResult(t, run, models.CloseTaskRunDepreciation)
	if dep.JournalEntriesCreated != 1 || !dep.TotalAmount.Equal(d("1800")) {
		t.Fatalf("depreciation=%+v", dep)
	}
	if !data.FixedAssets[0].AccumulatedDepreciation.Equal(d("1800")) {
		t.Fatalf("fixture asset should be updated in place")
	}
}

func TestCloseWithBuiltHandlers_AutoReverseAccruals(t *testing.T) {
	tests := []struct {
		name        string
		autoReverse bool
		wantEntries int
	}{
		{name: "reversal posted", autoReverse: true, wantEntries: 2},
		{name: "reversal suppressed", autoReverse: false, wantEntries: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultCloseEngineConfig()
			cfg.AutoReverseAccruals = tt.autoReverse
			data := &CloseData{AccrualDefinitions: []models.AccrualDefinition{accruedExpense("E-1", "400")}}
			reg := BuildCloseHandlers(CloseHandlerOptions{
				Data:     data,
				Accruals: NewAccrualGenerator(cfg.AccrualConfig(DefaultAccrualGeneratorConfig()), nil),
			})

			run := NewCloseEngine(cfg, reg, nil).ExecuteClose(context.Background(), testCompany, january(), schedule(
				task(models.CloseTaskPostAccruedExpenses, 1),
			))
			if run.Status != models.PeriodCloseStatusCompleted {
				t.Fatalf("status=%s errors=%v", run.Status, run.Errors)
			}
			if len(run.JournalEntries) != tt.wantEntries {
				t.Fatalf("entries=%d, want %d", len(run.JournalEntries), tt.wantEntries)
			}
		})
	}
}
