package workflow

import (
	"testing"

	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/shopspring/decimal"
)

func truck() models.FixedAssetRecord {
	return models.FixedAssetRecord{
		AssetNumber:             "FA-1",
		CompanyCode:             testCompany,
		Description:             "Delivery truck",
		Status:                  models.AssetStatusActive,
		CurrentAcquisitionCost:  d("120000"),
		SalvageValue:            d("12000"),
		UsefulLifeMonths:        60,
		AccumulatedDepreciation: decimal.Zero,
	}
}

func TestExecuteRun_StraightLine(t *testing.T) {
	assets := []models.FixedAssetRecord{truck()}
	res := NewDepreciationRunGenerator(DefaultDepreciationRunConfig(), nil).ExecuteRun(testCompany, assets, january())

	if !res.TotalDepreciation.Equal(d("1800")) {
		t.Fatalf("total=%s", res.TotalDepreciation)
	}
	if len(res.JournalEntries) != 1 {
		t.Fatalf("entries=%d", len(res.JournalEntries))
	}
	e := res.JournalEntries[0]
	if e.Lines[0].AccountCode != "6100" || e.Lines[1].AccountCode != "1510" {
		t.Fatalf("default accounts not used: %+v", e.Lines)
	}
	if e.DocumentId != "DEPR-FA-1" || !e.PostingDate.Equal(january().EndDate) {
		t.Fatalf("entry=%+v", e)
	}
	if !assets[0].AccumulatedDepreciation.Equal(d("1800")) {
		t.Fatalf("asset not updated in place: %s", assets[0].AccumulatedDepreciation)
	}
	if !res.Lines[0].NetBookValueAfter.Equal(d("118200")) {
		t.Fatalf("nbv after=%s", res.Lines[0].NetBookValueAfter)
	}
	if res.RunId != "DEPR-1000-00000001" {
		t.Fatalf("run id=%s", res.RunId)
	}
}

func TestExecuteRun_CapsAtRemainingBaseAndRetires(t *testing.T) {
	a := truck()
	a.AccumulatedDepreciation = d("107000")
	assets := []models.FixedAssetRecord{a}
	res := NewDepreciationRunGenerator(DefaultDepreciationRunConfig(), nil).ExecuteRun(testCompany, assets, january())

	if !res.TotalDepreciation.Equal(d("1000")) {
		t.Fatalf("last charge should be capped at 1000, got %s", res.TotalDepreciation)
	}
	if assets[0].Status != models.AssetStatusFullyDepreciated || !res.Lines[0].FullyDepreciated {
		t.Fatalf("asset should be fully depreciated, status=%s", assets[0].Status)
	}

	again := NewDepreciationRunGenerator(DefaultDepreciationRunConfig(), nil).ExecuteRun(testCompany, assets, models.NewMonthlyPeriod(2024, 2))
	if len(again.JournalEntries) != 0 {
		t.Fatalf("retired asset must not depreciate again")
	}
}

func TestExecuteRun_FiltersCompanyAndStatus(t *testing.T) {
	other := truck()
	other.CompanyCode = "2000"
	disposed := truck()
	disposed.AssetNumber = "FA-2"
	disposed.Status = models.AssetStatusDisposed
	custom := truck()
	custom.AssetNumber = "FA-3"
	custom.ExpenseAccount = "6150"
	custom.AccumDeprAccount = "1520"

	res := NewDepreciationRunGenerator(DefaultDepreciationRunConfig(), nil).ExecuteRun(testCompany, []models.FixedAssetRecord{other, disposed, custom}, january())
	if len(res.JournalEntries) != 1 || res.Lines[0].AssetNumber != "FA-3" {
		t.Fatalf("only FA-3 should depreciate, got %+v", res.Lines)
	}
	if l := res.JournalEntries[0].Lines; l[0].AccountCode != "6150" || l[1].AccountCode != "1520" {
		t.Fatalf("asset accounts should override defaults: %+v", l)
	}
}

func TestForecastDepreciation(t *testing.T) {
	a := truck()
	a.AccumulatedDepreciation = d("104400")
	assets := []models.FixedAssetRecord{a}
	fc := NewDepreciationRunGenerator(DefaultDepreciationRunConfig(), nil).ForecastDepreciation(assets, models.NewMonthlyPeriod(2024, 11), 4)

	want := []struct {
		key   string
		total string
	}{
		{"2024-11", "1800"},
		{"2024-12", "1800"},
		{"2025-01", "0"},
		{"2025-02", "0"},
	}
	if len(fc) != len(want) {
		t.Fatalf("forecast len=%d", len(fc))
	}
	for i, w := range want {
		if fc[i].PeriodKey != w.key || !fc[i].ForecastedDepreciation.Equal(d(w.total)) {
			t.Fatalf("month %d: %+v, want %s %s", i, fc[i], w.key, w.total)
		}
	}
	if !assets[0].AccumulatedDepreciation.Equal(d("104400")) {
		t.Fatalf("forecast must not mutate assets")
	}
}
