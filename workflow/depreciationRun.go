package workflow

import (
	"fmt"

	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type DepreciationRunConfig struct {
	DefaultExpenseAccount   string          `json:"default_expense_account"`
	DefaultAccumDeprAccount string          `json:"default_accum_depr_account"`
	PostZeroEntries         bool            `json:"post_zero_entries"`
	MinimumAmount           decimal.Decimal `json:"minimum_amount"`
}

func DefaultDepreciationRunConfig() DepreciationRunConfig {
	return DepreciationRunConfig{
		DefaultExpenseAccount:   "6100",
		DefaultAccumDeprAccount: "1510",
		PostZeroEntries:         false,
		MinimumAmount:           decimal.New(1, -2),
	}
}

func LoadDepreciationRunConfig() DepreciationRunConfig {
	def := DefaultDepreciationRunConfig()
	return DepreciationRunConfig{
		DefaultExpenseAccount:   config.StringFromEnv("DEPR_EXPENSE_ACCOUNT", def.DefaultExpenseAccount),
		DefaultAccumDeprAccount: config.StringFromEnv("DEPR_ACCUM_ACCOUNT", def.DefaultAccumDeprAccount),
		PostZeroEntries:         config.BoolFromEnv("DEPR_POST_ZERO_ENTRIES", def.PostZeroEntries),
		MinimumAmount:           config.DecimalFromEnv("DEPR_MINIMUM_AMOUNT", def.MinimumAmount),
	}
}

type DepreciationLine struct {
	AssetNumber        string          `json:"asset_number"`
	DepreciationAmount decimal.Decimal `json:"depreciation_amount"`
	NetBookValueAfter  decimal.Decimal `json:"net_book_value_after"`
	FullyDepreciated   bool            `json:"fully_depreciated"`
}

type DepreciationRunResult struct {
	RunId             string                `json:"run_id"`
	CompanyCode       string                `json:"company_code"`
	Period            models.FiscalPeriod   `json:"period"`
	Lines             []DepreciationLine    `json:"lines"`
	JournalEntries    []models.JournalEntry `json:"journal_entries"`
	TotalDepreciation decimal.Decimal       `json:"total_depreciation"`
}

type DepreciationForecastEntry struct {
	PeriodKey              string          `json:"period_key"`
	FiscalYear             int             `json:"fiscal_year"`
	FiscalPeriod           int             `json:"fiscal_period"`
	ForecastedDepreciation decimal.Decimal `json:"forecasted_depreciation"`
}

type DepreciationRunGenerator struct {
	Config  DepreciationRunConfig
	Logger  *logrus.Logger
	counter uint64
}

func NewDepreciationRunGenerator(cfg DepreciationRunConfig, logger *logrus.Logger) *DepreciationRunGenerator {
	return &DepreciationRunGenerator{Config: cfg, Logger: logger}
}

// ExecuteRun books one month of straight-line depreciation for the company's active
// assets and updates them in place.
func (g *DepreciationRunGenerator) ExecuteRun(companyCode string, assets []models.FixedAssetRecord, period models.FiscalPeriod) DepreciationRunResult {
	g.counter++
	result := DepreciationRunResult{
		RunId:             fmt.Sprintf("DEPR-%s-%08d", companyCode, g.counter),
		CompanyCode:       companyCode,
		Period:            period,
		TotalDepreciation: decimal.Zero,
	}

	for i := range assets {
		asset := &assets[i]
		if asset.Status != models.AssetStatusActive || asset.CompanyCode != companyCode {
			continue
		}
		amount := asset.MonthlyDepreciation()
		if amount.LessThan(g.Config.MinimumAmount) && !g.Config.PostZeroEntries {
			continue
		}

		entry := g.depreciationEntry(asset, amount, period, len(result.JournalEntries)+1)
		asset.AccumulatedDepreciation = asset.AccumulatedDepreciation.Add(amount)
		if asset.IsFullyDepreciated() {
			asset.Status = models.AssetStatusFullyDepreciated
		}

		result.Lines = append(result.Lines, DepreciationLine{
			AssetNumber:        asset.AssetNumber,
			DepreciationAmount: amount,
			NetBookValueAfter:  asset.NetBookValue(),
			FullyDepreciated:   asset.Status == models.AssetStatusFullyDepreciated,
		})
		result.JournalEntries = append(result.JournalEntries, entry)
		result.TotalDepreciation = result.TotalDepreciation.Add(amount)
	}

	if g.Logger != nil {
		g.Logger.WithFields(logrus.Fields{
			"field":        "DepreciationRun",
			"run_id":       result.RunId,
			"company_code": companyCode,
			"period":       period.Key(),
			"assets":       len(result.Lines),
			"total":        result.TotalDepreciation.String(),
		}).Info("depreciation run completed")
	}
	return result
}

func (g *DepreciationRunGenerator) depreciationEntry(asset *models.FixedAssetRecord, amount decimal.Decimal, period models.FiscalPeriod, seq int) models.JournalEntry {
	expenseAccount := asset.ExpenseAccount
	if expenseAccount == "" {
		expenseAccount = g.Config.DefaultExpenseAccount
	}
	accumAccount := asset.AccumDeprAccount
	if accumAccount == "" {
		accumAccount = g.Config.DefaultAccumDeprAccount
	}

	docNumber := "DEPR-" + asset.AssetNumber
	entry := models.JournalEntry{
		EntryId:     deriveEntryId(deprMarker, uint64(seq), periodScopedKey(asset.CompanyCode, period, docNumber)),
		CompanyCode: asset.CompanyCode,
		PostingDate: period.EndDate,
		DocumentId:  docNumber,
		Reference:   asset.AssetNumber,
		Description: fmt.Sprintf("Depreciation %s P%d/%d", asset.AssetNumber, period.Year, period.Period),
		Source:      models.JournalSourceDepreciation,
	}
	debit := models.DebitLine(1, expenseAccount, amount)
	debit.CostCenter = asset.CostCenter
	debit.Text = asset.Description
	entry.AddLine(debit)
	entry.AddLine(models.CreditLine(2, accumAccount, amount))
	return entry
}

// ForecastDepreciation projects monthly totals for active assets without touching them.
func (g *DepreciationRunGenerator) ForecastDepreciation(assets []models.FixedAssetRecord, start models.FiscalPeriod, months int) []DepreciationForecastEntry {
	type simulated struct {
		nbv, salvage, monthly decimal.Decimal
	}
	var sims []simulated
	for i := range assets {
		a := assets[i]
		if a.Status != models.AssetStatusActive {
			continue
		}
		monthly := decimal.Zero
		if a.UsefulLifeMonths > 0 {
			monthly = a.CurrentAcquisitionCost.Sub(a.SalvageValue).Div(decimal.NewFromInt(int64(a.UsefulLifeMonths))).Round(2)
		}
		sims = append(sims, simulated{nbv: a.NetBookValue(), salvage: a.SalvageValue, monthly: monthly})
	}

	year, month := start.Year, start.Period
	forecast := make([]DepreciationForecastEntry, 0, months)
	for m := 0; m < months; m++ {
		total := decimal.Zero
		for i := range sims {
			remaining := sims[i].nbv.Sub(sims[i].salvage)
			if !remaining.IsPositive() {
				continue
			}
			depr := decimal.Min(sims[i].monthly, remaining)
			sims[i].nbv = sims[i].nbv.Sub(depr)
			total = total.Add(depr)
		}
		forecast = append(forecast, DepreciationForecastEntry{
			PeriodKey:              fmt.Sprintf("%d-%02d", year, month),
			FiscalYear:             year,
			FiscalPeriod:           month,
			ForecastedDepreciation: total,
		})
		if month == 12 {
			month = 1
			year++
		} else {
			month++
		}
	}
	return forecast
}
