package workflow

import (
	"fmt"

	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type AccrualGeneratorConfig struct {
	GenerateReversals  bool   `json:"generate_reversals"`
	ReversalDaysOffset int    `json:"reversal_days_offset"`
	DocumentType       string `json:"document_type"`
}

func DefaultAccrualGeneratorConfig() AccrualGeneratorConfig {
	return AccrualGeneratorConfig{
		GenerateReversals:  true,
		ReversalDaysOffset: 1,
		DocumentType:       "SA",
	}
}

func LoadAccrualGeneratorConfig() AccrualGeneratorConfig {
	def := DefaultAccrualGeneratorConfig()
	return AccrualGeneratorConfig{
		GenerateReversals:  config.BoolFromEnv("CLOSE_AUTO_REVERSE_ACCRUALS", def.GenerateReversals),
		ReversalDaysOffset: config.IntFromEnv("ACCRUAL_REVERSAL_DAYS_OFFSET", def.ReversalDaysOffset),
		DocumentType:       def.DocumentType,
	}
}

type SkippedAccrual struct {
	AccrualId string `json:"accrual_id"`
	Reason    string `json:"reason"`
}

type AccrualGenerationResult struct {
	Period               models.FiscalPeriod   `json:"period"`
	AccrualEntries       []models.JournalEntry `json:"accrual_entries"`
	ReversalEntries      []models.JournalEntry `json:"reversal_entries"`
	TotalAccruedExpenses decimal.Decimal       `json:"total_accrued_expenses"`
	TotalAccruedRevenue  decimal.Decimal       `json:"total_accrued_revenue"`
	SkippedDefinitions   []SkippedAccrual      `json:"skipped_definitions"`
}

// Entries returns accruals followed by their reversals.
func (r AccrualGenerationResult) Entries() []models.JournalEntry {
	out := make([]models.JournalEntry, 0, len(r.AccrualEntries)+len(r.ReversalEntries))
	out = append(out, r.AccrualEntries...)
	return append(out, r.ReversalEntries...)
}

// AccrualGenerator turns accrual definitions into period-end entries. Document numbers
// come from one counter shared by accruals, amortizations and reversals.
type AccrualGenerator struct {
	Config  AccrualGeneratorConfig
	Logger  *logrus.Logger
	counter uint64
}

func NewAccrualGenerator(cfg AccrualGeneratorConfig, logger *logrus.Logger) *AccrualGenerator {
	return &AccrualGenerator{Config: cfg, Logger: logger}
}

func (g *AccrualGenerator) nextNumber(prefix string) (uint64, string) {
	g.counter++
	return g.counter, fmt.Sprintf("%s%08d", prefix, g.counter)
}

// GenerateAccruals evaluates every definition against period. balances feeds
// PercentageOfBase definitions; a missing base account counts as zero.
func (g *AccrualGenerator) GenerateAccruals(definitions []models.AccrualDefinition, period models.FiscalPeriod, balances map[string]decimal.Decimal) AccrualGenerationResult {
	result := AccrualGenerationResult{
		Period:               period,
		TotalAccruedExpenses: decimal.Zero,
		TotalAccruedRevenue:  decimal.Zero,
	}

	for _, def := range definitions {
		if !def.IsEffectiveOn(period.EndDate) {
			result.SkippedDefinitions = append(result.SkippedDefinitions, SkippedAccrual{def.AccrualId, "Not effective for this period"})
			continue
		}
		if !shouldAccrue(def, period) {
			result.SkippedDefinitions = append(result.SkippedDefinitions, SkippedAccrual{def.AccrualId, "Frequency does not match this period"})
			continue
		}
		amount := accrualAmount(def, period, balances)
		if amount.IsZero() {
			result.SkippedDefinitions = append(result.SkippedDefinitions, SkippedAccrual{def.AccrualId, "Calculated amount is zero"})
			continue
		}

		entry, reversal := g.accrualEntry(def, period, amount)
		switch def.AccrualType {
		case models.AccrualTypeAccruedExpense:
			result.TotalAccruedExpenses = result.TotalAccruedExpenses.Add(amount)
		case models.AccrualTypeAccruedRevenue:
			result.TotalAccruedRevenue = result.TotalAccruedRevenue.Add(amount)
		}
		result.AccrualEntries = append(result.AccrualEntries, entry)
		if reversal != nil {
			result.ReversalEntries = append(result.ReversalEntries, *reversal)
		}
	}

	if g.Logger != nil && len(result.SkippedDefinitions) > 0 {
		g.Logger.WithFields(logrus.Fields{
			"field":   "AccrualGenerator",
			"period":  period.Key(),
			"skipped": len(result.SkippedDefinitions),
			"posted":  len(result.AccrualEntries),
		}).Debug("accrual definitions skipped")
	}
	return result
}

func shouldAccrue(def models.AccrualDefinition, period models.FiscalPeriod) bool {
	switch def.Frequency {
	case models.AccrualFrequencyMonthly:
		return true
	case models.AccrualFrequencyQuarterly:
		return period.Period%3 == 0
	case models.AccrualFrequencyAnnually:
		return period.IsYearEnd
	}
	return false
}

var daysPerYear = decimal.NewFromInt(365)

func accrualAmount(def models.AccrualDefinition, period models.FiscalPeriod, balances map[string]decimal.Decimal) decimal.Decimal {
	switch def.CalculationMethod {
	case models.AccrualMethodFixedAmount:
		if def.FixedAmount == nil {
			return decimal.Zero
		}
		return *def.FixedAmount
	case models.AccrualMethodPercentageOfBase:
		if def.PercentageRate == nil || def.BaseAccount == "" {
			return decimal.Zero
		}
		base := balances[def.BaseAccount]
		return base.Mul(*def.PercentageRate).Div(hundred).Round(2)
	case models.AccrualMethodDaysBased:
		// FixedAmount holds the annual amount here.
		if def.FixedAmount == nil {
			return decimal.Zero
		}
		daily := def.FixedAmount.Div(daysPerYear)
		return daily.Mul(decimal.NewFromInt(int64(period.Days()))).Round(2)
	}
	return decimal.Zero
}

func (g *AccrualGenerator) accrualEntry(def models.AccrualDefinition, period models.FiscalPeriod, amount decimal.Decimal) (models.JournalEntry, *models.JournalEntry) {
	var (
		prefix, title       string
		debitAcc, creditAcc string
		debitCC, creditCC   string
		reverses            bool
	)
	switch def.AccrualType {
	case models.AccrualTypeAccruedExpense:
		prefix, title = "ACCR", "Accrued Expense"
		debitAcc, creditAcc = def.ExpenseRevenueAccount, def.AccrualAccount
		debitCC = def.CostCenter
		reverses = true
	case models.AccrualTypeAccruedRevenue:
		prefix, title = "ACCR", "Accrued Revenue"
		debitAcc, creditAcc = def.AccrualAccount, def.ExpenseRevenueAccount
		creditCC = def.CostCenter
		reverses = true
	case models.AccrualTypePrepaidExpense:
		prefix, title = "PREP", "Prepaid Amortization"
		debitAcc, creditAcc = def.ExpenseRevenueAccount, def.AccrualAccount
		debitCC = def.CostCenter
	default:
		prefix, title = "DEFR", "Deferred Revenue Recognition"
		debitAcc, creditAcc = def.AccrualAccount, def.ExpenseRevenueAccount
		creditCC = def.CostCenter
	}

	seq, docNumber := g.nextNumber(prefix)
	entry := models.JournalEntry{
		EntryId:     deriveEntryId(accrualMarker, seq, periodScopedKey(def.CompanyCode, period, docNumber)),
		CompanyCode: def.CompanyCode,
		PostingDate: period.EndDate,
		DocumentId:  docNumber,
		Reference:   docNumber,
		Description: fmt.Sprintf("%s: %s", title, def.Description),
		Source:      models.JournalSourceAccrual,
	}
	debit := models.DebitLine(1, debitAcc, amount)
	debit.CostCenter = debitCC
	debit.Text = def.Description
	credit := models.CreditLine(2, creditAcc, amount)
	credit.CostCenter = creditCC
	entry.AddLine(debit)
	entry.AddLine(credit)

	if !reverses || !g.Config.GenerateReversals {
		return entry, nil
	}
	revSeq, revNumber := g.nextNumber("REV")
	reversalDate := period.EndDate.AddDate(0, 0, g.Config.ReversalDaysOffset)
	reversal := ReverseJournalEntry(entry,
		deriveEntryId(reversalMarker, revSeq, periodScopedKey(def.CompanyCode, period, revNumber)),
		revNumber, reversalDate, ReversalReasonAccrualAutoReverse)
	return entry, &reversal
}
