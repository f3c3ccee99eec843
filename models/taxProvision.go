package models

import "github.com/shopspring/decimal"

type TaxAdjustment struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	IsAddition  bool            `json:"is_addition"`
}

func (a TaxAdjustment) Signed() decimal.Decimal {
	if a.IsAddition {
		return a.Amount
	}
	return a.Amount.Neg()
}

type TaxProvisionInput struct {
	CompanyCode          string          `json:"company_code"`
	FiscalYear           int             `json:"fiscal_year"`
	PretaxIncome         decimal.Decimal `json:"pretax_income"`
	PermanentDifferences []TaxAdjustment `json:"permanent_differences"`
	TemporaryDifferences []TaxAdjustment `json:"temporary_differences"`
	// StatutoryRate is in percent (25 = 25%).
	StatutoryRate       decimal.Decimal `json:"statutory_rate"`
	TaxCredits          decimal.Decimal `json:"tax_credits"`
	PriorYearAdjustment decimal.Decimal `json:"prior_year_adjustment"`
}

type TaxProvisionResult struct {
	CompanyCode          string          `json:"company_code"`
	FiscalYear           int             `json:"fiscal_year"`
	PretaxIncome         decimal.Decimal `json:"pretax_income"`
	PermanentDifferences decimal.Decimal `json:"permanent_differences"`
	TaxableIncome        decimal.Decimal `json:"taxable_income"`
	CurrentTaxExpense    decimal.Decimal `json:"current_tax_expense"`
	DeferredTaxExpense   decimal.Decimal `json:"deferred_tax_expense"`
	TotalTaxExpense      decimal.Decimal `json:"total_tax_expense"`
	EffectiveRate        decimal.Decimal `json:"effective_rate"`
}

func CalculateTaxProvision(input TaxProvisionInput) TaxProvisionResult {
	hundred := decimal.NewFromInt(100)

	permanent := decimal.Zero
	for _, d := range input.PermanentDifferences {
		permanent = permanent.Add(d.Signed())
	}
	temporary := decimal.Zero
	for _, d := range input.TemporaryDifferences {
		temporary = temporary.Add(d.Signed())
	}

	taxable := input.PretaxIncome.Add(permanent)
	current := taxable.Mul(input.StatutoryRate).Div(hundred).Round(2)
	deferred := temporary.Mul(input.StatutoryRate).Div(hundred).Round(2)
	total := current.Add(deferred).Sub(input.TaxCredits).Add(input.PriorYearAdjustment)

	effective := decimal.Zero
	if !input.PretaxIncome.IsZero() {
		effective = total.Div(input.PretaxIncome).Mul(hundred).Round(2)
	}

	return TaxProvisionResult{
		CompanyCode:          input.CompanyCode,
		FiscalYear:           input.FiscalYear,
		PretaxIncome:         input.PretaxIncome,
		PermanentDifferences: permanent,
		TaxableIncome:        taxable,
		CurrentTaxExpense:    current,
		DeferredTaxExpense:   deferred,
		TotalTaxExpense:      total,
		EffectiveRate:        effective,
	}
}
