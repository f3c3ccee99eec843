package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccrualDefinition describes a recurring period-end entry.
type AccrualDefinition struct {
	AccrualId             string                   `json:"accrual_id"`
	CompanyCode           string                   `json:"company_code"`
	Description           string                   `json:"description"`
	AccrualType           AccrualType              `json:"accrual_type"`
	ExpenseRevenueAccount string                   `json:"expense_revenue_account"`
	AccrualAccount        string                   `json:"accrual_account"`
	CalculationMethod     AccrualCalculationMethod `json:"calculation_method"`
	FixedAmount           *decimal.Decimal         `json:"fixed_amount"`
	PercentageRate        *decimal.Decimal         `json:"percentage_rate"`
	BaseAccount           string                   `json:"base_account"`
	Frequency             AccrualFrequency         `json:"frequency"`
	AutoReverse           bool                     `json:"auto_reverse"`
	CostCenter            string                   `json:"cost_center"`
	IsActive              bool                     `json:"is_active"`
	EffectiveFrom         time.Time                `json:"effective_from"`
	EffectiveTo           *time.Time               `json:"effective_to"`
}

func NewAccrualDefinition(id, companyCode, description string, accrualType AccrualType, expenseRevenueAccount, accrualAccount string) AccrualDefinition {
	return AccrualDefinition{
		AccrualId:             id,
		CompanyCode:           companyCode,
		Description:           description,
		AccrualType:           accrualType,
		ExpenseRevenueAccount: expenseRevenueAccount,
		AccrualAccount:        accrualAccount,
		CalculationMethod:     AccrualMethodFixedAmount,
		Frequency:             AccrualFrequencyMonthly,
		AutoReverse:           true,
		IsActive:              true,
		EffectiveFrom:         time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (d AccrualDefinition) WithFixedAmount(amount decimal.Decimal) AccrualDefinition {
	d.CalculationMethod = AccrualMethodFixedAmount
	d.FixedAmount = &amount
	return d
}

// WithPercentage rate is in percent (5 = 5%) of the base account balance.
func (d AccrualDefinition) WithPercentage(rate decimal.Decimal, baseAccount string) AccrualDefinition {
	d.CalculationMethod = AccrualMethodPercentageOfBase
	d.PercentageRate = &rate
	d.BaseAccount = baseAccount
	return d
}

func (d AccrualDefinition) IsEffectiveOn(date time.Time) bool {
	if !d.IsActive {
		return false
	}
	if truncateDay(date).Before(truncateDay(d.EffectiveFrom)) {
		return false
	}
	if d.EffectiveTo != nil && truncateDay(date).After(truncateDay(*d.EffectiveTo)) {
		return false
	}
	return true
}
