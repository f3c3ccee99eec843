package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ARInvoice is an open receivable item.
type ARInvoice struct {
	InvoiceNumber   string          `json:"invoice_number"`
	CustomerId      string          `json:"customer_id"`
	PostingDate     time.Time       `json:"posting_date"`
	AmountRemaining decimal.Decimal `json:"amount_remaining"`
}

// APInvoice is an open payable item.
type APInvoice struct {
	InvoiceNumber   string          `json:"invoice_number"`
	VendorId        string          `json:"vendor_id"`
	PostingDate     time.Time       `json:"posting_date"`
	AmountRemaining decimal.Decimal `json:"amount_remaining"`
}

type FixedAssetRecord struct {
	AssetNumber             string          `json:"asset_number"`
	CompanyCode             string          `json:"company_code"`
	Description             string          `json:"description"`
	AssetClass              string          `json:"asset_class"`
	CostCenter              string          `json:"cost_center"`
	Status                  AssetStatus     `json:"status"`
	CurrentAcquisitionCost  decimal.Decimal `json:"current_acquisition_cost"`
	SalvageValue            decimal.Decimal `json:"salvage_value"`
	UsefulLifeMonths        int             `json:"useful_life_months"`
	AccumulatedDepreciation decimal.Decimal `json:"accumulated_depreciation"`
	ExpenseAccount          string          `json:"expense_account"`
	AccumDeprAccount        string          `json:"accum_depr_account"`
}

func (a *FixedAssetRecord) NetBookValue() decimal.Decimal {
	return a.CurrentAcquisitionCost.Sub(a.AccumulatedDepreciation)
}

// RemainingDepreciableBase never goes negative.
func (a *FixedAssetRecord) RemainingDepreciableBase() decimal.Decimal {
	remaining := a.NetBookValue().Sub(a.SalvageValue)
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// MonthlyDepreciation is straight-line, rounded to cents and capped at the remaining base.
func (a *FixedAssetRecord) MonthlyDepreciation() decimal.Decimal {
	if a.UsefulLifeMonths <= 0 {
		return decimal.Zero
	}
	monthly := a.CurrentAcquisitionCost.Sub(a.SalvageValue).
		Div(decimal.NewFromInt(int64(a.UsefulLifeMonths))).
		Round(2)
	remaining := a.RemainingDepreciableBase()
	if monthly.GreaterThan(remaining) {
		return remaining
	}
	return monthly
}

func (a *FixedAssetRecord) IsFullyDepreciated() bool {
	return !a.RemainingDepreciableBase().IsPositive()
}

type InventoryPosition struct {
	MaterialId     string          `json:"material_id"`
	Plant          string          `json:"plant"`
	QuantityOnHand decimal.Decimal `json:"quantity_on_hand"`
	TotalValue     decimal.Decimal `json:"total_value"`
}

type UnreconciledItem struct {
	EntryType      string          `json:"entry_type"`
	DocumentNumber string          `json:"document_number"`
	Amount         decimal.Decimal `json:"amount"`
	Description    string          `json:"description"`
}

type ReconciliationResult struct {
	ReconciliationId  string               `json:"reconciliation_id"`
	CompanyCode       string               `json:"company_code"`
	SubledgerType     SubledgerType        `json:"subledger_type"`
	AsOfDate          time.Time            `json:"as_of_date"`
	GlAccount         string               `json:"gl_account"`
	GlBalance         decimal.Decimal      `json:"gl_balance"`
	SubledgerBalance  decimal.Decimal      `json:"subledger_balance"`
	Difference        decimal.Decimal      `json:"difference"`
	Status            ReconciliationStatus `json:"status"`
	UnreconciledItems []UnreconciledItem   `json:"unreconciled_items"`
	Notes             string               `json:"notes,omitempty"`
}

// IsBalanced uses the default cent tolerance.
func (r ReconciliationResult) IsBalanced() bool {
	return r.IsBalancedWithin(decimal.New(1, -2))
}

func (r ReconciliationResult) IsBalancedWithin(tol decimal.Decimal) bool {
	return r.Difference.IsZero() || r.Difference.Abs().LessThan(tol)
}

type FullReconciliationReport struct {
	CompanyCode     string               `json:"company_code"`
	AsOfDate        time.Time            `json:"as_of_date"`
	AR              ReconciliationResult `json:"ar"`
	AP              ReconciliationResult `json:"ap"`
	FaAssets        ReconciliationResult `json:"fa_assets"`
	FaDepreciation  ReconciliationResult `json:"fa_depreciation"`
	Inventory       ReconciliationResult `json:"inventory"`
	AllReconciled   bool                 `json:"all_reconciled"`
	TotalDifference decimal.Decimal      `json:"total_difference"`
}

func (r FullReconciliationReport) Results() []ReconciliationResult {
	return []ReconciliationResult{r.AR, r.AP, r.FaAssets, r.FaDepreciation, r.Inventory}
}

func (r FullReconciliationReport) Summary() string {
	overall := "UNRECONCILED"
	if r.AllReconciled {
		overall = "RECONCILED"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Reconciliation Report for %s as of %s\n", r.CompanyCode, r.AsOfDate.Format("2006-01-02"))
	fmt.Fprintf(&b, "AR: %s (diff: %s)\n", r.AR.Status.Label(), r.AR.Difference)
	fmt.Fprintf(&b, "AP: %s (diff: %s)\n", r.AP.Status.Label(), r.AP.Difference)
	fmt.Fprintf(&b, "FA Assets: %s (diff: %s)\n", r.FaAssets.Status.Label(), r.FaAssets.Difference)
	fmt.Fprintf(&b, "FA Depreciation: %s (diff: %s)\n", r.FaDepreciation.Status.Label(), r.FaDepreciation.Difference)
	fmt.Fprintf(&b, "Inventory: %s (diff: %s)\n", r.Inventory.Status.Label(), r.Inventory.Difference)
	fmt.Fprintf(&b, "Overall: %s (total diff: %s)", overall, r.TotalDifference)
	return b.String()
}
