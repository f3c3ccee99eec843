package workflow

import (
	"fmt"
	"time"

	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ReconciliationConfig struct {
	Tolerance               decimal.Decimal `json:"tolerance"`
	ArControlAccount        string          `json:"ar_control_account"`
	ApControlAccount        string          `json:"ap_control_account"`
	FaControlAccount        string          `json:"fa_control_account"`
	InventoryControlAccount string          `json:"inventory_control_account"`
}

func DefaultReconciliationConfig() ReconciliationConfig {
	return ReconciliationConfig{
		Tolerance:               decimal.New(1, -2),
		ArControlAccount:        "1200",
		ApControlAccount:        "2000",
		FaControlAccount:        "1500",
		InventoryControlAccount: "1300",
	}
}

// LoadReconciliationConfig reads RECON_* overrides.
func LoadReconciliationConfig() ReconciliationConfig {
	def := DefaultReconciliationConfig()
	return ReconciliationConfig{
		Tolerance:               config.DecimalFromEnv("RECON_TOLERANCE", def.Tolerance),
		ArControlAccount:        config.StringFromEnv("RECON_AR_ACCOUNT", def.ArControlAccount),
		ApControlAccount:        config.StringFromEnv("RECON_AP_ACCOUNT", def.ApControlAccount),
		FaControlAccount:        config.StringFromEnv("RECON_FA_ACCOUNT", def.FaControlAccount),
		InventoryControlAccount: config.StringFromEnv("RECON_INVENTORY_ACCOUNT", def.InventoryControlAccount),
	}
}

// FaAccumAccount is the GL key for accumulated depreciation.
func (c ReconciliationConfig) FaAccumAccount() string {
	return c.FaControlAccount + "-ACCUM"
}

// ReconciliationEngine ties one subledger at a time to its GL control account.
// IDs are sequential per engine, so it is not safe for concurrent use.
type ReconciliationEngine struct {
	Config  ReconciliationConfig
	Logger  *logrus.Logger
	counter uint64
}

func NewReconciliationEngine(cfg ReconciliationConfig, logger *logrus.Logger) *ReconciliationEngine {
	return &ReconciliationEngine{Config: cfg, Logger: logger}
}

func (e *ReconciliationEngine) nextId(prefix string) string {
	e.counter++
	return fmt.Sprintf("RECON-%s-%08d", prefix, e.counter)
}

func (e *ReconciliationEngine) within(diff decimal.Decimal) bool {
	return diff.IsZero() || diff.Abs().LessThan(e.Config.Tolerance)
}

func (e *ReconciliationEngine) status(diff decimal.Decimal, explained []models.UnreconciledItem) models.ReconciliationStatus {
	switch {
	case e.within(diff):
		return models.ReconciliationStatusReconciled
	case len(explained) > 0:
		return models.ReconciliationStatusPartiallyReconciled
	default:
		return models.ReconciliationStatusUnreconciled
	}
}

type openItem struct {
	number      string
	postingDate time.Time
	remaining   decimal.Decimal
}

func (e *ReconciliationEngine) reconcileOpenItems(subledger models.SubledgerType, glAccount, companyCode string, asOf time.Time, glBalance decimal.Decimal, items []openItem) models.ReconciliationResult {
	id := e.nextId(string(subledger))

	subBalance := decimal.Zero
	for _, it := range items {
		subBalance = subBalance.Add(it.remaining)
	}
	diff := glBalance.Sub(subBalance)

	var explained []models.UnreconciledItem
	if !e.within(diff) {
		asOfDay := models.DateOnly(asOf)
		for _, it := range items {
			if models.DateOnly(it.postingDate).After(asOfDay) {
				explained = append(explained, models.UnreconciledItem{
					EntryType:      "Timing Difference",
					DocumentNumber: it.number,
					Amount:         it.remaining,
					Description:    fmt.Sprintf("Invoice posted after reconciliation date: %s", it.postingDate.Format("2006-01-02")),
				})
			}
		}
	}

	result := models.ReconciliationResult{
		ReconciliationId:  id,
		CompanyCode:       companyCode,
		SubledgerType:     subledger,
		AsOfDate:          asOf,
		GlAccount:         glAccount,
		GlBalance:         glBalance,
		SubledgerBalance:  subBalance,
		Difference:        diff,
		Status:            e.status(diff, explained),
		UnreconciledItems: explained,
	}
	e.logResult(result)
	return result
}

func (e *ReconciliationEngine) ReconcileAR(companyCode string, asOf time.Time, glBalance decimal.Decimal, invoices []models.ARInvoice) models.ReconciliationResult {
	items := make([]openItem, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, openItem{inv.InvoiceNumber, inv.PostingDate, inv.AmountRemaining})
	}
	return e.reconcileOpenItems(models.SubledgerTypeAR, e.Config.ArControlAccount, companyCode, asOf, glBalance, items)
}

func (e *ReconciliationEngine) ReconcileAP(companyCode string, asOf time.Time, glBalance decimal.Decimal, invoices []models.APInvoice) models.ReconciliationResult {
	items := make([]openItem, 0, len(invoices))
	for _, inv := range invoices {
		items = append(items, openItem{inv.InvoiceNumber, inv.PostingDate, inv.AmountRemaining})
	}
	return e.reconcileOpenItems(models.SubledgerTypeAP, e.Config.ApControlAccount, companyCode, asOf, glBalance, items)
}

// ReconcileFA returns the acquisition-cost result and the accumulated-depreciation result.
// Each side is judged on its own difference only.
func (e *ReconciliationEngine) ReconcileFA(companyCode string, asOf time.Time, glAssetBalance, glAccumDeprBalance decimal.Decimal, assets []models.FixedAssetRecord) (models.ReconciliationResult, models.ReconciliationResult) {
	cost := decimal.Zero
	accum := decimal.Zero
	for _, a := range assets {
		cost = cost.Add(a.CurrentAcquisitionCost)
		accum = accum.Add(a.AccumulatedDepreciation)
	}

	twoState := func(diff decimal.Decimal) models.ReconciliationStatus {
		if e.within(diff) {
			return models.ReconciliationStatusReconciled
		}
		return models.ReconciliationStatusUnreconciled
	}

	assetDiff := glAssetBalance.Sub(cost)
	assetResult := models.ReconciliationResult{
		ReconciliationId: e.nextId(string(models.SubledgerTypeFA)),
		CompanyCode:      companyCode,
		SubledgerType:    models.SubledgerTypeFA,
		AsOfDate:         asOf,
		GlAccount:        e.Config.FaControlAccount,
		GlBalance:        glAssetBalance,
		SubledgerBalance: cost,
		Difference:       assetDiff,
		Status:           twoState(assetDiff),
		Notes:            "Fixed Asset - Acquisition Cost",
	}

	deprDiff := glAccumDeprBalance.Sub(accum)
	deprResult := models.ReconciliationResult{
		ReconciliationId: e.nextId(string(models.SubledgerTypeFA)),
		CompanyCode:      companyCode,
		SubledgerType:    models.SubledgerTypeFA,
		AsOfDate:         asOf,
		GlAccount:        e.Config.FaAccumAccount(),
		GlBalance:        glAccumDeprBalance,
		SubledgerBalance: accum,
		Difference:       deprDiff,
		Status:           twoState(deprDiff),
		Notes:            "Fixed Asset - Accumulated Depreciation",
	}
	e.logResult(assetResult)
	e.logResult(deprResult)
	return assetResult, deprResult
}

func (e *ReconciliationEngine) ReconcileInventory(companyCode string, asOf time.Time, glBalance decimal.Decimal, positions []models.InventoryPosition) models.ReconciliationResult {
	id := e.nextId(string(models.SubledgerTypeInventory))

	subBalance := decimal.Zero
	for _, p := range positions {
		subBalance = subBalance.Add(p.TotalValue)
	}
	diff := glBalance.Sub(subBalance)

	var explained []models.UnreconciledItem
	if !e.within(diff) {
		for _, p := range positions {
			if p.QuantityOnHand.IsPositive() && p.TotalValue.IsZero() {
				explained = append(explained, models.UnreconciledItem{
					EntryType:      "Valuation Issue",
					DocumentNumber: p.MaterialId,
					Amount:         decimal.Zero,
					Description:    fmt.Sprintf("Material %s has quantity %s but zero value", p.MaterialId, p.QuantityOnHand),
				})
			}
		}
	}

	result := models.ReconciliationResult{
		ReconciliationId:  id,
		CompanyCode:       companyCode,
		SubledgerType:     models.SubledgerTypeInventory,
		AsOfDate:          asOf,
		GlAccount:         e.Config.InventoryControlAccount,
		GlBalance:         glBalance,
		SubledgerBalance:  subBalance,
		Difference:        diff,
		Status:            e.status(diff, explained),
		UnreconciledItems: explained,
	}
	e.logResult(result)
	return result
}

// SubledgerSnapshot is the open-item state of every subledger at one date.
type SubledgerSnapshot struct {
	ArInvoices         []models.ARInvoice         `json:"ar_invoices"`
	ApInvoices         []models.APInvoice         `json:"ap_invoices"`
	FixedAssets        []models.FixedAssetRecord  `json:"fixed_assets"`
	InventoryPositions []models.InventoryPosition `json:"inventory_positions"`
}

// FullReconciliation runs AR, AP, both FA sides and inventory. Missing GL balances count as zero.
// TotalDifference sums absolute differences so offsetting breaks cannot cancel out.
func (e *ReconciliationEngine) FullReconciliation(companyCode string, asOf time.Time, glBalances map[string]decimal.Decimal, snap SubledgerSnapshot) models.FullReconciliationReport {
	gl := func(account string) decimal.Decimal {
		if v, ok := glBalances[account]; ok {
			return v
		}
		return decimal.Zero
	}

	ar := e.ReconcileAR(companyCode, asOf, gl(e.Config.ArControlAccount), snap.ArInvoices)
	ap := e.ReconcileAP(companyCode, asOf, gl(e.Config.ApControlAccount), snap.ApInvoices)
	faAssets, faDepr := e.ReconcileFA(companyCode, asOf, gl(e.Config.FaControlAccount), gl(e.Config.FaAccumAccount()), snap.FixedAssets)
	inv := e.ReconcileInventory(companyCode, asOf, gl(e.Config.InventoryControlAccount), snap.InventoryPositions)

	report := models.FullReconciliationReport{
		CompanyCode:    companyCode,
		AsOfDate:       asOf,
		AR:             ar,
		AP:             ap,
		FaAssets:       faAssets,
		FaDepreciation: faDepr,
		Inventory:      inv,
	}
	report.AllReconciled = true
	report.TotalDifference = decimal.Zero
	for _, r := range report.Results() {
		if !r.IsBalancedWithin(e.Config.Tolerance) {
			report.AllReconciled = false
		}
		report.TotalDifference = report.TotalDifference.Add(r.Difference.Abs())
	}
	return report
}

func (e *ReconciliationEngine) logResult(r models.ReconciliationResult) {
	if e.Logger == nil || r.Status == models.ReconciliationStatusReconciled {
		return
	}
	e.Logger.WithFields(logrus.Fields{
		"field":             "ReconciliationEngine",
		"reconciliation_id": r.ReconciliationId,
		"company_code":      r.CompanyCode,
		"subledger":         r.SubledgerType,
		"gl_account":        r.GlAccount,
		"difference":        r.Difference.String(),
		"status":            r.Status,
	}).Warn("subledger does not tie to GL")
}
