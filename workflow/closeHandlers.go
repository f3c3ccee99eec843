package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// GLBalanceReader returns net (debit minus credit) balances per account as of a date.
type GLBalanceReader interface {
	GLBalances(ctx context.Context, companyCode string, asOf time.Time) (map[string]decimal.Decimal, error)
}

// CloseData is the subledger and master state a close run works from.
// Fixed assets are updated in place by depreciation.
type CloseData struct {
	AccrualDefinitions []models.AccrualDefinition `json:"accrual_definitions"`
	FixedAssets        []models.FixedAssetRecord  `json:"fixed_assets"`
	Subledgers         SubledgerSnapshot          `json:"subledgers"`
	GlBalances         map[string]decimal.Decimal `json:"gl_balances"`
	TaxInput           *models.TaxProvisionInput  `json:"tax_input"`
}

// GLBalances serves the fixture balances regardless of date.
func (d *CloseData) GLBalances(_ context.Context, _ string, _ time.Time) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(d.GlBalances))
	for k, v := range d.GlBalances {
		out[k] = v
	}
	return out, nil
}

type TaxAccounts struct {
	ExpenseAccount  string `json:"expense_account"`
	PayableAccount  string `json:"payable_account"`
	DeferredAccount string `json:"deferred_account"`
}

func DefaultTaxAccounts() TaxAccounts {
	return TaxAccounts{ExpenseAccount: "8000", PayableAccount: "2500", DeferredAccount: "2600"}
}

func LoadTaxAccounts() TaxAccounts {
	def := DefaultTaxAccounts()
	return TaxAccounts{
		ExpenseAccount:  config.StringFromEnv("TAX_EXPENSE_ACCOUNT", def.ExpenseAccount),
		PayableAccount:  config.StringFromEnv("TAX_PAYABLE_ACCOUNT", def.PayableAccount),
		DeferredAccount: config.StringFromEnv("TAX_DEFERRED_ACCOUNT", def.DeferredAccount),
	}
}

type CloseHandlerOptions struct {
	Data           *CloseData
	Balances       GLBalanceReader
	Accruals       *AccrualGenerator
	Depreciation   *DepreciationRunGenerator
	Reconciliation *ReconciliationEngine
	TaxAccounts    TaxAccounts
	Logger         *logrus.Logger
}

// closeHandlers owns the generators behind a registry. The generators keep counters,
// so every call goes through mu.
type closeHandlers struct {
	opts CloseHandlerOptions
	mu   sync.Mutex
	tax  uint64
}

// BuildCloseHandlers wires depreciation, accruals, prepaid amortization, the four
// reconciliations and the tax provision. Tasks left out keep the "No handler" skip.
func BuildCloseHandlers(opts CloseHandlerOptions) CloseHandlerRegistry {
	if opts.Data == nil {
		opts.Data = &CloseData{}
	}
	if opts.Balances == nil {
		opts.Balances = opts.Data
	}
	if opts.Accruals == nil {
		opts.Accruals = NewAccrualGenerator(DefaultAccrualGeneratorConfig(), opts.Logger)
	}
	if opts.Depreciation == nil {
		opts.Depreciation = NewDepreciationRunGenerator(DefaultDepreciationRunConfig(), opts.Logger)
	}
	if opts.Reconciliation == nil {
		opts.Reconciliation = NewReconciliationEngine(DefaultReconciliationConfig(), opts.Logger)
	}
	if opts.TaxAccounts == (TaxAccounts{}) {
		opts.TaxAccounts = DefaultTaxAccounts()
	}
	h := &closeHandlers{opts: opts}

	reg := CloseHandlerRegistry{}
	reg.RegisterEntries(h.depreciation, models.CloseTaskRunDepreciation)
	reg.RegisterEntries(h.accruals, models.CloseTaskPostAccruedExpenses, models.CloseTaskPostAccruedRevenue, models.CloseTaskPostPrepaidAmortization)
	reg.RegisterReconciliation(h.reconcile,
		models.CloseTaskReconcileArToGl,
		models.CloseTaskReconcileApToGl,
		models.CloseTaskReconcileFaToGl,
		models.CloseTaskReconcileInventoryToGl,
	)
	reg.RegisterEntries(h.taxProvision, models.CloseTaskCalculateTaxProvision)
	return reg
}

func (h *closeHandlers) depreciation(_ context.Context, req CloseRequest) ([]models.JournalEntry, decimal.Decimal, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	run := h.opts.Depreciation.ExecuteRun(req.CompanyCode, h.opts.Data.FixedAssets, req.Period)
	return run.JournalEntries, run.TotalDepreciation, nil
}

func accrualTypesFor(task models.CloseTask) []models.AccrualType {
	switch task {
	case models.CloseTaskPostAccruedExpenses:
		return []models.AccrualType{models.AccrualTypeAccruedExpense}
	case models.CloseTaskPostAccruedRevenue:
		return []models.AccrualType{models.AccrualTypeAccruedRevenue}
	case models.CloseTaskPostPrepaidAmortization:
		return []models.AccrualType{models.AccrualTypePrepaidExpense, models.AccrualTypeDeferredRevenue}
	}
	return nil
}

func (h *closeHandlers) accruals(ctx context.Context, req CloseRequest) ([]models.JournalEntry, decimal.Decimal, error) {
	types := accrualTypesFor(req.Task)
	var defs []models.AccrualDefinition
	needsBalances := false
	for _, d := range h.opts.Data.AccrualDefinitions {
		if d.CompanyCode != req.CompanyCode {
			continue
		}
		for _, t := range types {
			if d.AccrualType == t {
				defs = append(defs, d)
				needsBalances = needsBalances || d.CalculationMethod == models.AccrualMethodPercentageOfBase
				break
			}
		}
	}
	if len(defs) == 0 {
		return nil, decimal.Zero, nil
	}

	var balances map[string]decimal.Decimal
	if needsBalances {
		var err error
		balances, err = h.opts.Balances.GLBalances(ctx, req.CompanyCode, req.Period.EndDate)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("load GL balances: %w", err)
		}
	}

	h.mu.Lock()
	result := h.opts.Accruals.GenerateAccruals(defs, req.Period, balances)
	h.mu.Unlock()

	total := models.SumEntryAmounts(result.AccrualEntries)
	switch req.Task {
	case models.CloseTaskPostAccruedExpenses:
		total = result.TotalAccruedExpenses
	case models.CloseTaskPostAccruedRevenue:
		total = result.TotalAccruedRevenue
	}
	return result.Entries(), total, nil
}

// reconcile returns GL minus subledger for the task's subledger. Fixed assets have two
// independent sides, so their difference is the sum of both absolute differences.
func (h *closeHandlers) reconcile(ctx context.Context, req CloseRequest) (decimal.Decimal, error) {
	asOf := req.Period.EndDate
	gl, err := h.opts.Balances.GLBalances(ctx, req.CompanyCode, asOf)
	if err != nil {
		return decimal.Zero, fmt.Errorf("load GL balances: %w", err)
	}
	engine := h.opts.Reconciliation
	snap := h.opts.Data.Subledgers
	cfg := engine.Config

	h.mu.Lock()
	defer h.mu.Unlock()
	switch req.Task {
	case models.CloseTaskReconcileArToGl:
		return engine.ReconcileAR(req.CompanyCode, asOf, gl[cfg.ArControlAccount], snap.ArInvoices).Difference, nil
	case models.CloseTaskReconcileApToGl:
		return engine.ReconcileAP(req.CompanyCode, asOf, gl[cfg.ApControlAccount], snap.ApInvoices).Difference, nil
	case models.CloseTaskReconcileFaToGl:
		assets, depr := engine.ReconcileFA(req.CompanyCode, asOf, gl[cfg.FaControlAccount], gl[cfg.FaAccumAccount()], snap.FixedAssets)
		return assets.Difference.Abs().Add(depr.Difference.Abs()), nil
	case models.CloseTaskReconcileInventoryToGl:
		return engine.ReconcileInventory(req.CompanyCode, asOf, gl[cfg.InventoryControlAccount], snap.InventoryPositions).Difference, nil
	}
	return decimal.Zero, fmt.Errorf("no subledger for task %s", req.Task)
}

// taxProvision posts current tax to the payable account and deferred tax to the
// deferred account. A negative deferred amount is booked the other way round.
func (h *closeHandlers) taxProvision(_ context.Context, req CloseRequest) ([]models.JournalEntry, decimal.Decimal, error) {
	input := h.opts.Data.TaxInput
	if input == nil || input.CompanyCode != req.CompanyCode {
		return nil, decimal.Zero, nil
	}
	provision := models.CalculateTaxProvision(*input)
	accts := h.opts.TaxAccounts

	h.mu.Lock()
	defer h.mu.Unlock()
	var entries []models.JournalEntry
	if !provision.CurrentTaxExpense.IsZero() {
		entries = append(entries, h.taxEntry(req, "Current", provision.CurrentTaxExpense, accts.ExpenseAccount, accts.PayableAccount))
	}
	if provision.DeferredTaxExpense.IsPositive() {
		entries = append(entries, h.taxEntry(req, "Deferred", provision.DeferredTaxExpense, accts.ExpenseAccount, accts.DeferredAccount))
	} else if provision.DeferredTaxExpense.IsNegative() {
		entries = append(entries, h.taxEntry(req, "Deferred", provision.DeferredTaxExpense.Neg(), accts.DeferredAccount, accts.ExpenseAccount))
	}
	return entries, provision.CurrentTaxExpense.Add(provision.DeferredTaxExpense), nil
}

func (h *closeHandlers) taxEntry(req CloseRequest, kind string, amount decimal.Decimal, debit, credit string) models.JournalEntry {
	h.tax++
	docNumber := fmt.Sprintf("TAX%08d", h.tax)
	entry := models.JournalEntry{
		EntryId:     deriveEntryId(taxMarker, h.tax, periodScopedKey(req.CompanyCode, req.Period, docNumber)),
		CompanyCode: req.CompanyCode,
		PostingDate: req.Period.EndDate,
		DocumentId:  docNumber,
		Reference:   docNumber,
		Description: fmt.Sprintf("%s Tax Provision FY%d", kind, req.Period.Year),
		Source:      models.JournalSourceTaxProvision,
	}
	if amount.IsNegative() {
		debit, credit = credit, debit
		amount = amount.Neg()
	}
	entry.AddLine(models.DebitLine(1, debit, amount))
	entry.AddLine(models.CreditLine(2, credit, amount))
	return entry
}
