package models

import (
	"fmt"
	"strings"
)

// CloseTask identifies a period-end activity. Custom tasks carry a "Custom:" prefix.
type CloseTask string

const (
	CloseTaskRunDepreciation                 CloseTask = "RunDepreciation"
	CloseTaskPostInventoryRevaluation        CloseTask = "PostInventoryRevaluation"
	CloseTaskReconcileArToGl                 CloseTask = "ReconcileArToGl"
	CloseTaskReconcileApToGl                 CloseTask = "ReconcileApToGl"
	CloseTaskReconcileFaToGl                 CloseTask = "ReconcileFaToGl"
	CloseTaskReconcileInventoryToGl          CloseTask = "ReconcileInventoryToGl"
	CloseTaskPostAccruedExpenses             CloseTask = "PostAccruedExpenses"
	CloseTaskPostAccruedRevenue              CloseTask = "PostAccruedRevenue"
	CloseTaskPostPrepaidAmortization         CloseTask = "PostPrepaidAmortization"
	CloseTaskAllocateCorporateOverhead       CloseTask = "AllocateCorporateOverhead"
	CloseTaskPostIntercompanySettlements     CloseTask = "PostIntercompanySettlements"
	CloseTaskRevalueForeignCurrency          CloseTask = "RevalueForeignCurrency"
	CloseTaskCalculateTaxProvision           CloseTask = "CalculateTaxProvision"
	CloseTaskTranslateForeignSubsidiaries    CloseTask = "TranslateForeignSubsidiaries"
	CloseTaskEliminateIntercompany           CloseTask = "EliminateIntercompany"
	CloseTaskGenerateTrialBalance            CloseTask = "GenerateTrialBalance"
	CloseTaskGenerateFinancialStatements     CloseTask = "GenerateFinancialStatements"
	CloseTaskCloseIncomeStatement            CloseTask = "CloseIncomeStatement"
	CloseTaskPostRetainedEarningsRollforward CloseTask = "PostRetainedEarningsRollforward"
)

const customTaskPrefix = "Custom:"

func CustomCloseTask(name string) CloseTask {
	return CloseTask(customTaskPrefix + name)
}

func (t CloseTask) IsCustom() bool {
	return strings.HasPrefix(string(t), customTaskPrefix)
}

func (t CloseTask) CustomName() string {
	return strings.TrimPrefix(string(t), customTaskPrefix)
}

func (t CloseTask) IsYearEndOnly() bool {
	switch t {
	case CloseTaskCloseIncomeStatement, CloseTaskPostRetainedEarningsRollforward:
		return true
	}
	return false
}

func (t CloseTask) IsReconciliation() bool {
	switch t {
	case CloseTaskReconcileArToGl, CloseTaskReconcileApToGl, CloseTaskReconcileFaToGl, CloseTaskReconcileInventoryToGl:
		return true
	}
	return false
}

// IsReport marks tasks that produce reports rather than journal entries.
func (t CloseTask) IsReport() bool {
	return t == CloseTaskGenerateTrialBalance || t == CloseTaskGenerateFinancialStatements
}

func (t CloseTask) Name() string {
	switch t {
	case CloseTaskRunDepreciation:
		return "Run Depreciation"
	case CloseTaskPostInventoryRevaluation:
		return "Post Inventory Revaluation"
	case CloseTaskReconcileArToGl:
		return "Reconcile AR to GL"
	case CloseTaskReconcileApToGl:
		return "Reconcile AP to GL"
	case CloseTaskReconcileFaToGl:
		return "Reconcile FA to GL"
	case CloseTaskReconcileInventoryToGl:
		return "Reconcile Inventory to GL"
	case CloseTaskPostAccruedExpenses:
		return "Post Accrued Expenses"
	case CloseTaskPostAccruedRevenue:
		return "Post Accrued Revenue"
	case CloseTaskPostPrepaidAmortization:
		return "Post Prepaid Amortization"
	case CloseTaskAllocateCorporateOverhead:
		return "Allocate Corporate Overhead"
	case CloseTaskPostIntercompanySettlements:
		return "Post IC Settlements"
	case CloseTaskRevalueForeignCurrency:
		return "Revalue Foreign Currency"
	case CloseTaskCalculateTaxProvision:
		return "Calculate Tax Provision"
	case CloseTaskTranslateForeignSubsidiaries:
		return "Translate Foreign Subs"
	case CloseTaskEliminateIntercompany:
		return "Eliminate Intercompany"
	case CloseTaskGenerateTrialBalance:
		return "Generate Trial Balance"
	case CloseTaskGenerateFinancialStatements:
		return "Generate Financials"
	case CloseTaskCloseIncomeStatement:
		return "Close Income Statement"
	case CloseTaskPostRetainedEarningsRollforward:
		return "Post RE Rollforward"
	}
	if t.IsCustom() {
		return t.CustomName()
	}
	return string(t)
}

type ScheduledCloseTask struct {
	Task           CloseTask   `json:"task"`
	Sequence       int         `json:"sequence"`
	DependsOn      []CloseTask `json:"depends_on"`
	IsMandatory    bool        `json:"is_mandatory"`
	CanParallelize bool        `json:"can_parallelize"`
}

func NewScheduledCloseTask(task CloseTask, sequence int) ScheduledCloseTask {
	return ScheduledCloseTask{Task: task, Sequence: sequence, IsMandatory: true}
}

func (s ScheduledCloseTask) After(deps ...CloseTask) ScheduledCloseTask {
	s.DependsOn = append(append([]CloseTask{}, s.DependsOn...), deps...)
	return s
}

func (s ScheduledCloseTask) Optional() ScheduledCloseTask {
	s.IsMandatory = false
	return s
}

func (s ScheduledCloseTask) Parallelizable() ScheduledCloseTask {
	s.CanParallelize = true
	return s
}

type CloseSchedule struct {
	ScheduleId  string               `json:"schedule_id"`
	CompanyCode string               `json:"company_code"`
	PeriodType  PeriodType           `json:"period_type"`
	Tasks       []ScheduledCloseTask `json:"tasks"`
	IsYearEnd   bool                 `json:"is_year_end"`
}

func StandardMonthlySchedule(companyCode string) CloseSchedule {
	tasks := []CloseTask{
		CloseTaskRunDepreciation,
		CloseTaskPostInventoryRevaluation,
		CloseTaskPostAccruedExpenses,
		CloseTaskPostAccruedRevenue,
		CloseTaskPostPrepaidAmortization,
		CloseTaskRevalueForeignCurrency,
		CloseTaskReconcileArToGl,
		CloseTaskReconcileApToGl,
		CloseTaskReconcileFaToGl,
		CloseTaskReconcileInventoryToGl,
		CloseTaskPostIntercompanySettlements,
		CloseTaskAllocateCorporateOverhead,
		CloseTaskTranslateForeignSubsidiaries,
		CloseTaskEliminateIntercompany,
		CloseTaskGenerateTrialBalance,
	}
	schedule := CloseSchedule{
		ScheduleId:  fmt.Sprintf("MONTHLY-%s", companyCode),
		CompanyCode: companyCode,
		PeriodType:  PeriodTypeMonthly,
	}
	for i, t := range tasks {
		schedule.Tasks = append(schedule.Tasks, NewScheduledCloseTask(t, i+1))
	}
	return schedule
}

func YearEndSchedule(companyCode string) CloseSchedule {
	schedule := StandardMonthlySchedule(companyCode)
	schedule.ScheduleId = fmt.Sprintf("YEAREND-%s", companyCode)
	schedule.IsYearEnd = true
	next := len(schedule.Tasks) + 1
	for i, t := range []CloseTask{
		CloseTaskCalculateTaxProvision,
		CloseTaskCloseIncomeStatement,
		CloseTaskPostRetainedEarningsRollforward,
		CloseTaskGenerateFinancialStatements,
	} {
		schedule.Tasks = append(schedule.Tasks, NewScheduledCloseTask(t, next+i))
	}
	return schedule
}
