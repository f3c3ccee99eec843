package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type CloseTaskStatus struct {
	State    CloseTaskState `json:"state"`
	Reason   string         `json:"reason,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

func TaskCompleted() CloseTaskStatus { return CloseTaskStatus{State: CloseTaskStateCompleted} }

func TaskCompletedWithWarnings(warnings ...string) CloseTaskStatus {
	return CloseTaskStatus{State: CloseTaskStateCompletedWithWarnings, Warnings: warnings}
}

func TaskSkipped(reason string) CloseTaskStatus {
	return CloseTaskStatus{State: CloseTaskStateSkipped, Reason: reason}
}

func TaskFailed(reason string) CloseTaskStatus {
	return CloseTaskStatus{State: CloseTaskStateFailed, Reason: reason}
}

func (s CloseTaskStatus) String() string {
	if s.Reason != "" {
		return string(s.State) + "(" + s.Reason + ")"
	}
	return string(s.State)
}

type CloseTaskResult struct {
	Task                  CloseTask       `json:"task"`
	TaskName              string          `json:"task_name"`
	CompanyCode           string          `json:"company_code"`
	FiscalPeriod          FiscalPeriod    `json:"fiscal_period"`
	Status                CloseTaskStatus `json:"status"`
	StartedAt             *time.Time      `json:"started_at"`
	CompletedAt           *time.Time      `json:"completed_at"`
	JournalEntriesCreated int             `json:"journal_entries_created"`
	TotalAmount           decimal.Decimal `json:"total_amount"`
	Notes                 []string        `json:"notes"`
}

func NewCloseTaskResult(task CloseTask, companyCode string, period FiscalPeriod) CloseTaskResult {
	return CloseTaskResult{
		Task:         task,
		TaskName:     task.Name(),
		CompanyCode:  companyCode,
		FiscalPeriod: period,
		Status:       CloseTaskStatus{State: CloseTaskStatePending},
		TotalAmount:  decimal.Zero,
	}
}

func (r CloseTaskResult) IsSuccess() bool {
	switch r.Status.State {
	case CloseTaskStateCompleted, CloseTaskStateCompletedWithWarnings:
		return true
	}
	return false
}

type PeriodCloseRun struct {
	RunId               string            `json:"run_id"`
	CompanyCode         string            `json:"company_code"`
	FiscalPeriod        FiscalPeriod      `json:"fiscal_period"`
	Status              PeriodCloseStatus `json:"status"`
	TaskResults         []CloseTaskResult `json:"task_results"`
	StartedAt           *time.Time        `json:"started_at"`
	CompletedAt         *time.Time        `json:"completed_at"`
	TotalJournalEntries int               `json:"total_journal_entries"`
	Errors              []string          `json:"errors"`
	JournalEntries      []JournalEntry    `json:"journal_entries"`
}

func NewPeriodCloseRun(runId, companyCode string, period FiscalPeriod) *PeriodCloseRun {
	return &PeriodCloseRun{
		RunId:        runId,
		CompanyCode:  companyCode,
		FiscalPeriod: period,
		Status:       PeriodCloseStatusNotStarted,
	}
}

func (r *PeriodCloseRun) IsSuccess() bool {
	return r.Status == PeriodCloseStatusCompleted
}

func (r *PeriodCloseRun) FailedTaskCount() int {
	n := 0
	for _, res := range r.TaskResults {
		if res.Status.State == CloseTaskStateFailed {
			n++
		}
	}
	return n
}

// Result returns the recorded result for task, if any. A task scheduled more than once
// reports its first successful result, else its first one.
func (r *PeriodCloseRun) Result(task CloseTask) (CloseTaskResult, bool) {
	var first CloseTaskResult
	found := false
	for _, res := range r.TaskResults {
		if res.Task != task {
			continue
		}
		if res.IsSuccess() {
			return res, true
		}
		if !found {
			first, found = res, true
		}
	}
	return first, found
}

type CloseReadinessResult struct {
	CompanyCode  string       `json:"company_code"`
	FiscalPeriod FiscalPeriod `json:"fiscal_period"`
	IsReady      bool         `json:"is_ready"`
	Blockers     []string     `json:"blockers"`
	Warnings     []string     `json:"warnings"`
}
