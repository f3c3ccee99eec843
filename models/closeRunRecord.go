package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CloseRunRecord persists the header of a PeriodCloseRun.
// Unique constraint: run_id.
type CloseRunRecord struct {
	ID                  int                     `gorm:"primary_key" json:"id"`
	RunId               string                  `gorm:"size:30;not null;uniqueIndex" json:"run_id"`
	CompanyCode         string                  `gorm:"size:64;not null;index:idx_close_company_period,priority:1" json:"company_code"`
	FiscalYear          int                     `gorm:"not null;index:idx_close_company_period,priority:2" json:"fiscal_year"`
	FiscalPeriod        int                     `gorm:"not null;index:idx_close_company_period,priority:3" json:"fiscal_period"`
	Status              PeriodCloseStatus       `gorm:"size:30;not null;index" json:"status"`
	StartedAt           *time.Time              `json:"started_at"`
	CompletedAt         *time.Time              `json:"completed_at"`
	TotalJournalEntries int                     `gorm:"not null;default:0" json:"total_journal_entries"`
	Errors              string                  `gorm:"type:text" json:"errors"`
	TaskResults         []CloseTaskResultRecord `gorm:"foreignKey:CloseRunRecordId" json:"task_results"`
	CorrelationId       string                  `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt           time.Time               `gorm:"autoCreateTime" json:"created_at"`
}

type CloseTaskResultRecord struct {
	ID                    int             `gorm:"primary_key" json:"id"`
	CloseRunRecordId      int             `gorm:"index;not null" json:"close_run_record_id"`
	CompanyCode           string          `gorm:"size:64;not null;index" json:"company_code"`
	Sequence              int             `gorm:"not null" json:"sequence"`
	Task                  CloseTask       `gorm:"size:100;not null" json:"task"`
	State                 CloseTaskState  `gorm:"size:30;not null" json:"state"`
	Reason                string          `gorm:"type:text" json:"reason"`
	JournalEntriesCreated int             `gorm:"not null;default:0" json:"journal_entries_created"`
	TotalAmount           decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Notes                 string          `gorm:"type:text" json:"notes"`
	StartedAt             *time.Time      `json:"started_at"`
	CompletedAt           *time.Time      `json:"completed_at"`
}

func NewCloseRunRecord(run *PeriodCloseRun, correlationId string) (CloseRunRecord, error) {
	errs, err := json.Marshal(run.Errors)
	if err != nil {
		return CloseRunRecord{}, err
	}
	rec := CloseRunRecord{
		RunId:               run.RunId,
		CompanyCode:         run.CompanyCode,
		FiscalYear:          run.FiscalPeriod.Year,
		FiscalPeriod:        run.FiscalPeriod.Period,
		Status:              run.Status,
		StartedAt:           run.StartedAt,
		CompletedAt:         run.CompletedAt,
		TotalJournalEntries: run.TotalJournalEntries,
		Errors:              string(errs),
		CorrelationId:       correlationId,
	}
	for i, tr := range run.TaskResults {
		reason := tr.Status.Reason
		if len(tr.Status.Warnings) > 0 {
			w, _ := json.Marshal(tr.Status.Warnings)
			reason = string(w)
		}
		rec.TaskResults = append(rec.TaskResults, CloseTaskResultRecord{
			CompanyCode:           run.CompanyCode,
			Sequence:              i + 1,
			Task:                  tr.Task,
			State:                 tr.Status.State,
			Reason:                reason,
			JournalEntriesCreated: tr.JournalEntriesCreated,
			TotalAmount:           tr.TotalAmount,
			Notes:                 strings.Join(tr.Notes, "; "),
			StartedAt:             tr.StartedAt,
			CompletedAt:           tr.CompletedAt,
		})
	}
	return rec, nil
}
