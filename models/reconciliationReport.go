package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// ReconciliationRecord is one persisted subledger-to-GL result.
type ReconciliationRecord struct {
	ID                int                  `gorm:"primary_key" json:"id"`
	ReconciliationId  string               `gorm:"size:30;not null;index" json:"reconciliation_id"`
	CompanyCode       string               `gorm:"size:64;not null;index:idx_recon_company_date,priority:1" json:"company_code"`
	AsOfDate          time.Time            `gorm:"not null;index:idx_recon_company_date,priority:2" json:"as_of_date"`
	SubledgerType     SubledgerType        `gorm:"size:10;not null;index" json:"subledger_type"`
	GlAccount         string               `gorm:"size:30;not null" json:"gl_account"`
	GlBalance         decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"gl_balance"`
	SubledgerBalance  decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"subledger_balance"`
	Difference        decimal.Decimal      `gorm:"type:decimal(20,4);default:0" json:"difference"`
	Status            ReconciliationStatus `gorm:"size:20;not null;index" json:"status"`
	UnreconciledItems string               `gorm:"type:text" json:"unreconciled_items"`
	Notes             string               `gorm:"type:text" json:"notes"`
	CloseRunId        *string              `gorm:"size:30;index" json:"close_run_id"`
	CorrelationId     string               `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt         time.Time            `gorm:"autoCreateTime" json:"created_at"`
}

func NewReconciliationRecord(r ReconciliationResult, closeRunId string, correlationId string) (ReconciliationRecord, error) {
	items, err := json.Marshal(r.UnreconciledItems)
	if err != nil {
		return ReconciliationRecord{}, err
	}
	rec := ReconciliationRecord{
		ReconciliationId:  r.ReconciliationId,
		CompanyCode:       r.CompanyCode,
		AsOfDate:          r.AsOfDate,
		SubledgerType:     r.SubledgerType,
		GlAccount:         r.GlAccount,
		GlBalance:         r.GlBalance,
		SubledgerBalance:  r.SubledgerBalance,
		Difference:        r.Difference,
		Status:            r.Status,
		UnreconciledItems: string(items),
		Notes:             r.Notes,
		CorrelationId:     correlationId,
	}
	if closeRunId != "" {
		rec.CloseRunId = &closeRunId
	}
	return rec, nil
}
