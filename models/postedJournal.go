package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PostedJournal is the persisted form of a JournalEntry. Posted journals are never
// updated; corrections go through a reversal entry.
// Unique constraint: (company_code, entry_id).
type PostedJournal struct {
	ID          int                 `gorm:"primary_key" json:"id"`
	EntryId     string              `gorm:"size:36;not null;uniqueIndex:idx_company_entry,priority:2" json:"entry_id"`
	CompanyCode string              `gorm:"size:64;not null;uniqueIndex:idx_company_entry,priority:1;index:idx_pj_company_date,priority:1" json:"company_code"`
	PostingDate time.Time           `gorm:"not null;index:idx_pj_company_date,priority:2" json:"posting_date"`
	DocumentId  string              `gorm:"size:100;index" json:"document_id"`
	Reference   string              `gorm:"size:255" json:"reference"`
	Description string              `gorm:"type:text" json:"description"`
	Source      JournalSource       `gorm:"size:30;index" json:"source"`
	CloseRunId  *string             `gorm:"size:30;index" json:"close_run_id"`
	TotalAmount decimal.Decimal     `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	Lines       []PostedJournalLine `gorm:"foreignKey:PostedJournalId" json:"lines"`
	CreatedAt   time.Time           `gorm:"autoCreateTime" json:"created_at"`
}

type PostedJournalLine struct {
	ID              int              `gorm:"primary_key" json:"id"`
	PostedJournalId int              `gorm:"index;not null" json:"posted_journal_id"`
	CompanyCode     string           `gorm:"size:64;not null;index:idx_pjl_company_account,priority:1" json:"company_code"`
	LineNumber      int              `gorm:"not null" json:"line_number"`
	AccountCode     string           `gorm:"size:30;not null;index:idx_pjl_company_account,priority:2" json:"account_code"`
	Debit           decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"debit"`
	Credit          decimal.Decimal  `gorm:"type:decimal(20,4);default:0" json:"credit"`
	CostCenter      string           `gorm:"size:50" json:"cost_center"`
	Quantity        *decimal.Decimal `gorm:"type:decimal(20,4)" json:"quantity"`
	Text            string           `gorm:"size:255" json:"text"`
}

func NewPostedJournal(entry JournalEntry, closeRunId string) PostedJournal {
	pj := PostedJournal{
		EntryId:     entry.EntryId.String(),
		CompanyCode: entry.CompanyCode,
		PostingDate: entry.PostingDate,
		DocumentId:  entry.DocumentId,
		Reference:   entry.Reference,
		Description: entry.Description,
		Source:      entry.Source,
		TotalAmount: entry.Amount(),
	}
	if closeRunId != "" {
		pj.CloseRunId = &closeRunId
	}
	for _, l := range entry.Lines {
		pj.Lines = append(pj.Lines, PostedJournalLine{
			CompanyCode: entry.CompanyCode,
			LineNumber:  l.LineNumber,
			AccountCode: l.AccountCode,
			Debit:       l.DebitAmount,
			Credit:      l.CreditAmount,
			CostCenter:  l.CostCenter,
			Quantity:    l.Quantity,
			Text:        l.Text,
		})
	}
	return pj
}

func (pj PostedJournal) ToEntry() JournalEntry {
	id, _ := uuid.Parse(pj.EntryId)
	entry := JournalEntry{
		EntryId:     id,
		CompanyCode: pj.CompanyCode,
		PostingDate: pj.PostingDate,
		DocumentId:  pj.DocumentId,
		Reference:   pj.Reference,
		Description: pj.Description,
		Source:      pj.Source,
	}
	for _, l := range pj.Lines {
		entry.Lines = append(entry.Lines, JournalEntryLine{
			LineNumber:   l.LineNumber,
			AccountCode:  l.AccountCode,
			DebitAmount:  l.Debit,
			CreditAmount: l.Credit,
			CostCenter:   l.CostCenter,
			Quantity:     l.Quantity,
			Text:         l.Text,
		})
	}
	return entry
}

// AccountBalance is a scan target for per-account GL balances.
type AccountBalance struct {
	AccountCode string          `json:"account_code"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// Net is debit minus credit.
func (b AccountBalance) Net() decimal.Decimal {
	return b.Debit.Sub(b.Credit)
}
