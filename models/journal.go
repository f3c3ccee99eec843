package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrUnbalancedEntry = errors.New("journal entry is not balanced")
	ErrDebitAndCredit  = errors.New("journal line carries both debit and credit")
	ErrEmptyEntry      = errors.New("journal entry has no lines")
)

type JournalSource string

const (
	JournalSourceDocumentFlow JournalSource = "DocumentFlow"
	JournalSourceDepreciation JournalSource = "Depreciation"
	JournalSourceAccrual      JournalSource = "Accrual"
	JournalSourceReversal     JournalSource = "Reversal"
	JournalSourceTaxProvision JournalSource = "TaxProvision"
	JournalSourcePeriodClose  JournalSource = "PeriodClose"
)

type JournalEntry struct {
	EntryId     uuid.UUID          `json:"entry_id"`
	CompanyCode string             `json:"company_code"`
	PostingDate time.Time          `json:"posting_date"`
	DocumentId  string             `json:"document_id"`
	Reference   string             `json:"reference"`
	Description string             `json:"description"`
	Source      JournalSource      `json:"source"`
	Lines       []JournalEntryLine `json:"lines"`
}

type JournalEntryLine struct {
	LineNumber   int              `json:"line_number"`
	AccountCode  string           `json:"account_code"`
	DebitAmount  decimal.Decimal  `json:"debit_amount"`
	CreditAmount decimal.Decimal  `json:"credit_amount"`
	CostCenter   string           `json:"cost_center,omitempty"`
	Quantity     *decimal.Decimal `json:"quantity,omitempty"`
	Text         string           `json:"text,omitempty"`
}

func DebitLine(lineNumber int, account string, amount decimal.Decimal) JournalEntryLine {
	return JournalEntryLine{LineNumber: lineNumber, AccountCode: account, DebitAmount: amount, CreditAmount: decimal.Zero}
}

func CreditLine(lineNumber int, account string, amount decimal.Decimal) JournalEntryLine {
	return JournalEntryLine{LineNumber: lineNumber, AccountCode: account, DebitAmount: decimal.Zero, CreditAmount: amount}
}

func (e *JournalEntry) AddLine(line JournalEntryLine) {
	e.Lines = append(e.Lines, line)
}

func (e *JournalEntry) TotalDebit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.DebitAmount)
	}
	return total
}

func (e *JournalEntry) TotalCredit() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.Lines {
		total = total.Add(l.CreditAmount)
	}
	return total
}

// IsBalanced compares with exact decimal equality.
func (e *JournalEntry) IsBalanced() bool {
	return e.TotalDebit().Equal(e.TotalCredit())
}

// Validate must pass before an entry is handed to a ledger sink.
func (e *JournalEntry) Validate() error {
	if len(e.Lines) == 0 {
		return ErrEmptyEntry
	}
	for _, l := range e.Lines {
		if !l.DebitAmount.IsZero() && !l.CreditAmount.IsZero() {
			return fmt.Errorf("line %d (%s): %w", l.LineNumber, l.AccountCode, ErrDebitAndCredit)
		}
	}
	if !e.IsBalanced() {
		return fmt.Errorf("%s debit=%s credit=%s: %w", e.DocumentId, e.TotalDebit(), e.TotalCredit(), ErrUnbalancedEntry)
	}
	return nil
}

// Amount is the debit side total, which equals the credit side for a balanced entry.
func (e *JournalEntry) Amount() decimal.Decimal {
	return e.TotalDebit()
}

func SumEntryAmounts(entries []JournalEntry) decimal.Decimal {
	total := decimal.Zero
	for i := range entries {
		total = total.Add(entries[i].Amount())
	}
	return total
}
