package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/settlement_backend/models"
)

var ErrUnknownReversalReason = errors.New("unknown reversal reason")

// ReverseJournalEntry builds the mirror of original: every debit becomes a credit and
// vice versa, so original plus reversal nets to zero per account.
// Posted entries are never edited; a correction is always a new reversing entry.
func ReverseJournalEntry(original models.JournalEntry, entryId uuid.UUID, documentNumber string, reversalDate time.Time, reason string) models.JournalEntry {
	reversal := models.JournalEntry{
		EntryId:     entryId,
		CompanyCode: original.CompanyCode,
		PostingDate: reversalDate,
		DocumentId:  documentNumber,
		Reference:   "REV-" + original.DocumentId,
		Description: fmt.Sprintf("Reversal of %s (%s)", original.Description, reason),
		Source:      models.JournalSourceReversal,
	}
	for idx, line := range original.Lines {
		reversal.AddLine(models.JournalEntryLine{
			LineNumber:   idx + 1,
			AccountCode:  line.AccountCode,
			DebitAmount:  line.CreditAmount,
			CreditAmount: line.DebitAmount,
			CostCenter:   line.CostCenter,
			Quantity:     line.Quantity,
			Text:         "Reversal: " + line.Text,
		})
	}
	return reversal
}

// ReversalEntryId is fixed per original entry, so reversing the same entry twice
// collapses to one posting in any sink.
func ReversalEntryId(original uuid.UUID) uuid.UUID {
	return deriveEntryId(reversalMarker, 0, "REVERSE:"+original.String())
}

// EntryLookup finds a posted entry. Implementations return utils.ErrorRecordNotFound
// for unknown ids.
type EntryLookup interface {
	LoadEntry(ctx context.Context, companyCode string, entryId uuid.UUID) (models.JournalEntry, error)
}

type ReversalRequest struct {
	CompanyCode  string
	EntryId      uuid.UUID
	ReversalDate time.Time
	Reason       string
}

// ReversePosted loads a posted entry and posts its reversal through sink.
func ReversePosted(ctx context.Context, lookup EntryLookup, sink JournalSink, req ReversalRequest) (models.JournalEntry, PostingSummary, error) {
	if !IsReversalReason(req.Reason) {
		return models.JournalEntry{}, PostingSummary{}, fmt.Errorf("%q: %w", req.Reason, ErrUnknownReversalReason)
	}
	original, err := lookup.LoadEntry(ctx, req.CompanyCode, req.EntryId)
	if err != nil {
		return models.JournalEntry{}, PostingSummary{}, err
	}
	reversal := ReverseJournalEntry(original, ReversalEntryId(original.EntryId), "REV-"+original.DocumentId, req.ReversalDate, req.Reason)
	summary, err := sink.PostEntries(ctx, []models.JournalEntry{reversal}, "")
	return reversal, summary, err
}
