package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/mmdatafocus/settlement_backend/utils"
	"gorm.io/gorm"
)

var (
	ErrPeriodClosed   = errors.New("fiscal period is closed for posting")
	ErrOutsidePeriod  = errors.New("posting date is outside the fiscal period")
	ErrNoFiscalPeriod = errors.New("no fiscal period covers the posting date")
)

// EnforcePostingGate rejects entries dated outside period or landing in a Closed/Locked period.
func EnforcePostingGate(entry *models.JournalEntry, period models.FiscalPeriod) error {
	if !period.Contains(entry.PostingDate) {
		return fmt.Errorf("%s dated %s, period %s: %w", entry.DocumentId, entry.PostingDate.Format("2006-01-02"), period.Key(), ErrOutsidePeriod)
	}
	if !period.AcceptsPostings() {
		return fmt.Errorf("%s period %s is %s: %w", entry.DocumentId, period.Key(), period.Status, ErrPeriodClosed)
	}
	return nil
}

// EnforcePostingGateDB resolves the period from the calendar table. Dates with no period
// pass unless STRICT_POSTING_GATE is set.
func EnforcePostingGateDB(ctx context.Context, db *gorm.DB, entry *models.JournalEntry) error {
	period, err := models.FindFiscalPeriodForDate(ctx, db, entry.CompanyCode, entry.PostingDate)
	if errors.Is(err, utils.ErrorRecordNotFound) {
		if config.StrictPostingGate() {
			return fmt.Errorf("%s dated %s: %w", entry.DocumentId, entry.PostingDate.Format("2006-01-02"), ErrNoFiscalPeriod)
		}
		return nil
	}
	if err != nil {
		return err
	}
	return EnforcePostingGate(entry, period)
}
