package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/mmdatafocus/settlement_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
)

type PostingSummary struct {
	Posted     int      `json:"posted"`
	Duplicates int      `json:"duplicates"`
	EntryIds   []string `json:"entry_ids"`
}

// JournalSink receives balanced entries for the general ledger. Posting the same
// entry id twice is a no-op.
type JournalSink interface {
	PostEntries(ctx context.Context, entries []models.JournalEntry, closeRunId string) (PostingSummary, error)
}

// MemoryJournalSink keeps entries in process. Used by the CLIs and tests.
type MemoryJournalSink struct {
	mu      sync.Mutex
	Entries []models.JournalEntry
	seen    map[companyEntry]struct{}
	byRun   map[string][]models.JournalEntry
}

// companyEntry is the dedupe key. Entry ids are derived from document ids, which
// repeat across companies.
type companyEntry struct {
	companyCode string
	entryId     uuid.UUID
}

func NewMemoryJournalSink() *MemoryJournalSink {
	return &MemoryJournalSink{seen: map[companyEntry]struct{}{}, byRun: map[string][]models.JournalEntry{}}
}

func (s *MemoryJournalSink) PostEntries(_ context.Context, entries []models.JournalEntry, closeRunId string) (PostingSummary, error) {
	if err := validateEntries(entries); err != nil {
		return PostingSummary{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var summary PostingSummary
	for _, e := range entries {
		key := companyEntry{companyCode: e.CompanyCode, entryId: e.EntryId}
		if _, ok := s.seen[key]; ok {
			summary.Duplicates++
			continue
		}
		s.seen[key] = struct{}{}
		s.Entries = append(s.Entries, e)
		if closeRunId != "" {
			s.byRun[closeRunId] = append(s.byRun[closeRunId], e)
		}
		summary.Posted++
		summary.EntryIds = append(summary.EntryIds, e.EntryId.String())
	}
	return summary, nil
}

// RunEntries returns what was posted under closeRunId.
func (s *MemoryJournalSink) RunEntries(closeRunId string) []models.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.JournalEntry(nil), s.byRun[closeRunId]...)
}

func (s *MemoryJournalSink) LoadEntry(_ context.Context, companyCode string, entryId uuid.UUID) (models.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.Entries {
		if e.EntryId == entryId && e.CompanyCode == companyCode {
			return e, nil
		}
	}
	return models.JournalEntry{}, utils.ErrorRecordNotFound
}

// GLBalances nets every posted line dated on or before asOf.
func (s *MemoryJournalSink) GLBalances(_ context.Context, companyCode string, asOf time.Time) (map[string]decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]decimal.Decimal{}
	cutoff := models.DateOnly(asOf)
	for _, e := range s.Entries {
		if e.CompanyCode != companyCode || models.DateOnly(e.PostingDate).After(cutoff) {
			continue
		}
		for _, l := range e.Lines {
			out[l.AccountCode] = out[l.AccountCode].Add(l.DebitAmount).Sub(l.CreditAmount)
		}
	}
	return out, nil
}

// GormJournalSink writes PostedJournal rows and a JOURNAL_POSTED outbox row per entry,
// one transaction per company under the company posting lock.
type GormJournalSink struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	// EnforceGate runs EnforcePostingGateDB on every entry before it is written.
	EnforceGate bool
}

func NewGormJournalSink(db *gorm.DB, logger *logrus.Logger) *GormJournalSink {
	return &GormJournalSink{DB: db, Logger: logger, EnforceGate: true}
}

type JournalPostedEvent struct {
	EntryId     string          `json:"entry_id"`
	DocumentId  string          `json:"document_id"`
	PostingDate time.Time       `json:"posting_date"`
	Source      string          `json:"source"`
	Amount      decimal.Decimal `json:"amount"`
	CloseRunId  string          `json:"close_run_id,omitempty"`
}

func (s *GormJournalSink) PostEntries(ctx context.Context, entries []models.JournalEntry, closeRunId string) (PostingSummary, error) {
	ctx, span := closeTracer.Start(ctx, "GormJournalSink.PostEntries")
	defer span.End()
	span.SetAttributes(attribute.Int("journal.entries", len(entries)))
	if runId, ok := utils.GetCloseRunIdFromContext(ctx); ok {
		span.SetAttributes(attribute.String("close.run_id", runId))
	}

	var summary PostingSummary
	if len(entries) == 0 {
		return summary, nil
	}
	if err := validateEntries(entries); err != nil {
		return summary, err
	}

	byCompany := map[string][]models.JournalEntry{}
	for _, e := range entries {
		byCompany[e.CompanyCode] = append(byCompany[e.CompanyCode], e)
	}
	companies := make([]string, 0, len(byCompany))
	for c := range byCompany {
		companies = append(companies, c)
	}
	sort.Strings(companies)

	for _, company := range companies {
		part, err := s.postCompany(ctx, company, byCompany[company], closeRunId)
		summary.Posted += part.Posted
		summary.Duplicates += part.Duplicates
		summary.EntryIds = append(summary.EntryIds, part.EntryIds...)
		if err != nil {
			config.LogError(s.Logger, "GormJournalSink", "PostEntries", "post company entries", map[string]interface{}{
				"company_code": company,
				"close_run_id": closeRunId,
			}, err)
			return summary, err
		}
	}
	return summary, nil
}

func (s *GormJournalSink) postCompany(ctx context.Context, companyCode string, entries []models.JournalEntry, closeRunId string) (PostingSummary, error) {
	var summary PostingSummary
	ctx = utils.SetCompanyCodeInContext(ctx, companyCode)
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireCompanyPostingLock(tx, companyCode); err != nil {
			return err
		}
		defer ReleaseCompanyPostingLock(tx, companyCode)

		for i := range entries {
			entry := &entries[i]
			if s.EnforceGate {
				if err := EnforcePostingGateDB(ctx, tx, entry); err != nil {
					return err
				}
			}

			var count int64
			if err := tx.Model(&models.PostedJournal{}).
				Where("company_code = ? AND entry_id = ?", companyCode, entry.EntryId.String()).
				Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				summary.Duplicates++
				continue
			}

			pj := models.NewPostedJournal(*entry, closeRunId)
			if err := tx.Create(&pj).Error; err != nil {
				if isDuplicateKeyErr(err) {
					summary.Duplicates++
					continue
				}
				return fmt.Errorf("insert journal %s: %w", entry.DocumentId, err)
			}
			if err := models.CreateOutboxRecord(ctx, tx, companyCode, models.SettlementEventJournalPosted, pj.EntryId, entry.PostingDate, JournalPostedEvent{
				EntryId:     pj.EntryId,
				DocumentId:  entry.DocumentId,
				PostingDate: entry.PostingDate,
				Source:      string(entry.Source),
				Amount:      pj.TotalAmount,
				CloseRunId:  closeRunId,
			}); err != nil {
				return err
			}
			summary.Posted++
			summary.EntryIds = append(summary.EntryIds, pj.EntryId)
		}
		return nil
	})
	if err != nil {
		return PostingSummary{}, err
	}
	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"field":        "GormJournalSink",
			"company_code": companyCode,
			"close_run_id": closeRunId,
			"posted":       summary.Posted,
			"duplicates":   summary.Duplicates,
		}).Info("journal entries posted")
	}
	return summary, nil
}

// GLBalances nets posted lines per account up to and including asOf.
func (s *GormJournalSink) GLBalances(ctx context.Context, companyCode string, asOf time.Time) (map[string]decimal.Decimal, error) {
	var rows []models.AccountBalance
	err := s.DB.WithContext(utils.SetCompanyCodeInContext(ctx, companyCode)).
		Table("posted_journal_lines AS l").
		Select("l.account_code AS account_code, SUM(l.debit) AS debit, SUM(l.credit) AS credit").
		Joins("JOIN posted_journals AS j ON j.id = l.posted_journal_id").
		Where("l.company_code = ? AND j.posting_date < ?", companyCode, models.DateOnly(asOf).AddDate(0, 0, 1)).
		Group("l.account_code").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, r := range rows {
		out[r.AccountCode] = r.Net()
	}
	return out, nil
}

func (s *GormJournalSink) LoadEntry(ctx context.Context, companyCode string, entryId uuid.UUID) (models.JournalEntry, error) {
	var pj models.PostedJournal
	err := s.DB.WithContext(utils.SetCompanyCodeInContext(ctx, companyCode)).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }).
		Where("company_code = ? AND entry_id = ?", companyCode, entryId.String()).
		First(&pj).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.JournalEntry{}, utils.ErrorRecordNotFound
	}
	if err != nil {
		return models.JournalEntry{}, err
	}
	return pj.ToEntry(), nil
}

// SaveCloseRun persists the run with its task results and queues CLOSE_RUN_FINISHED.
// A fully completed run soft-closes the period in the calendar.
func SaveCloseRun(ctx context.Context, db *gorm.DB, run *models.PeriodCloseRun) (models.CloseRunRecord, error) {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	record, err := models.NewCloseRunRecord(run, correlationId)
	if err != nil {
		return record, err
	}
	ctx = utils.SetCompanyCodeInContext(ctx, run.CompanyCode)
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
		if run.Status == models.PeriodCloseStatusCompleted {
			err := models.SetFiscalPeriodStatus(ctx, tx, run.CompanyCode, run.FiscalPeriod, models.PeriodStatusSoftClosed, "close:"+run.RunId)
			if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
				return err
			}
		}
		return models.CreateOutboxRecord(ctx, tx, run.CompanyCode, models.SettlementEventCloseRunFinished, run.RunId, time.Now().UTC(), CloseRunEvent{
			RunId:  run.RunId,
			Period: run.FiscalPeriod.Key(),
			Status: string(run.Status),
			Errors: run.Errors,
		})
	})
	return record, err
}

type CloseRunEvent struct {
	RunId  string   `json:"run_id"`
	Period string   `json:"period"`
	Status string   `json:"status"`
	Errors []string `json:"errors"`
}

// LoadCloseRun returns utils.ErrorRecordNotFound when the run id is unknown.
func LoadCloseRun(ctx context.Context, db *gorm.DB, runId string) (models.CloseRunRecord, error) {
	var record models.CloseRunRecord
	err := db.WithContext(ctx).
		Preload("TaskResults", func(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }).
		Where("run_id = ?", runId).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return record, utils.ErrorRecordNotFound
	}
	return record, err
}

// ListCloseRuns pages a company's runs newest first. Task results are not loaded.
func ListCloseRuns(ctx context.Context, db *gorm.DB, companyCode string, after *string, limit int) (models.CloseRunPage, error) {
	page := models.CloseRunPage{Runs: []models.CloseRunRecord{}}
	createdAt, id, err := models.DecodeCompositeCursor(after)
	if err != nil {
		return page, err
	}
	limit = models.ClampPageSize(limit)

	q := db.WithContext(utils.SetCompanyCodeInContext(ctx, companyCode)).
		Where("company_code = ?", companyCode)
	if id > 0 {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	}
	var rows []models.CloseRunRecord
	if err := q.Order("created_at DESC, id DESC").Limit(limit + 1).Find(&rows).Error; err != nil {
		return page, err
	}

	hasNext := len(rows) > limit
	if hasNext {
		rows = rows[:limit]
	}
	page.Runs = rows
	page.PageInfo.HasNextPage = &hasNext
	if len(rows) > 0 {
		first, last := rows[0], rows[len(rows)-1]
		page.PageInfo.StartCursor = models.EncodeCompositeCursor(first.CreatedAt, first.ID)
		page.PageInfo.EndCursor = models.EncodeCompositeCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

// LoadCloseRunEntries returns the journals a close run posted, in posting order.
func LoadCloseRunEntries(ctx context.Context, db *gorm.DB, companyCode, runId string) ([]models.JournalEntry, error) {
	var posted []models.PostedJournal
	err := db.WithContext(utils.SetCompanyCodeInContext(ctx, companyCode)).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("line_number ASC") }).
		Where("company_code = ? AND close_run_id = ?", companyCode, runId).
		Order("id ASC").
		Find(&posted).Error
	if err != nil {
		return nil, err
	}
	entries := make([]models.JournalEntry, 0, len(posted))
	for _, pj := range posted {
		entries = append(entries, pj.ToEntry())
	}
	return entries, nil
}

type ReconciliationSavedEvent struct {
	AsOfDate        time.Time       `json:"as_of_date"`
	AllReconciled   bool            `json:"all_reconciled"`
	TotalDifference decimal.Decimal `json:"total_difference"`
}

// SaveReconciliationReport stores every sub-result of report and queues RECONCILIATION_SAVED.
func SaveReconciliationReport(ctx context.Context, db *gorm.DB, report models.FullReconciliationReport, closeRunId string) error {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	records := make([]models.ReconciliationRecord, 0, 5)
	for _, r := range report.Results() {
		rec, err := models.NewReconciliationRecord(r, closeRunId, correlationId)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	ctx = utils.SetCompanyCodeInContext(ctx, report.CompanyCode)
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&records).Error; err != nil {
			return err
		}
		aggregate := fmt.Sprintf("%s:%s", report.CompanyCode, report.AsOfDate.Format("2006-01-02"))
		return models.CreateOutboxRecord(ctx, tx, report.CompanyCode, models.SettlementEventReconciliationSaved, aggregate, time.Now().UTC(), ReconciliationSavedEvent{
			AsOfDate:        report.AsOfDate,
			AllReconciled:   report.AllReconciled,
			TotalDifference: report.TotalDifference,
		})
	})
}
