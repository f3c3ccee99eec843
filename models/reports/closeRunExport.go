package reports

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/xuri/excelize/v2"
)

const (
	closeRunSheet       = "Close Run"
	journalSheet        = "Journal Entries"
	reconciliationSheet = "Reconciliation"
	unreconciledSheet   = "Unreconciled Items"
)

var (
	closeTaskHeadings = []string{"Seq", "Task", "State", "Reason", "Entries", "Total Amount", "Notes"}
	journalHeadings   = []string{"Entry Id", "Document", "Posting Date", "Source", "Line", "Account", "Debit", "Credit", "Cost Center", "Text"}
	reconHeadings     = []string{"Reconciliation Id", "Subledger", "GL Account", "GL Balance", "Subledger Balance", "Difference", "Status", "Notes"}
	itemHeadings      = []string{"Reconciliation Id", "Entry Type", "Document", "Amount", "Description"}
)

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func writeRow(f *excelize.File, sheet string, row int, values ...interface{}) error {
	for i, v := range values {
		if err := f.SetCellValue(sheet, cellName(i+1, row), v); err != nil {
			return err
		}
	}
	return nil
}

func writeHeadings(f *excelize.File, sheet string, row int, headings []string) error {
	values := make([]interface{}, len(headings))
	for i, h := range headings {
		values[i] = h
	}
	if err := writeRow(f, sheet, row, values...); err != nil {
		return err
	}
	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, cellName(1, row), cellName(len(headings), row), style)
}

// newWorkbook renames the default sheet so the first sheet carries a real name.
func newWorkbook(first string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", first); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

// ExportCloseRun writes the run header and task results; entries, when given, go to a
// second sheet with one row per journal line.
func ExportCloseRun(rec models.CloseRunRecord, entries []models.JournalEntry) (*excelize.File, error) {
	f, err := newWorkbook(closeRunSheet)
	if err != nil {
		return nil, err
	}

	var runErrors []string
	if rec.Errors != "" {
		_ = json.Unmarshal([]byte(rec.Errors), &runErrors)
	}
	header := [][]interface{}{
		{"Run Id", rec.RunId},
		{"Company", rec.CompanyCode},
		{"Period", fmt.Sprintf("%d-%02d", rec.FiscalYear, rec.FiscalPeriod)},
		{"Status", string(rec.Status)},
		{"Journal Entries", rec.TotalJournalEntries},
		{"Errors", len(runErrors)},
	}
	row := 1
	for _, h := range header {
		if err := writeRow(f, closeRunSheet, row, h...); err != nil {
			_ = f.Close()
			return nil, err
		}
		row++
	}
	for _, e := range runErrors {
		if err := writeRow(f, closeRunSheet, row, "", e); err != nil {
			_ = f.Close()
			return nil, err
		}
		row++
	}

	row++
	if err := writeHeadings(f, closeRunSheet, row, closeTaskHeadings); err != nil {
		_ = f.Close()
		return nil, err
	}
	for _, tr := range rec.TaskResults {
		row++
		amount, _ := tr.TotalAmount.Float64()
		if err := writeRow(f, closeRunSheet, row,
			tr.Sequence, tr.Task.Name(), string(tr.State), tr.Reason, tr.JournalEntriesCreated, amount, tr.Notes,
		); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	if len(entries) > 0 {
		if err := writeJournalSheet(f, entries); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return f, nil
}

func writeJournalSheet(f *excelize.File, entries []models.JournalEntry) error {
	if _, err := f.NewSheet(journalSheet); err != nil {
		return err
	}
	if err := writeHeadings(f, journalSheet, 1, journalHeadings); err != nil {
		return err
	}
	row := 2
	for _, e := range entries {
		for _, l := range e.Lines {
			debit, _ := l.DebitAmount.Float64()
			credit, _ := l.CreditAmount.Float64()
			if err := writeRow(f, journalSheet, row,
				e.EntryId.String(), e.DocumentId, e.PostingDate.Format("2006-01-02"), string(e.Source),
				l.LineNumber, l.AccountCode, debit, credit, l.CostCenter, l.Text,
			); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

// ExportReconciliationReport writes one row per sub-result and a sheet of explained items.
func ExportReconciliationReport(report models.FullReconciliationReport) (*excelize.File, error) {
	f, err := newWorkbook(reconciliationSheet)
	if err != nil {
		return nil, err
	}
	if err := writeRow(f, reconciliationSheet, 1, "Company", report.CompanyCode, "As Of", report.AsOfDate.Format("2006-01-02")); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeHeadings(f, reconciliationSheet, 3, reconHeadings); err != nil {
		_ = f.Close()
		return nil, err
	}

	row := 4
	var items [][]interface{}
	for _, r := range report.Results() {
		gl, _ := r.GlBalance.Float64()
		sub, _ := r.SubledgerBalance.Float64()
		diff, _ := r.Difference.Float64()
		if err := writeRow(f, reconciliationSheet, row,
			r.ReconciliationId, string(r.SubledgerType), r.GlAccount, gl, sub, diff, r.Status.Label(), r.Notes,
		); err != nil {
			_ = f.Close()
			return nil, err
		}
		row++
		for _, it := range r.UnreconciledItems {
			amount, _ := it.Amount.Float64()
			items = append(items, []interface{}{r.ReconciliationId, it.EntryType, it.DocumentNumber, amount, it.Description})
		}
	}

	total, _ := report.TotalDifference.Float64()
	overall := "UNRECONCILED"
	if report.AllReconciled {
		overall = "RECONCILED"
	}
	if err := writeRow(f, reconciliationSheet, row+1, "Overall", overall, "Total Difference", total); err != nil {
		_ = f.Close()
		return nil, err
	}

	if len(items) > 0 {
		if _, err := f.NewSheet(unreconciledSheet); err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := writeHeadings(f, unreconciledSheet, 1, itemHeadings); err != nil {
			_ = f.Close()
			return nil, err
		}
		for i, it := range items {
			if err := writeRow(f, unreconciledSheet, i+2, it...); err != nil {
				_ = f.Close()
				return nil, err
			}
		}
	}
	return f, nil
}

// WorkbookBytes serializes and closes f.
func WorkbookBytes(f *excelize.File) ([]byte, error) {
	defer f.Close()
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
