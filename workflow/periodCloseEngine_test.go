package workflow

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/shopspring/decimal"
)

func testEntry(doc string, amount string) models.JournalEntry {
	e := models.JournalEntry{CompanyCode: testCompany, DocumentId: doc, PostingDate: january().EndDate, Source: models.JournalSourcePeriodClose}
	e.EntryId = DeriveEntryId(1, doc)
	e.AddLine(models.DebitLine(1, "6000", d(amount)))
	e.AddLine(models.CreditLine(2, "2000", d(amount)))
	return e
}

func entriesHandler(doc, amount string) EntryHandlerFunc {
	return func(context.Context, CloseRequest) ([]models.JournalEntry, decimal.Decimal, error) {
		return []models.JournalEntry{testEntry(doc, amount)}, d(amount), nil
	}
}

func failingHandler(msg string) EntryHandlerFunc {
	return func(context.Context, CloseRequest) ([]models.JournalEntry, decimal.Decimal, error) {
		return nil, decimal.Zero, errors.New(msg)
	}
}

func schedule(tasks ...models.ScheduledCloseTask) models.CloseSchedule {
	return models.CloseSchedule{ScheduleId: "TEST", CompanyCode: testCompany, PeriodType: models.PeriodTypeMonthly, Tasks: tasks}
}

func task(t models.CloseTask, seq int) models.ScheduledCloseTask {
	return models.NewScheduledCloseTask(t, seq)
}

func mustResult(t *testing.T, run *models.PeriodCloseRun, task models.CloseTask) models.CloseTaskResult {
	t.Helper()
	res, ok := run.Result(task)
	if !ok {
		t.Fatalf("no result for %s", task)
	}
	return res
}

func TestExecuteClose_CompletedRunCollectsEntries(t *testing.T) {
	reg := CloseHandlerRegistry{}
	reg.RegisterEntries(entriesHandler("DEP-1", "1800"), models.CloseTaskRunDepreciation)
	reg.RegisterEntries(entriesHandler("ACC-1", "500"), models.CloseTaskPostAccruedExpenses)
	engine := NewCloseEngine(DefaultCloseEngineConfig(), reg, nil)

	run := engine.ExecuteClose(context.Background(), testCompany, january(), schedule(
		task(models.CloseTaskRunDepreciation, 1),
		task(models.CloseTaskPostAccruedExpenses, 2),
	))
	if run.Status != models.PeriodCloseStatusCompleted {
		t.Fatalf("status=%s errors=%v", run.Status, run.Errors)
	}
	if run.RunId != "CLOSE-00000001" {
		t.Fatalf("run id=%s", run.RunId)
	}
	if run.TotalJournalEntries != 2 || len(run.JournalEntries) != 2 {
		t.Fatalf("expected 2 entries, got %d/%d", run.TotalJournalEntries, len(run.JournalEntries))
	}
	if !run.StartedAt.Equal(january().EndDate) || !run.CompletedAt.Equal(january().EndDate) {
		t.Fatalf("nil clock should stamp the period end date")
	}
	if got := engine.ExecuteClose(context.Background(), testCompany, january(), schedule()).RunId; got != "CLOSE-00000002" {
		t.Fatalf("second run id=%s", got)
	}
}

func TestExecuteClose_ScheduleOrderPreserved(t *testing.T) {
	reg := CloseHandlerRegistry{}
	reg.RegisterEntries(entriesHandler("A", "1"), models.CloseTaskPostAccruedRevenue)
	reg.RegisterEntries(entriesHandler("B", "1"), models.CloseTaskRunDepreciation)
	engine := NewCloseEngine(DefaultCloseEngineConfig(), reg, nil)

	run := engine.ExecuteClose(context.Background(), testCompany, january(), schedule(
		task(models.CloseTaskPostAccruedRevenue, 1),
		task(models.CloseTaskRunDepreciation, 2),
		task(models.CloseTaskEliminateIntercompany, 3),
	))
	want := []models.CloseTask{models.CloseTaskPostAccruedRevenue, models.CloseTaskRunDepreciation, models.CloseTaskEliminateIntercompany}
	for i, w := range want {
		if run.TaskResults[i].Task != w {
			t.Fatalf("result %d is %s, want %s", i, run.TaskResults[i].Task, w)
		}
	}
	if got := run.TaskResults[2].Status; got.State != models.CloseTaskStateSkipped || got.Reason != "No handler" {
		t.Fatalf("unregistered task status=%+v", got)
	}
}

func TestExecuteClose_DependencySkip(t *testing.T) {
	reg := CloseHandlerRegistry{}
	reg.RegisterEntries(failingHandler("asset register unavailable"), models.CloseTaskRunDepreciation)
	reg.RegisterEntries(entriesHandler("ACC-1", "10"), models.CloseTaskPostAccruedExpenses)
	engine := NewCloseEngine(DefaultCloseEngineConfig(), reg, nil)

	run := engine.ExecuteClose(context.Background(), testCompany, january(), schedule(
		task(models.CloseTaskRunDepreciation, 1),
		task(models.CloseTaskPostAccruedExpenses, 2).After(models.CloseTaskRunDepreciation),
	))
	if run.Status != models.PeriodCloseStatusCompletedWithErrors {
		t.Fatalf("status=%s", run.Status)
	}
	if res := mustResult(t, run, models.CloseTaskRunDepreciation); res.Status.State != models.CloseTaskStateFailed {
		t.Fatalf("depreciation=%+v", res.Status)
	}
	res := mustResult(t, run, models.CloseTaskPostAccruedExpenses)
	if res.Status.State != models.CloseTaskStateSkipped || res.Status.Reason != "Dependencies not met" {
		t.Fatalf("dependent=%+v", res.Status)
	}
	if len(run.Errors) != 1 || !strings.HasPrefix(run.Errors[0], "Run Depreciation: ") {
		t.Fatalf("errors=%v", run.Errors)
	}
	if len(run.JournalEntries) != 0 {
		t.Fatalf("no entries expected, got %d", len(run.JournalEntries))
	}
}

func TestExecuteClose_DependencyListedLaterNeverMet(t *testing.T) {
	reg := CloseHandlerRegistry{}
	reg.RegisterEntries(entriesHandler("A", "1"), models.CloseTaskRunDepreciation, models.CloseTaskPostAccruedExpenses)
	engine := NewCloseEngine(DefaultCloseEngineConfig(), reg, nil)

	run := engine.ExecuteClose(context.Background(), testCompany, january(), schedule(
		task(models.CloseTaskPostAccruedExpenses, 1).After(models.CloseTaskRunDepreciation),
		task(models.CloseTaskRunDepreciation, 2),
	))
	if res := mustResult(t, run, models.CloseTaskPostAccruedExpenses); res.Status.State != models.CloseTaskStateSkipped {
		t.Fatalf("expected skip, got %+v", res.Status)
	}
}

func TestExecuteClose_StopOnError(t *testing.T) {
	reg := CloseHandlerRegistry{}
	reg.RegisterEntries(failingHandler("boom"), models.CloseTaskRunDepreciation)
	reg.RegisterEntries(entriesHandler("ACC-1", "10"), models.CloseTaskPostAccruedExpenses)
	cfg := DefaultCloseEngineConfig()
	cfg.StopOnError = true
	engine := NewCloseEngine(cfg, reg, nil)

	run := engine.ExecuteClose(context.Background(), testCompany, january(), schedule(
		task(models.CloseTaskRunDepreciation, 1),
		task(models.CloseTaskPostAccruedExpenses, 2),
	))
	if run.Status != models.PeriodCloseStatusFailed {
		t.Fatalf("status=%s", run.Status)
	}
	if len(run.TaskResults) != 1 {
		t.Fatalf("run should stop after the failure, got %d results", len(run.TaskResults))
	}
	if run.CompletedAt != nil {
		t.Fatalf("failed run should not be stamped complete")
	}
}

func TestExecuteClose_ParallelStopOnErrorReportsRealFailure(t *testing.T) {
	var arDone atomic.Bool
	ar := func(ctx context.Context, _ CloseRequest) (decimal.Decimal, error) {
		select {
		case <-time.After(100 * time.Millisecond):
			arDone.Store(true)
			return decimal.Zero, nil
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	ap := func(context.Context, CloseRequest) (decimal.Decimal, error) {
		return decimal.Zero, errors.New("ap subledger unavailable")
	}

	tests := []struct {
		name        string
		tasks       []models.ScheduledCloseTask
		wantResults int
	}{
		{
			name: "slow sibling scheduled first",
			tasks: []models.ScheduledCloseTask{
				task(models.CloseTaskReconcileArToGl, 1).Parallelizable(),
				task(models.CloseTaskReconcileApToGl, 2).Parallelizable(),
			},
			wantResults: 2,
		},
		{
			name: "failing task scheduled first",
			tasks: []models.ScheduledCloseTask{
				task(models.CloseTaskReconcileApToGl, 1).Parallelizable(),
				task(models.CloseTaskReconcileArToGl, 2).Parallelizable(),
			},
			wantResults: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			arDone.Store(false)
			reg := CloseHandlerRegistry{}
			reg.RegisterReconciliation(ar, models.CloseTaskReconcileArToGl)
			reg.RegisterReconciliation(ap, models.CloseTaskReconcileApToGl)
			cfg := DefaultCloseEngineConfig()
			cfg.ParallelTasks = true
			cfg.StopOnError = true
			engine := NewCloseEngine(cfg, reg, nil)

			run := engine.ExecuteClose(context.Background(), testCompany, january(), schedule(tt.tasks...))
			if run.Status != models.PeriodCloseStatusFailed {
				t.Fatalf("status=%s", run.Status)
			}
			if !arDone.Load() {
				t.Fatalf("a running sibling must not be cancelled by the failure")
			}
			if len(run.Errors) != 1 || !strings.HasPrefix(run.Errors[0], models.CloseTaskReconcileApToGl.Name()) {
				t.Fatalf("errors=%v", run.Errors)
			}
			if !strings.Contains(run.Errors[0], "ap subledger unavailable") {
				t.Fatalf("errors=%v", run.Errors)
			}
			if len(run.TaskResults) != tt.wantResults {
				t.Fatalf("results=%d, want %d", len(run.TaskResults), tt.wantResults)
			}
			if res, ok := run.Result(models.CloseTaskReconcileArToGl); ok && res.Status.State != models.CloseTaskStateCompleted {
				t.Fatalf("AR should complete, got %+v", res.Status)
			}
		})
	}
}

func TestExecuteClose_ReconciliationTolerance(t *testing.T) {
	diffs := map[models.CloseTask]decimal.Decimal{
		models.CloseTaskReconcileArToGl: d("0.01"),
		models.CloseTaskReconcileApToGl: d("25"),
		models.CloseTaskReconcileFaToGl: d("-25"),
	}
	reg := CloseHandlerRegistry{}
	reg.RegisterReconciliation(func(_ context.Context, req CloseRequest) (decimal.Decimal, error) {
		return diffs[req.Task], nil
	}, models.CloseTaskReconcileArToGl, models.CloseTaskReconcileApToGl, models.CloseTaskReconcileFaToGl)
	engine := NewCloseEngine(DefaultCloseEngineConfig(), reg, nil)

	run := engine.ExecuteClose(context.Background(), testCompany, january(), schedule(
		task(models.CloseTaskReconcileArToGl, 1),
		task(models.CloseTaskReconcileApToGl, 2),
		task(models.CloseTaskReconcileFaToGl, 3).Optional(),
	))
	if res := mustResult(t, run, models.CloseTaskReconcileArToGl); res.Status.State != models.CloseTaskStateCompleted {
		t.Fatalf("difference at tolerance should complete, got %+v", res.Status)
	}
	ap := mustResult(t, run, models.CloseTaskReconcileApToGl)
	if ap.Status.State != models.CloseTaskStateFailed || ap.Status.Reason != "Reconciliation difference: 25" {
		t.Fatalf("mandatory AP break should fail, got %+v", ap.Status)
	}
	if !ap.TotalAmount.Equal(d("25")) {
		t.Fatalf("total amount should carry the difference, got %s", ap.TotalAmount)
	}
	fa := mustResult(t, run, models.CloseTaskReconcileFaToGl)
	if fa.Status.State != models.CloseTaskStateCompletedWithWarnings {
		t.Fatalf("optional FA break should warn, got %+v", fa.Status)
	}
}

func TestExecuteClose_ReportsAndCustomTasks(t *testing.T) {
	engine := NewCloseEngine(DefaultCloseEngineConfig(), nil, nil)
	custom := models.CustomCloseTask("Bank Fees")
	run := engine.ExecuteClose(context.Background(), testCompany, january(), schedule(
		task(models.CloseTaskGenerateTrialBalance, 1),
		task(custom, 2),
		task(models.CloseTaskCloseIncomeStatement, 3),
	))
	tb := mustResult(t, run, models.CloseTaskGenerateTrialBalance)
	if tb.Status.State != models.CloseTaskStateCompleted || len(tb.Notes) != 1 {
		t.Fatalf("report task=%+v", tb)
	}
	c := mustResult(t, run, custom)
	if c.Status.Reason != "Custom task 'Bank Fees' not implemented" {
		t.Fatalf("custom=%+v", c.Status)
	}
	ye := mustResult(t, run, models.CloseTaskCloseIncomeStatement)
	if ye.Status.Reason != "Not year-end period" {
		t.Fatalf("year-end only task=%+v", ye.Status)
	}
	if run.Status != models.PeriodCloseStatusCompleted {
		t.Fatalf("skips are not errors, got %s", run.Status)
	}
}

func TestExecuteClose_UnbalancedEntryFailsTask(t *testing.T) {
	reg := CloseHandlerRegistry{}
	reg.RegisterEntries(func(context.Context, CloseRequest) ([]models.JournalEntry, decimal.Decimal, error) {
		e := testEntry("BAD", "10")
		e.Lines[1].CreditAmount = d("9")
		return []models.JournalEntry{e}, d("10"), nil
	}, models.CloseTaskRunDepreciation)
	run := NewCloseEngine(DefaultCloseEngineConfig(), reg, nil).ExecuteClose(context.Background(), testCompany, january(), schedule(task(models.CloseTaskRunDepreciation, 1)))
	res := mustResult(t, run, models.CloseTaskRunDepreciation)
	if res.Status.State != models.CloseTaskStateFailed || len(run.JournalEntries) != 0 {
		t.Fatalf("unbalanced output must fail the task, got %+v", res.Status)
	}
}

func TestExecuteClose_ParallelGroupKeepsOrder(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := func(doc string, delay time.Duration) EntryHandlerFunc {
		return func(context.Context, CloseRequest) ([]models.JournalEntry, decimal.Decimal, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(delay)
			inFlight.Add(-1)
			return []models.JournalEntry{testEntry(doc, "1")}, d("1"), nil
		}
	}
	reg := CloseHandlerRegistry{}
	reg.RegisterEntries(slow("AR", 30*time.Millisecond), models.CloseTaskPostAccruedRevenue)
	reg.RegisterEntries(slow("AE", 10*time.Millisecond), models.CloseTaskPostAccruedExpenses)
	reg.RegisterEntries(slow("PP", 1*time.Millisecond), models.CloseTaskPostPrepaidAmortization)
	cfg := DefaultCloseEngineConfig()
	cfg.ParallelTasks = true
	cfg.MaxParallel = 3
	engine := NewCloseEngine(cfg, reg, nil)

	run := engine.ExecuteClose(context.Background(), testCompany, january(), schedule(
		task(models.CloseTaskPostAccruedRevenue, 1).Parallelizable(),
		task(models.CloseTaskPostAccruedExpenses, 2).Parallelizable(),
		task(models.CloseTaskPostPrepaidAmortization, 3).Parallelizable(),
	))
	if run.Status != models.PeriodCloseStatusCompleted {
		t.Fatalf("status=%s", run.Status)
	}
	wantDocs := []string{"AR", "AE", "PP"}
	for i, w := range wantDocs {
		if run.JournalEntries[i].DocumentId != w {
			t.Fatalf("entry %d is %s, want %s", i, run.JournalEntries[i].DocumentId, w)
		}
	}
	if peak.Load() < 2 {
		t.Fatalf("expected tasks to overlap, peak=%d", peak.Load())
	}
}

func TestExecuteClose_RunSequenceOverride(t *testing.T) {
	engine := NewCloseEngine(DefaultCloseEngineConfig(), nil, nil)
	engine.RunSequence = func(context.Context) (int64, error) { return 42, nil }
	if id := engine.ExecuteClose(context.Background(), testCompany, january(), schedule()).RunId; id != "CLOSE-00000042" {
		t.Fatalf("run id=%s", id)
	}
	engine.RunSequence = func(context.Context) (int64, error) { return 0, errors.New("redis down") }
	if id := engine.ExecuteClose(context.Background(), testCompany, january(), schedule()).RunId; id != "CLOSE-00000001" {
		t.Fatalf("fallback run id=%s", id)
	}
}

func TestValidateCloseReadiness(t *testing.T) {
	engine := NewCloseEngine(DefaultCloseEngineConfig(), nil, nil)

	r := engine.ValidateCloseReadiness(testCompany, january())
	if r.IsReady {
		t.Fatalf("reconciliation is required but no handler exists")
	}
	if len(r.Warnings) != 2 {
		t.Fatalf("expected depreciation and accrual warnings, got %v", r.Warnings)
	}

	full := NewCloseEngine(DefaultCloseEngineConfig(), BuildCloseHandlers(CloseHandlerOptions{}), nil)
	if r := full.ValidateCloseReadiness(testCompany, january()); !r.IsReady || len(r.Warnings) != 0 {
		t.Fatalf("fully wired engine should be ready, got %+v", r)
	}

	for status, blocker := range map[models.PeriodStatus]string{
		models.PeriodStatusClosed: "Period is already closed",
		models.PeriodStatusLocked: "Period is locked for audit",
	} {
		r := full.ValidateCloseReadiness(testCompany, january().WithStatus(status))
		if r.IsReady || len(r.Blockers) != 1 || r.Blockers[0] != blocker {
			t.Fatalf("%s: %+v", status, r)
		}
	}
	if r := full.ValidateCloseReadiness(testCompany, january().WithStatus(models.PeriodStatusSoftClosed)); !r.IsReady {
		t.Fatalf("soft-closed period can still be closed")
	}
}
