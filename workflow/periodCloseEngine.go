package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

var closeTracer = otel.Tracer("settlement-close")

type CloseEngineConfig struct {
	StopOnError             bool            `json:"stop_on_error"`
	AutoReverseAccruals     bool            `json:"auto_reverse_accruals"`
	RequireReconciliation   bool            `json:"require_reconciliation"`
	ReconciliationTolerance decimal.Decimal `json:"reconciliation_tolerance"`
	ParallelTasks           bool            `json:"parallel_tasks"`
	MaxParallel             int             `json:"max_parallel"`
}

func DefaultCloseEngineConfig() CloseEngineConfig {
	return CloseEngineConfig{
		StopOnError:             false,
		AutoReverseAccruals:     true,
		RequireReconciliation:   true,
		ReconciliationTolerance: decimal.New(1, -2),
		ParallelTasks:           false,
		MaxParallel:             4,
	}
}

// LoadCloseEngineConfig reads CLOSE_* overrides.
func LoadCloseEngineConfig() CloseEngineConfig {
	def := DefaultCloseEngineConfig()
	return CloseEngineConfig{
		StopOnError:             config.BoolFromEnv("CLOSE_STOP_ON_ERROR", def.StopOnError),
		AutoReverseAccruals:     config.BoolFromEnv("CLOSE_AUTO_REVERSE_ACCRUALS", def.AutoReverseAccruals),
		RequireReconciliation:   config.BoolFromEnv("CLOSE_REQUIRE_RECONCILIATION", def.RequireReconciliation),
		ReconciliationTolerance: config.DecimalFromEnv("CLOSE_RECONCILIATION_TOLERANCE", def.ReconciliationTolerance),
		ParallelTasks:           config.ParallelCloseTasks(),
		MaxParallel:             config.IntFromEnv("CLOSE_MAX_PARALLEL", def.MaxParallel),
	}
}

// AccrualConfig applies the engine's reversal switch to the accrual settings.
func (c CloseEngineConfig) AccrualConfig(base AccrualGeneratorConfig) AccrualGeneratorConfig {
	base.GenerateReversals = c.AutoReverseAccruals
	return base
}

// CloseRequest is what a handler sees: the company, the period and the task being run.
type CloseRequest struct {
	CompanyCode string
	Period      models.FiscalPeriod
	Task        models.CloseTask
}

// EntryHandlerFunc produces journal entries and their total amount.
type EntryHandlerFunc func(ctx context.Context, req CloseRequest) ([]models.JournalEntry, decimal.Decimal, error)

// ReconciliationHandlerFunc returns the GL minus subledger difference for the task's subledger.
type ReconciliationHandlerFunc func(ctx context.Context, req CloseRequest) (decimal.Decimal, error)

// CloseHandler carries exactly one of Entries or Reconcile.
type CloseHandler struct {
	Entries   EntryHandlerFunc
	Reconcile ReconciliationHandlerFunc
}

type CloseHandlerRegistry map[models.CloseTask]CloseHandler

func (r CloseHandlerRegistry) RegisterEntries(fn EntryHandlerFunc, tasks ...models.CloseTask) {
	for _, t := range tasks {
		r[t] = CloseHandler{Entries: fn}
	}
}

func (r CloseHandlerRegistry) RegisterReconciliation(fn ReconciliationHandlerFunc, tasks ...models.CloseTask) {
	for _, t := range tasks {
		r[t] = CloseHandler{Reconcile: fn}
	}
}

func (r CloseHandlerRegistry) Has(task models.CloseTask) bool {
	h, ok := r[task]
	return ok && (h.Entries != nil || h.Reconcile != nil)
}

func (r CloseHandlerRegistry) hasReconciliation() bool {
	for task, h := range r {
		if task.IsReconciliation() && h.Reconcile != nil {
			return true
		}
	}
	return false
}

var errStopRun = errors.New("close run halted")

// CloseEngine runs close schedules against a handler registry.
// The run counter is shared, so one engine may serve concurrent requests.
type CloseEngine struct {
	Config   CloseEngineConfig
	Handlers CloseHandlerRegistry
	Logger   *logrus.Logger
	// Clock stamps task and run times; nil uses the period end date so reruns are reproducible.
	Clock func() time.Time
	// RunSequence supplies run numbers shared across processes. nil or an error falls back
	// to the engine's own counter.
	RunSequence func(ctx context.Context) (int64, error)
	counter     atomic.Uint64
}

func NewCloseEngine(cfg CloseEngineConfig, handlers CloseHandlerRegistry, logger *logrus.Logger) *CloseEngine {
	if handlers == nil {
		handlers = CloseHandlerRegistry{}
	}
	return &CloseEngine{Config: cfg, Handlers: handlers, Logger: logger}
}

func (e *CloseEngine) now(period models.FiscalPeriod) time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return period.EndDate
}

func (e *CloseEngine) nextRunId(ctx context.Context) string {
	if e.RunSequence != nil {
		if n, err := e.RunSequence(ctx); err == nil && n > 0 {
			return fmt.Sprintf("CLOSE-%08d", n)
		}
	}
	return fmt.Sprintf("CLOSE-%08d", e.counter.Add(1))
}

// taskOutcome is one executed task plus the entries it produced.
type taskOutcome struct {
	result  models.CloseTaskResult
	entries []models.JournalEntry
}

// ExecuteClose walks the schedule in order. Dependencies are checked only against
// results already recorded, so a prerequisite listed after its dependent is never met.
func (e *CloseEngine) ExecuteClose(ctx context.Context, companyCode string, period models.FiscalPeriod, schedule models.CloseSchedule) *models.PeriodCloseRun {
	runId := e.nextRunId(ctx)

	ctx, span := closeTracer.Start(ctx, "CloseEngine.ExecuteClose")
	defer span.End()
	span.SetAttributes(
		attribute.String("close.run_id", runId),
		attribute.String("close.company_code", companyCode),
		attribute.String("close.period", period.Key()),
	)

	run := models.NewPeriodCloseRun(runId, companyCode, period)
	run.Status = models.PeriodCloseStatusInProgress
	started := e.now(period)
	run.StartedAt = &started

	tasks := schedule.Tasks
	for i := 0; i < len(tasks); {
		group := e.parallelGroup(run, tasks, i, period)
		var outcomes []taskOutcome
		if len(group) > 1 {
			outcomes = e.runGroup(ctx, companyCode, period, group)
		} else {
			outcomes = []taskOutcome{e.runScheduled(ctx, run, companyCode, period, tasks[i])}
			group = tasks[i : i+1]
		}

		for _, out := range outcomes {
			run.TaskResults = append(run.TaskResults, out.result)
			run.TotalJournalEntries += out.result.JournalEntriesCreated
			run.JournalEntries = append(run.JournalEntries, out.entries...)
			if out.result.Status.State != models.CloseTaskStateFailed {
				continue
			}
			run.Errors = append(run.Errors, fmt.Sprintf("%s: %s", out.result.Task.Name(), out.result.Status.Reason))
			if e.Config.StopOnError {
				run.Status = models.PeriodCloseStatusFailed
				span.SetStatus(codes.Error, "stopped on error")
				e.logRun(run)
				return run
			}
		}
		i += len(group)
	}

	completed := e.now(period)
	run.CompletedAt = &completed
	if len(run.Errors) == 0 {
		run.Status = models.PeriodCloseStatusCompleted
	} else {
		run.Status = models.PeriodCloseStatusCompletedWithErrors
	}
	e.logRun(run)
	return run
}

// parallelGroup returns the contiguous run of parallelizable tasks starting at i whose
// prerequisites are already recorded as successful. Groups of one fall back to sequential.
func (e *CloseEngine) parallelGroup(run *models.PeriodCloseRun, tasks []models.ScheduledCloseTask, i int, period models.FiscalPeriod) []models.ScheduledCloseTask {
	if !e.Config.ParallelTasks {
		return nil
	}
	j := i
	for j < len(tasks) && tasks[j].CanParallelize {
		if !tasks[j].Task.IsYearEndOnly() || period.IsYearEnd {
			if !dependenciesMet(run, tasks[j].DependsOn) {
				break
			}
		}
		j++
	}
	if j-i < 2 {
		return nil
	}
	return tasks[i:j]
}

// runGroup runs the group on the caller's ctx, so one failure never cancels a sibling
// that is already running. Under StopOnError, tasks not yet started are skipped; the
// caller reports the first failure in schedule order.
func (e *CloseEngine) runGroup(ctx context.Context, companyCode string, period models.FiscalPeriod, group []models.ScheduledCloseTask) []taskOutcome {
	outcomes := make([]taskOutcome, len(group))
	var stopped atomic.Bool
	var g errgroup.Group
	if e.Config.MaxParallel > 0 {
		g.SetLimit(e.Config.MaxParallel)
	}
	for idx, st := range group {
		g.Go(func() error {
			switch {
			case st.Task.IsYearEndOnly() && !period.IsYearEnd:
				outcomes[idx] = skipped(st.Task, companyCode, period, "Not year-end period")
				return nil
			case stopped.Load():
				outcomes[idx] = skipped(st.Task, companyCode, period, "Run stopped after a failed task")
				return nil
			}
			outcomes[idx] = e.executeTask(ctx, companyCode, period, st)
			if e.Config.StopOnError && outcomes[idx].result.Status.State == models.CloseTaskStateFailed {
				stopped.Store(true)
				return errStopRun
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (e *CloseEngine) runScheduled(ctx context.Context, run *models.PeriodCloseRun, companyCode string, period models.FiscalPeriod, st models.ScheduledCloseTask) taskOutcome {
	if st.Task.IsYearEndOnly() && !period.IsYearEnd {
		return skipped(st.Task, companyCode, period, "Not year-end period")
	}
	if !dependenciesMet(run, st.DependsOn) {
		return skipped(st.Task, companyCode, period, "Dependencies not met")
	}
	return e.executeTask(ctx, companyCode, period, st)
}

func dependenciesMet(run *models.PeriodCloseRun, deps []models.CloseTask) bool {
	for _, dep := range deps {
		res, ok := run.Result(dep)
		if !ok || !res.IsSuccess() {
			return false
		}
	}
	return true
}

func skipped(task models.CloseTask, companyCode string, period models.FiscalPeriod, reason string) taskOutcome {
	result := models.NewCloseTaskResult(task, companyCode, period)
	result.Status = models.TaskSkipped(reason)
	return taskOutcome{result: result}
}

func (e *CloseEngine) executeTask(ctx context.Context, companyCode string, period models.FiscalPeriod, st models.ScheduledCloseTask) taskOutcome {
	ctx, span := closeTracer.Start(ctx, "CloseEngine.Task")
	defer span.End()
	span.SetAttributes(attribute.String("close.task", string(st.Task)))

	result := models.NewCloseTaskResult(st.Task, companyCode, period)
	result.Status = models.CloseTaskStatus{State: models.CloseTaskStateInProgress}
	started := e.now(period)
	result.StartedAt = &started
	req := CloseRequest{CompanyCode: companyCode, Period: period, Task: st.Task}

	var entries []models.JournalEntry
	handler, hasHandler := e.Handlers[st.Task]

	switch {
	case st.Task.IsCustom() && !e.Handlers.Has(st.Task):
		result.Status = models.TaskSkipped(fmt.Sprintf("Custom task '%s' not implemented", st.Task.CustomName()))

	case st.Task.IsReport():
		if hasHandler && handler.Entries != nil {
			if _, _, err := handler.Entries(ctx, req); err != nil {
				result.Status = models.TaskFailed(err.Error())
				break
			}
		}
		result.Status = models.TaskCompleted()
		result.Notes = append(result.Notes, "Report generation completed")

	case !e.Handlers.Has(st.Task):
		result.Status = models.TaskSkipped("No handler")

	case handler.Reconcile != nil:
		diff, err := handler.Reconcile(ctx, req)
		if err != nil {
			result.Status = models.TaskFailed(err.Error())
			break
		}
		result.TotalAmount = diff
		switch {
		case diff.Abs().LessThanOrEqual(e.Config.ReconciliationTolerance):
			result.Status = models.TaskCompleted()
		case e.Config.RequireReconciliation && st.IsMandatory:
			result.Status = models.TaskFailed(fmt.Sprintf("Reconciliation difference: %s", diff))
		default:
			result.Status = models.TaskCompletedWithWarnings(fmt.Sprintf("Reconciliation difference: %s", diff))
		}

	default:
		produced, total, err := handler.Entries(ctx, req)
		if err != nil {
			result.Status = models.TaskFailed(err.Error())
			break
		}
		if err := validateEntries(produced); err != nil {
			result.Status = models.TaskFailed(err.Error())
			break
		}
		entries = produced
		result.JournalEntriesCreated = len(produced)
		result.TotalAmount = total
		result.Status = models.TaskCompleted()
	}

	completed := e.now(period)
	result.CompletedAt = &completed
	if result.Status.State == models.CloseTaskStateFailed {
		span.SetStatus(codes.Error, result.Status.Reason)
	}
	e.logTask(result)
	return taskOutcome{result: result, entries: entries}
}

func validateEntries(entries []models.JournalEntry) error {
	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateCloseReadiness reports blockers that prevent a close and warnings that do not.
func (e *CloseEngine) ValidateCloseReadiness(companyCode string, period models.FiscalPeriod) models.CloseReadinessResult {
	result := models.CloseReadinessResult{
		CompanyCode:  companyCode,
		FiscalPeriod: period,
		IsReady:      true,
		Blockers:     []string{},
		Warnings:     []string{},
	}

	switch period.Status {
	case models.PeriodStatusClosed:
		result.IsReady = false
		result.Blockers = append(result.Blockers, "Period is already closed")
	case models.PeriodStatusLocked:
		result.IsReady = false
		result.Blockers = append(result.Blockers, "Period is locked for audit")
	}

	if !e.Handlers.Has(models.CloseTaskRunDepreciation) {
		result.Warnings = append(result.Warnings, "No depreciation handler configured")
	}
	if !e.Handlers.Has(models.CloseTaskPostAccruedExpenses) && !e.Handlers.Has(models.CloseTaskPostAccruedRevenue) {
		result.Warnings = append(result.Warnings, "No accrual handler configured")
	}
	if e.Config.RequireReconciliation && !e.Handlers.hasReconciliation() {
		result.IsReady = false
		result.Blockers = append(result.Blockers, "Reconciliation required but no handler configured")
	}
	return result
}

func (e *CloseEngine) logTask(r models.CloseTaskResult) {
	if e.Logger == nil {
		return
	}
	fields := logrus.Fields{
		"field":        "CloseEngine",
		"company_code": r.CompanyCode,
		"period":       r.FiscalPeriod.Key(),
		"task":         r.Task,
		"status":       r.Status.String(),
		"entries":      r.JournalEntriesCreated,
		"total_amount": r.TotalAmount.String(),
	}
	switch r.Status.State {
	case models.CloseTaskStateFailed:
		e.Logger.WithFields(fields).Error("close task failed")
	case models.CloseTaskStateCompletedWithWarnings:
		e.Logger.WithFields(fields).Warn("close task completed with warnings")
	default:
		e.Logger.WithFields(fields).Info("close task finished")
	}
}

func (e *CloseEngine) logRun(run *models.PeriodCloseRun) {
	if e.Logger == nil {
		return
	}
	e.Logger.WithFields(logrus.Fields{
		"field":         "CloseEngine",
		"run_id":        run.RunId,
		"company_code":  run.CompanyCode,
		"period":        run.FiscalPeriod.Key(),
		"status":        run.Status,
		"total_entries": run.TotalJournalEntries,
		"errors":        len(run.Errors),
	}).Info("close run finished")
}
