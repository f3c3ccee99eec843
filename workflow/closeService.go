package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/mmdatafocus/settlement_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var ErrCloseNotReady = errors.New("period is not ready to close")

const closeRunCacheTTL = 24 * time.Hour

func closeRunCacheKey(runId string) string {
	return "closerun:" + runId
}

// CloseService runs a close end to end: lock, readiness, execution, posting, persistence.
// DB and Sink are optional; without them the run stays in memory.
type CloseService struct {
	Engine  *CloseEngine
	Sink    JournalSink
	DB      *gorm.DB
	Logger  *logrus.Logger
	LockTTL time.Duration
}

func NewCloseService(engine *CloseEngine, sink JournalSink, db *gorm.DB, logger *logrus.Logger) *CloseService {
	return &CloseService{Engine: engine, Sink: sink, DB: db, Logger: logger, LockTTL: 30 * time.Minute}
}

type CloseOutcome struct {
	Run       *models.PeriodCloseRun      `json:"run"`
	Readiness models.CloseReadinessResult `json:"readiness"`
	Posting   PostingSummary              `json:"posting"`
}

func (s *CloseService) RunClose(ctx context.Context, companyCode string, period models.FiscalPeriod, schedule models.CloseSchedule) (CloseOutcome, error) {
	var out CloseOutcome

	release, err := AcquireCloseLock(ctx, companyCode, period.Key(), s.LockTTL)
	if err != nil {
		return out, err
	}
	defer release()

	out.Readiness = s.Engine.ValidateCloseReadiness(companyCode, period)
	if !out.Readiness.IsReady {
		return out, fmt.Errorf("%s %s: %s: %w", companyCode, period.Key(), strings.Join(out.Readiness.Blockers, "; "), ErrCloseNotReady)
	}

	run := s.Engine.ExecuteClose(ctx, companyCode, period, schedule)
	out.Run = run
	ctx = utils.SetCloseRunIdInContext(ctx, run.RunId)

	if s.Sink != nil && run.Status != models.PeriodCloseStatusFailed && len(run.JournalEntries) > 0 {
		summary, err := s.Sink.PostEntries(ctx, run.JournalEntries, run.RunId)
		out.Posting = summary
		if err != nil {
			run.Errors = append(run.Errors, fmt.Sprintf("Post Journal Entries: %s", err))
			run.Status = models.PeriodCloseStatusCompletedWithErrors
		}
	}

	if s.DB != nil {
		if _, err := SaveCloseRun(ctx, s.DB, run); err != nil {
			config.LogError(s.Logger, "CloseService", "RunClose", "save close run", map[string]interface{}{
				"run_id":       run.RunId,
				"company_code": companyCode,
			}, err)
			return out, err
		}
	}
	s.cacheRun(ctx, run)
	return out, nil
}

func (s *CloseService) cacheRun(ctx context.Context, run *models.PeriodCloseRun) {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	record, err := models.NewCloseRunRecord(run, correlationId)
	if err != nil {
		return
	}
	if err := config.SetRedisObject(ctx, closeRunCacheKey(run.RunId), record, closeRunCacheTTL); err != nil {
		config.LogError(s.Logger, "CloseService", "cacheRun", "cache close run", run.RunId, err)
	}
}

// GetCloseRun reads the cache first, then the database.
func (s *CloseService) GetCloseRun(ctx context.Context, runId string) (models.CloseRunRecord, error) {
	var record models.CloseRunRecord
	if ok, err := config.GetRedisObject(ctx, closeRunCacheKey(runId), &record); err == nil && ok {
		return record, nil
	}
	if s.DB == nil {
		return record, utils.ErrorRecordNotFound
	}
	record, err := LoadCloseRun(ctx, s.DB, runId)
	if err != nil {
		return record, err
	}
	_ = config.SetRedisObject(ctx, closeRunCacheKey(runId), record, closeRunCacheTTL)
	return record, nil
}

// InvalidateCloseRunCache drops the cached status so the next read goes to the database.
func InvalidateCloseRunCache(ctx context.Context, runId string) error {
	return config.RemoveRedisKey(ctx, closeRunCacheKey(runId))
}
