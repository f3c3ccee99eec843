package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/mmdatafocus/settlement_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxOutboxBackoff = 10 * time.Minute

// PublishFunc publishes one settlement event and returns the broker message id.
type PublishFunc func(ctx context.Context, msg config.PubSubMessage) (string, error)

// OutboxDispatcher publishes SettlementOutboxRecord rows committed by the posting and
// close transactions. Delivery is at-least-once; consumers dedupe on the record id.
type OutboxDispatcher struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	DispatcherID string
	Publish      PublishFunc

	BatchSize      int
	PollInterval   time.Duration
	LockTimeout    time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// DispatchSummary counts what one batch did.
type DispatchSummary struct {
	Claimed int
	Sent    int
	Retried int
	Dead    int
}

func NewOutboxDispatcher(db *gorm.DB, logger *logrus.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{
		DB:             db,
		Logger:         logger,
		DispatcherID:   uuid.NewString(),
		Publish:        config.PublishSettlementEventWithResult,
		BatchSize:      config.IntFromEnv("OUTBOX_BATCH_SIZE", 50),
		PollInterval:   500 * time.Millisecond,
		LockTimeout:    30 * time.Second,
		MaxAttempts:    config.IntFromEnv("OUTBOX_MAX_ATTEMPTS", 20),
		InitialBackoff: 5 * time.Second,
	}
}

// nextBackoff doubles InitialBackoff per prior attempt.
func (d *OutboxDispatcher) nextBackoff(attempt int) time.Duration {
	backoff := d.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= maxOutboxBackoff {
			return maxOutboxBackoff
		}
	}
	return backoff
}

func (d *OutboxDispatcher) exhausted(attempts int) bool {
	return d.MaxAttempts > 0 && attempts >= d.MaxAttempts
}

// Run polls until ctx is cancelled.
func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()
	for {
		if summary, err := d.DispatchOnce(ctx); err != nil {
			config.LogError(d.Logger, "OutboxDispatcher", "Run", "dispatch batch", d.DispatcherID, err)
		} else if summary.Claimed == d.BatchSize {
			// A full batch means more is waiting.
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchOnce claims one batch across companies and publishes it.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (DispatchSummary, error) {
	var summary DispatchSummary
	if d.DB == nil {
		return summary, nil
	}
	publish := d.Publish
	if publish == nil {
		publish = config.PublishSettlementEventWithResult
	}
	ctx = utils.SetSkipCompanyScopeInContext(ctx, true)
	now := time.Now().UTC()

	claimed, dead, err := d.claimBatch(ctx, now)
	if err != nil {
		return summary, err
	}
	summary.Claimed = len(claimed) + dead
	summary.Dead = dead

	for _, rec := range claimed {
		pubID, pubErr := publish(ctx, models.ConvertToPubSubMessage(rec))
		switch {
		case pubErr == nil:
			d.update(ctx, rec.ID, sentFields(pubID, time.Now().UTC()))
			summary.Sent++
		case d.exhausted(rec.PublishAttempts):
			d.update(ctx, rec.ID, deadFields(pubErr.Error()))
			d.logFailure(rec, pubErr, nil)
			summary.Dead++
		default:
			next := time.Now().UTC().Add(d.nextBackoff(rec.PublishAttempts))
			d.update(ctx, rec.ID, retryFields(pubErr.Error(), next))
			d.logFailure(rec, pubErr, &next)
			summary.Retried++
		}
	}
	return summary, nil
}

// claimBatch locks due rows (PENDING or FAILED past next_attempt_at, and PROCESSING rows
// whose dispatcher stopped holding them) and marks them PROCESSING for this dispatcher.
// Rows already out of attempts go straight to DEAD and are counted, not returned.
func (d *OutboxDispatcher) claimBatch(ctx context.Context, now time.Time) ([]models.SettlementOutboxRecord, int, error) {
	var claimed []models.SettlementOutboxRecord
	dead := 0
	err := d.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []models.SettlementOutboxRecord
		err := tx.
			Where("(publish_status IN ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)) OR (publish_status = ? AND locked_at <= ?)",
				[]string{models.OutboxPublishStatusPending, models.OutboxPublishStatusFailed}, now,
				models.OutboxPublishStatusProcessing, now.Add(-d.LockTimeout)).
			Order("id ASC").
			Limit(d.BatchSize).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Find(&due).Error
		if err != nil {
			return err
		}
		for _, rec := range due {
			if d.exhausted(rec.PublishAttempts) {
				msg := fmt.Sprintf("max publish attempts exceeded (%d)", d.MaxAttempts)
				if err := tx.Model(&models.SettlementOutboxRecord{}).Where("id = ?", rec.ID).Updates(deadFields(msg)).Error; err != nil {
					return err
				}
				dead++
				continue
			}
			if err := tx.Model(&models.SettlementOutboxRecord{}).Where("id = ?", rec.ID).Updates(map[string]interface{}{
				"publish_status":     models.OutboxPublishStatusProcessing,
				"locked_at":          now,
				"locked_by":          d.DispatcherID,
				"publish_attempts":   gorm.Expr("publish_attempts + 1"),
				"last_publish_error": nil,
				"next_attempt_at":    nil,
			}).Error; err != nil {
				return err
			}
			rec.PublishAttempts++
			claimed = append(claimed, rec)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return claimed, dead, nil
}

func (d *OutboxDispatcher) update(ctx context.Context, recordID int, fields map[string]interface{}) {
	err := d.DB.WithContext(ctx).Model(&models.SettlementOutboxRecord{}).Where("id = ?", recordID).Updates(fields).Error
	if err != nil {
		config.LogError(d.Logger, "OutboxDispatcher", "update", "settle outbox record", recordID, err)
	}
}

func (d *OutboxDispatcher) logFailure(rec models.SettlementOutboxRecord, err error, next *time.Time) {
	if d.Logger == nil {
		return
	}
	fields := logrus.Fields{
		"field":        "OutboxDispatcher",
		"company_code": rec.CompanyCode,
		"event_type":   rec.EventType,
		"aggregate_id": rec.AggregateId,
		"record_id":    rec.ID,
		"attempt":      rec.PublishAttempts,
	}
	if next == nil {
		d.Logger.WithFields(fields).Errorf("settlement event moved to DEAD: %v", err)
		return
	}
	fields["next_attempt_at"] = next.Format(time.RFC3339Nano)
	d.Logger.WithFields(fields).Errorf("settlement event publish failed: %v", err)
}

func sentFields(pubsubMessageId string, at time.Time) map[string]interface{} {
	return map[string]interface{}{
		"publish_status":     models.OutboxPublishStatusSent,
		"published_at":       at,
		"pub_sub_message_id": pubsubMessageId,
		"locked_at":          nil,
		"locked_by":          nil,
		"next_attempt_at":    nil,
	}
}

func retryFields(lastError string, next time.Time) map[string]interface{} {
	return map[string]interface{}{
		"publish_status":     models.OutboxPublishStatusFailed,
		"last_publish_error": lastError,
		"next_attempt_at":    next,
		"locked_at":          nil,
		"locked_by":          nil,
	}
}

func deadFields(lastError string) map[string]interface{} {
	return map[string]interface{}{
		"publish_status":     models.OutboxPublishStatusDead,
		"last_publish_error": lastError,
		"next_attempt_at":    nil,
		"locked_at":          nil,
		"locked_by":          nil,
	}
}
