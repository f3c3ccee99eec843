package models

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/utils"
	"gorm.io/gorm"
)

type SettlementEventType string

const (
	SettlementEventJournalPosted       SettlementEventType = "JOURNAL_POSTED"
	SettlementEventCloseRunFinished    SettlementEventType = "CLOSE_RUN_FINISHED"
	SettlementEventReconciliationSaved SettlementEventType = "RECONCILIATION_SAVED"
)

// SettlementOutboxRecord is written in the same transaction as the data it announces;
// the dispatcher publishes it after commit.
type SettlementOutboxRecord struct {
	ID               int                 `gorm:"primary_key;index:idx_outbox_dispatch,priority:3" json:"id"`
	CompanyCode      string              `gorm:"size:64;not null;index" json:"company_code"`
	EventType        SettlementEventType `gorm:"size:40;not null;index" json:"event_type"`
	AggregateId      string              `gorm:"size:100;not null;index" json:"aggregate_id"`
	OccurredAt       time.Time           `gorm:"index;not null" json:"occurred_at"`
	Payload          []byte              `gorm:"type:blob" json:"payload"`
	PublishStatus    string              `gorm:"size:20;index;not null;default:'PENDING';index:idx_outbox_dispatch,priority:1" json:"publish_status"`
	PublishedAt      *time.Time          `gorm:"index" json:"published_at"`
	PubSubMessageId  *string             `gorm:"size:255" json:"pubsub_message_id"`
	PublishAttempts  int                 `gorm:"not null;default:0" json:"publish_attempts"`
	NextAttemptAt    *time.Time          `gorm:"index;index:idx_outbox_dispatch,priority:2" json:"next_attempt_at"`
	LockedAt         *time.Time          `gorm:"index" json:"locked_at"`
	LockedBy         *string             `gorm:"size:100" json:"locked_by"`
	LastPublishError *string             `gorm:"type:text" json:"last_publish_error"`
	CorrelationId    string              `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt        time.Time           `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time           `gorm:"autoUpdateTime" json:"updated_at"`
}

func ConvertToPubSubMessage(record SettlementOutboxRecord) config.PubSubMessage {
	return config.PubSubMessage{
		ID:            record.ID,
		CompanyCode:   record.CompanyCode,
		OccurredAt:    record.OccurredAt,
		EventType:     string(record.EventType),
		AggregateId:   record.AggregateId,
		Payload:       record.Payload,
		CorrelationId: record.CorrelationId,
	}
}

// CreateOutboxRecord must be called with the transaction that persists the aggregate.
func CreateOutboxRecord(ctx context.Context, tx *gorm.DB, companyCode string, eventType SettlementEventType, aggregateId string, occurredAt time.Time, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	record := SettlementOutboxRecord{
		CompanyCode:   companyCode,
		EventType:     eventType,
		AggregateId:   aggregateId,
		OccurredAt:    occurredAt,
		Payload:       data,
		PublishStatus: OutboxPublishStatusPending,
		CorrelationId: correlationIdFromContextOrNew(ctx),
	}
	return tx.WithContext(ctx).Create(&record).Error
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
