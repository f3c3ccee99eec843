package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/settlement_backend/utils"
	"gorm.io/gorm"
)

// OutboxStatus is an ops-facing view of the latest outbox row for an aggregate.
// Payload is left out.
type OutboxStatus struct {
	RecordId         int                 `json:"record_id"`
	CompanyCode      string              `json:"company_code"`
	EventType        SettlementEventType `json:"event_type"`
	AggregateId      string              `json:"aggregate_id"`
	PublishStatus    string              `json:"publish_status"`
	IsPublished      bool                `json:"is_published"`
	PublishAttempts  int                 `json:"publish_attempts"`
	NextAttemptAt    *time.Time          `json:"next_attempt_at"`
	LastPublishError *string             `json:"last_publish_error"`
	CreatedAt        time.Time           `json:"created_at"`
	PublishedAt      *time.Time          `json:"published_at"`
}

func NewOutboxStatus(r SettlementOutboxRecord) OutboxStatus {
	return OutboxStatus{
		RecordId:         r.ID,
		CompanyCode:      r.CompanyCode,
		EventType:        r.EventType,
		AggregateId:      r.AggregateId,
		PublishStatus:    r.PublishStatus,
		IsPublished:      r.PublishStatus == OutboxPublishStatusSent,
		PublishAttempts:  r.PublishAttempts,
		NextAttemptAt:    r.NextAttemptAt,
		LastPublishError: r.LastPublishError,
		CreatedAt:        r.CreatedAt,
		PublishedAt:      r.PublishedAt,
	}
}

// GetLatestOutboxStatus returns utils.ErrorRecordNotFound when the aggregate has no rows.
func GetLatestOutboxStatus(ctx context.Context, db *gorm.DB, companyCode, aggregateId string) (OutboxStatus, error) {
	var rec SettlementOutboxRecord
	err := db.WithContext(ctx).
		Where("company_code = ? AND aggregate_id = ?", companyCode, aggregateId).
		Order("id DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return OutboxStatus{}, utils.ErrorRecordNotFound
	}
	if err != nil {
		return OutboxStatus{}, err
	}
	return NewOutboxStatus(rec), nil
}
