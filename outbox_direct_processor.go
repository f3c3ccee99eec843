package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/utils"
	"github.com/mmdatafocus/settlement_backend/workflow"
	"github.com/sirupsen/logrus"
)

// shouldProcessOutboxDirectly reads OUTBOX_DIRECT_PROCESSING. Unset, events are handled
// in-process only when no Pub/Sub topic is configured (local/dev).
func shouldProcessOutboxDirectly() bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv("OUTBOX_DIRECT_PROCESSING")))
	if val == "true" {
		return true
	}
	if val == "false" {
		return false
	}
	return strings.TrimSpace(os.Getenv("PUBSUB_TOPIC")) == ""
}

// directPublish replaces the Pub/Sub publisher on the outbox dispatcher: each claimed
// record goes straight to ProcessMessage. Retry, backoff and DEAD marking stay with the
// dispatcher, and the idempotency key keeps at-least-once delivery safe.
func directPublish(logger *logrus.Logger) workflow.PublishFunc {
	return func(ctx context.Context, msg config.PubSubMessage) (string, error) {
		procCtx := utils.SetCompanyCodeInContext(ctx, msg.CompanyCode)
		procCtx = utils.SetUserIdInContext(procCtx, 0)
		procCtx = utils.SetCorrelationIdInContext(procCtx, msg.CorrelationId)

		if err := ProcessMessage(procCtx, logger, msg); err != nil {
			if logger != nil {
				logger.WithFields(logrus.Fields{
					"field":        "OutboxDirectProcessor",
					"company_code": msg.CompanyCode,
					"event_type":   msg.EventType,
					"aggregate_id": msg.AggregateId,
					"record_id":    msg.ID,
				}).Error("direct processing failed: " + err.Error())
			}
			return "", err
		}
		return fmt.Sprintf("direct-%d", msg.ID), nil
	}
}
