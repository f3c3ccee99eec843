package workflow

import (
	"encoding/json"
	"fmt"

	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PostedCounterKey counts JOURNAL_POSTED events per company and posting day.
func PostedCounterKey(companyCode string, postingDay string) string {
	return fmt.Sprintf("posted:%s:%s", companyCode, postingDay)
}

// ProcessSettlementEvent applies one delivered settlement event. Undecodable payloads
// are logged and acknowledged; redelivery cannot fix them.
func ProcessSettlementEvent(tx *gorm.DB, logger *logrus.Logger, msg config.PubSubMessage) error {
	ctx := tx.Statement.Context
	fields := logrus.Fields{
		"field":          "SettlementEvent",
		"company_code":   msg.CompanyCode,
		"event_type":     msg.EventType,
		"aggregate_id":   msg.AggregateId,
		"record_id":      msg.ID,
		"correlation_id": msg.CorrelationId,
	}

	switch models.SettlementEventType(msg.EventType) {
	case models.SettlementEventJournalPosted:
		var ev JournalPostedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			config.LogError(logger, "settlementEvents.go", "ProcessSettlementEvent", "decode JOURNAL_POSTED", msg.AggregateId, err)
			return nil
		}
		n, err := config.GetRedisCounter(ctx, PostedCounterKey(msg.CompanyCode, ev.PostingDate.Format("2006-01-02")))
		if err != nil {
			return err
		}
		if logger != nil {
			fields["document_id"] = ev.DocumentId
			fields["amount"] = ev.Amount.String()
			fields["posted_today"] = n
			logger.WithFields(fields).Info("journal posted")
		}

	case models.SettlementEventCloseRunFinished:
		var ev CloseRunEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			config.LogError(logger, "settlementEvents.go", "ProcessSettlementEvent", "decode CLOSE_RUN_FINISHED", msg.AggregateId, err)
			return nil
		}
		if err := InvalidateCloseRunCache(ctx, ev.RunId); err != nil {
			return err
		}
		if logger == nil {
			return nil
		}
		fields["period"] = ev.Period
		fields["status"] = ev.Status
		if ev.Status == string(models.PeriodCloseStatusCompleted) {
			logger.WithFields(fields).Info("close run finished")
		} else {
			fields["errors"] = ev.Errors
			logger.WithFields(fields).Warn("close run finished with errors")
		}

	case models.SettlementEventReconciliationSaved:
		var ev ReconciliationSavedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			config.LogError(logger, "settlementEvents.go", "ProcessSettlementEvent", "decode RECONCILIATION_SAVED", msg.AggregateId, err)
			return nil
		}
		if logger != nil && !ev.AllReconciled {
			fields["total_difference"] = ev.TotalDifference.String()
			logger.WithFields(fields).Warn("subledgers do not tie to GL")
		}

	default:
		if logger != nil {
			logger.WithFields(fields).Warn("unknown settlement event type; acknowledged")
		}
	}
	return nil
}
