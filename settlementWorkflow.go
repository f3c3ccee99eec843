package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/mmdatafocus/settlement_backend/config"
	"github.com/mmdatafocus/settlement_backend/utils"
	"github.com/mmdatafocus/settlement_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	companyMutexMap = make(map[string]*sync.Mutex)
	globalMutex     = &sync.Mutex{}
)

func companyMutex(companyCode string) *sync.Mutex {
	globalMutex.Lock()
	defer globalMutex.Unlock()
	mutex, exists := companyMutexMap[companyCode]
	if !exists {
		mutex = &sync.Mutex{}
		companyMutexMap[companyCode] = mutex
	}
	return mutex
}

// RunSettlementSubscriber pulls settlement events from PUBSUB_SUBSCRIPTION until ctx ends.
// It returns nil right away when no subscription is configured.
func RunSettlementSubscriber(ctx context.Context, logger *logrus.Logger) error {
	subName := os.Getenv("PUBSUB_SUBSCRIPTION")
	if subName == "" {
		return nil
	}
	client, err := config.GetPubSubClient(ctx)
	if err != nil {
		return err
	}
	sub := client.Subscription(subName)
	sub.ReceiveSettings.MaxOutstandingMessages = config.IntFromEnv("PUBSUB_MAX_OUTSTANDING", 10)

	callback := func(ctx context.Context, msg *pubsub.Message) {
		m, err := decodeSettlementEvent(msg.Data)
		if err != nil {
			config.LogError(logger, "settlementWorkflow.go", "RunSettlementSubscriber", "decode settlement event", string(msg.Data), err)
			msg.Ack()
			return
		}
		if m.CorrelationId == "" {
			m.CorrelationId = msg.ID
		}

		// Events for one company are applied one at a time per instance.
		mutex := companyMutex(m.CompanyCode)
		mutex.Lock()
		defer mutex.Unlock()

		if err := ProcessMessage(eventContext(ctx, m), logger, m); err != nil {
			logger.WithFields(eventFields("SettlementWorkflow", m, msg.ID)).Error("pubsub processing failed: " + err.Error())
			msg.Nack()
			return
		}
		msg.Ack()
	}

	return sub.Receive(ctx, callback)
}

var errIncompleteEvent = errors.New("settlement event needs company_code and event_type")

// decodeSettlementEvent parses a published settlement event. Both the push endpoint and
// the pull subscriber ack events that fail here, since redelivery cannot fix them.
func decodeSettlementEvent(data []byte) (config.PubSubMessage, error) {
	var m config.PubSubMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return m, err
	}
	if m.CompanyCode == "" || m.EventType == "" {
		return m, errIncompleteEvent
	}
	return m, nil
}

func eventContext(ctx context.Context, m config.PubSubMessage) context.Context {
	ctx = utils.SetCompanyCodeInContext(ctx, m.CompanyCode)
	ctx = utils.SetUserIdInContext(ctx, 0)
	return utils.SetCorrelationIdInContext(ctx, m.CorrelationId)
}

func eventFields(component string, m config.PubSubMessage, messageId string) logrus.Fields {
	return logrus.Fields{
		"field":          component,
		"company_code":   m.CompanyCode,
		"event_type":     m.EventType,
		"aggregate_id":   m.AggregateId,
		"message_id":     messageId,
		"correlation_id": m.CorrelationId,
	}
}

// ProcessMessage applies one settlement event inside a transaction guarded by the
// idempotency key (company, "settlement:"+event type, record id).
func ProcessMessage(ctx context.Context, logger *logrus.Logger, m config.PubSubMessage) error {
	db := config.GetDB()
	if db == nil {
		return errors.New("db is nil")
	}
	ctx = utils.SetCompanyCodeInContext(ctx, m.CompanyCode)
	scope := workflow.IdempotencyScope{
		CompanyCode: m.CompanyCode,
		Handler:     "settlement:" + m.EventType,
		MessageId:   strconv.Itoa(m.ID),
	}

	var handlerErr error
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		skip, err := scope.Begin(tx)
		if err != nil || skip {
			return err
		}
		if handlerErr = workflow.ProcessSettlementEvent(tx, logger, m); handlerErr != nil {
			return handlerErr
		}
		return scope.Succeed(tx)
	})
	if handlerErr != nil {
		if failErr := scope.Fail(db.WithContext(ctx), handlerErr); failErr != nil {
			config.LogError(logger, "settlementWorkflow.go", "ProcessMessage", "record failed delivery", scope, failErr)
		}
	}
	return err
}
