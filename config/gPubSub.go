package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

// PubSubMessage is the wire form of a settlement event.
type PubSubMessage struct {
	ID            int       `json:"id"`
	CompanyCode   string    `json:"company_code"`
	OccurredAt    time.Time `json:"occurred_at"`
	EventType     string    `json:"event_type"`
	AggregateId   string    `json:"aggregate_id"`
	Payload       []byte    `json:"payload"`
	CorrelationId string    `json:"correlation_id"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
	pubsubTopics   = map[string]*pubsub.Topic{}
)

func getPubSubProjectID() string {
	for _, key := range []string{"PUBSUB_PROJECT_ID", "GOOGLE_CLOUD_PROJECT", "GCP_PROJECT"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

// GetPubSubClient returns the shared client, creating it with retries until ctx ends.
// PUBSUB_CREDENTIALS_JSON overrides Application Default Credentials.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	var opts []option.ClientOption
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	logger := GetLogger().WithFields(logrus.Fields{"field": "pubsub", "project_id": projectID})
	for attempt := 1; ; attempt++ {
		c, err := pubsub.NewClient(ctx, projectID, opts...)
		if err == nil {
			pubsubClient = c
			logger.WithField("attempt", attempt).Info("pubsub client ready")
			return c, nil
		}
		sleep := retrySleep(attempt)
		logger.WithFields(logrus.Fields{"attempt": attempt, "retry_in": sleep.String()}).Warnf("failed to init pubsub client: %v", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("init pubsub client: %w", err)
		case <-time.After(sleep):
		}
	}
}

// settlementTopic keeps one handle per topic so publish batching is shared.
// Message ordering is on: events of one company are delivered in publish order.
func settlementTopic(client *pubsub.Client, name string) *pubsub.Topic {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	topic, ok := pubsubTopics[name]
	if !ok {
		topic = client.Topic(name)
		topic.EnableMessageOrdering = true
		pubsubTopics[name] = topic
	}
	return topic
}

// PublishSettlementEventWithResult publishes msg with the company code as ordering key and
// returns the server-assigned message ID.
func PublishSettlementEventWithResult(ctx context.Context, msg PubSubMessage) (string, error) {
	topicName := os.Getenv("PUBSUB_TOPIC")
	if topicName == "" {
		return "", errors.New("PUBSUB_TOPIC is required")
	}
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}

	topic := settlementTopic(client, topicName)
	id, err := topic.Publish(ctx, &pubsub.Message{
		Data:        data,
		OrderingKey: msg.CompanyCode,
		Attributes: map[string]string{
			"company_code": msg.CompanyCode,
			"event_type":   msg.EventType,
			"aggregate_id": msg.AggregateId,
		},
	}).Get(ctx)
	if err != nil {
		// A failed publish pauses its ordering key until resumed.
		topic.ResumePublish(msg.CompanyCode)
		return "", err
	}
	return id, nil
}
