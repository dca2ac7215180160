package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// DefaultDLQTopic is used when no DLQ topic is configured.
const DefaultDLQTopic = "commons.notifications.dlq"

// DLQMessage represents a message in the Dead Letter Queue. Push delivery
// is best effort: a message lands here after one failed attempt and is
// never retried automatically.
type DLQMessage struct {
	// Original message that failed
	OriginalMessage *NotificationMessage `json:"original_message"`

	// Failure metadata
	FailureReason  string    `json:"failure_reason"`
	FailedBackends []string  `json:"failed_backends"`
	FailedAt       time.Time `json:"failed_at"`
	DLQTimestamp   time.Time `json:"dlq_timestamp"`

	// Original message metadata for tracking
	MessageID        string `json:"message_id"`
	NotificationID   uint   `json:"notification_id"`
	NotificationType TypeID `json:"notification_type"`
	UserID           uint   `json:"user_id"`
}

// DLQPublisher publishes messages to the Dead Letter Queue
type DLQPublisher struct {
	client *kgo.Client
	topic  string
}

// DLQPublisherConfig holds DLQ publisher configuration
type DLQPublisherConfig struct {
	Brokers []string
	Topic   string
}

// NewDLQPublisher creates a new DLQ publisher
func NewDLQPublisher(cfg DLQPublisherConfig) (*DLQPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultDLQTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		// DLQ messages should never be lost
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),
		kgo.RequestRetries(10),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ kafka client: %w", err)
	}

	return &DLQPublisher{
		client: client,
		topic:  cfg.Topic,
	}, nil
}

// NewDLQMessage wraps a failed message.
func NewDLQMessage(msg *NotificationMessage, failureReason string) *DLQMessage {
	now := time.Now()
	return &DLQMessage{
		OriginalMessage:  msg,
		FailureReason:    failureReason,
		FailedBackends:   msg.FailedBackends,
		FailedAt:         now,
		DLQTimestamp:     now,
		MessageID:        msg.ID,
		NotificationID:   msg.NotificationID,
		NotificationType: msg.Type,
		UserID:           msg.Recipient.UserID,
	}
}

// PublishToDLQ publishes a failed notification to the DLQ
func (p *DLQPublisher) PublishToDLQ(ctx context.Context, msg *NotificationMessage, failureReason string) error {
	record, err := newDLQRecord(p.topic, NewDLQMessage(msg, failureReason))
	if err != nil {
		return err
	}

	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	return nil
}

// newDLQRecord keys the entry like the original push message so one
// recipient's failures stay in order.
func newDLQRecord(topic string, dlq *DLQMessage) (*kgo.Record, error) {
	value, err := json.Marshal(dlq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	return &kgo.Record{
		Topic: topic,
		Key:   []byte(determinePartitionKey(dlq.OriginalMessage)),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "message_id", Value: []byte(dlq.MessageID)},
			{Key: "failed_backends", Value: []byte(strings.Join(dlq.FailedBackends, ","))},
		},
	}, nil
}

// Close closes the DLQ publisher
func (p *DLQPublisher) Close() {
	p.client.Close()
}

// DLQMonitor reads DLQ messages for inspection.
type DLQMonitor struct {
	client *kgo.Client
	topic  string
}

// NewDLQMonitor creates a new DLQ monitor
func NewDLQMonitor(brokers []string, topic string) (*DLQMonitor, error) {
	if topic == "" {
		topic = DefaultDLQTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create DLQ monitor client: %w", err)
	}

	return &DLQMonitor{
		client: client,
		topic:  topic,
	}, nil
}

// GetDLQMessages retrieves up to limit messages from the DLQ
func (m *DLQMonitor) GetDLQMessages(ctx context.Context, limit int) ([]*DLQMessage, error) {
	messages := make([]*DLQMessage, 0, limit)

	fetches := m.client.PollRecords(ctx, limit)
	if errs := fetches.Errors(); len(errs) > 0 {
		// A deadline with nothing to read is an empty DLQ, not a failure.
		if ctx.Err() != nil {
			return messages, nil
		}
		return nil, fmt.Errorf("error fetching from DLQ: %v", errs[0].Err)
	}

	fetches.EachRecord(func(record *kgo.Record) {
		if len(messages) >= limit {
			return
		}

		var dlqMsg DLQMessage
		if err := json.Unmarshal(record.Value, &dlqMsg); err != nil {
			return
		}

		messages = append(messages, &dlqMsg)
	})

	return messages, nil
}

// Close closes the DLQ monitor
func (m *DLQMonitor) Close() {
	m.client.Close()
}
