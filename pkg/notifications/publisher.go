package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Publisher publishes notifications to Redpanda/Kafka
type Publisher struct {
	client *kgo.Client
	topic  string
}

// PublisherConfig holds configuration for the publisher
type PublisherConfig struct {
	Brokers []string
	Topic   string
}

// NewPublisher creates a new notification publisher
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),

		// Wait for all in-sync replicas to acknowledge
		kgo.RequiredAcks(kgo.AllISRAcks()),

		kgo.ProducerBatchCompression(kgo.GzipCompression()),

		// Linear backoff capped at 60s
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 60*time.Second {
				backoff = 60 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(10),

		kgo.ProducerLinger(10*time.Millisecond),
		kgo.ProducerBatchMaxBytes(1<<20), // 1MB max batch size
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Publisher{
		client: client,
		topic:  cfg.Topic,
	}, nil
}

// Publish implements Sink.
func (p *Publisher) Publish(ctx context.Context, msgs ...*NotificationMessage) error {
	records := make([]*kgo.Record, 0, len(msgs))
	for _, msg := range msgs {
		record, err := p.record(msg)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil
	}

	if err := p.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish notifications: %w", err)
	}
	return nil
}

// PublishMessage publishes a pre-built notification message
func (p *Publisher) PublishMessage(ctx context.Context, msg *NotificationMessage) error {
	return p.Publish(ctx, msg)
}

func (p *Publisher) record(msg *NotificationMessage) (*kgo.Record, error) {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification message: %w", err)
	}

	return &kgo.Record{
		Topic: p.topic,
		Key:   []byte(determinePartitionKey(msg)),
		Value: msgJSON,
	}, nil
}

// Close closes the publisher
func (p *Publisher) Close() {
	p.client.Close()
}

// determinePartitionKey keeps every message for one recipient in order.
func determinePartitionKey(msg *NotificationMessage) string {
	if msg.Recipient.UserID != 0 {
		return fmt.Sprintf("user:%d", msg.Recipient.UserID)
	}

	// Fallback: random (no ordering guarantee)
	return msg.ID
}
