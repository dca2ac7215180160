// Package relay publishes stored events from the event outbox table to the
// events topic.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/gorm"

	"github.com/openforge/commons/pkg/models"
)

// Producer is the subset of *kgo.Client the relay needs.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Relay polls the event_outbox table and publishes events to the events
// topic.
type Relay struct {
	db           *gorm.DB
	producer     Producer
	topic        string
	logger       hclog.Logger
	pollInterval time.Duration
	batchSize    int
	stopCh       chan struct{}
}

// Config holds configuration for the relay service.
type Config struct {
	DB *gorm.DB

	Brokers []string
	Topic   string

	// Producer replaces the franz-go client built from Brokers.
	Producer Producer

	// PollInterval defaults to 1s.
	PollInterval time.Duration

	// BatchSize defaults to 100.
	BatchSize int

	Logger hclog.Logger
}

// New creates a new outbox relay service.
func New(cfg Config) (*Relay, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Producer == nil && len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	producer := cfg.Producer
	if producer == nil {
		client, err := kgo.NewClient(
			kgo.SeedBrokers(cfg.Brokers...),
			kgo.RequiredAcks(kgo.AllISRAcks()),
			kgo.ProducerBatchCompression(kgo.GzipCompression()),
			kgo.RetryBackoffFn(func(tries int) time.Duration {
				backoff := time.Duration(tries) * 100 * time.Millisecond
				if backoff > 60*time.Second {
					backoff = 60 * time.Second
				}
				return backoff
			}),
			kgo.RequestRetries(10),
			kgo.ProducerLinger(10*time.Millisecond),
			kgo.ProducerBatchMaxBytes(1<<20),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka client: %w", err)
		}
		producer = client
	}

	return &Relay{
		db:           cfg.DB,
		producer:     producer,
		topic:        cfg.Topic,
		logger:       cfg.Logger.Named("outbox-relay"),
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start runs the polling loop until Stop is called or ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting outbox relay service",
		"poll_interval", r.pollInterval,
		"batch_size", r.batchSize,
		"topic", r.topic,
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay service stopped by context")
			return ctx.Err()

		case <-r.stopCh:
			r.logger.Info("outbox relay service stopped")
			return nil

		case <-ticker.C:
			if _, err := r.ProcessBatch(ctx); err != nil {
				r.logger.Error("failed to process outbox batch", "error", err)
			}
		}
	}
}

// Stop stops the polling loop and closes the producer.
func (r *Relay) Stop() {
	close(r.stopCh)
	r.producer.Close()
}

// ProcessBatch publishes one batch of pending entries and returns how many
// were published. Entries that fail are marked failed; they do not fail the
// batch.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	entries, err := models.FindPendingEventOutbox(r.db.WithContext(ctx), r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to find pending outbox entries: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	r.logger.Debug("processing outbox batch", "count", len(entries))

	published := 0
	for i := range entries {
		if r.deliver(ctx, &entries[i]) {
			published++
		}
	}

	r.logger.Info("processed outbox batch",
		"total", len(entries),
		"success", published,
		"failed", len(entries)-published,
	)

	return published, nil
}

// deliver publishes one entry and records the outcome on its row.
func (r *Relay) deliver(ctx context.Context, entry *models.EventOutbox) bool {
	if err := r.publishEntry(ctx, entry); err != nil {
		r.logger.Error("failed to publish outbox entry",
			"outbox_id", entry.ID,
			"event_id", entry.EventID,
			"error", err,
		)
		if markErr := entry.MarkAsFailed(r.db, err); markErr != nil {
			r.logger.Error("failed to mark outbox entry as failed",
				"outbox_id", entry.ID,
				"error", markErr,
			)
		}
		return false
	}

	if err := entry.MarkAsPublished(r.db); err != nil {
		r.logger.Error("failed to mark outbox entry as published",
			"outbox_id", entry.ID,
			"error", err,
		)
		return false
	}
	return true
}

func (r *Relay) publishEntry(ctx context.Context, entry *models.EventOutbox) error {
	record, err := NewRecord(r.topic, entry)
	if err != nil {
		return err
	}

	if err := r.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish to kafka: %w", err)
	}

	r.logger.Debug("published event to kafka",
		"outbox_id", entry.ID,
		"event_id", entry.EventID,
		"event_type", entry.EventType,
		"partition_key", entry.PartitionKey,
	)
	return nil
}

// NewRecord builds the events-topic record for an outbox entry. The key is
// the entry's partition key so events about one target stay ordered.
func NewRecord(topic string, entry *models.EventOutbox) (*kgo.Record, error) {
	value, err := json.Marshal(EventRecord{
		OutboxID:      entry.ID,
		EventID:       entry.EventID,
		EventType:     entry.EventType,
		IdempotentKey: entry.IdempotentKey,
		Payload:       entry.Payload,
		Timestamp:     entry.CreatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return &kgo.Record{
		Topic: topic,
		Key:   []byte(entry.PartitionKey),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(entry.EventType)},
			{Key: "idempotent_key", Value: []byte(entry.IdempotentKey)},
		},
	}, nil
}

// CleanupOldEntries removes published entries older than olderThan.
func (r *Relay) CleanupOldEntries(olderThan time.Duration) (int64, error) {
	deleted, err := models.DeleteOldPublishedEventOutbox(r.db, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old outbox entries: %w", err)
	}

	r.logger.Info("cleaned up old outbox entries",
		"deleted", deleted,
		"older_than", olderThan,
	)
	return deleted, nil
}

// RetryFailed republishes up to limit failed entries and returns how many
// succeeded.
func (r *Relay) RetryFailed(ctx context.Context, limit int) (int, error) {
	failed, err := models.GetFailedEventOutbox(r.db.WithContext(ctx), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to get failed outbox entries: %w", err)
	}
	if len(failed) == 0 {
		r.logger.Info("no failed outbox entries to retry")
		return 0, nil
	}

	r.logger.Info("retrying failed outbox entries", "count", len(failed))

	succeeded := 0
	for i := range failed {
		entry := &failed[i]
		if err := entry.Retry(r.db); err != nil {
			r.logger.Error("failed to reset outbox entry to pending",
				"outbox_id", entry.ID,
				"error", err,
			)
			continue
		}
		if r.deliver(ctx, entry) {
			succeeded++
		}
	}

	r.logger.Info("retry completed",
		"attempted", len(failed),
		"success", succeeded,
		"failed", len(failed)-succeeded,
	)
	return succeeded, nil
}

// GetStats returns the number of outbox entries per status.
func (r *Relay) GetStats() (OutboxStats, error) {
	return Stats(r.db)
}

// Stats counts outbox entries per status.
func Stats(db *gorm.DB) (OutboxStats, error) {
	var stats OutboxStats

	pending, err := models.CountEventOutboxByStatus(db, models.OutboxStatusPending)
	if err != nil {
		return stats, err
	}
	stats.Pending = pending

	published, err := models.CountEventOutboxByStatus(db, models.OutboxStatusPublished)
	if err != nil {
		return stats, err
	}
	stats.Published = published

	failed, err := models.CountEventOutboxByStatus(db, models.OutboxStatusFailed)
	if err != nil {
		return stats, err
	}
	stats.Failed = failed

	return stats, nil
}

// EventRecord is the value published to the events topic.
type EventRecord struct {
	OutboxID      uint                   `json:"outboxId"`
	EventID       uint                   `json:"eventId"`
	EventType     string                 `json:"eventType"`
	IdempotentKey string                 `json:"idempotentKey"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
}

// OutboxStats contains statistics about the outbox state.
type OutboxStats struct {
	Pending   int64 `json:"pending" yaml:"pending"`
	Published int64 `json:"published" yaml:"published"`
	Failed    int64 `json:"failed" yaml:"failed"`
}
