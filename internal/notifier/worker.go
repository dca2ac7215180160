// Package notifier consumes push notification messages and hands them to
// the delivery backends.
package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/openforge/commons/pkg/notifications"
	"github.com/openforge/commons/pkg/notifications/backends"
)

// DefaultShutdownTimeout bounds the wait for in-flight messages on shutdown.
const DefaultShutdownTimeout = 30 * time.Second

// Consumer is the part of *kgo.Client the worker uses.
type Consumer interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitRecords(ctx context.Context, rs ...*kgo.Record) error
	PauseFetchPartitions(topicPartitions map[string][]int32) map[string][]int32
}

// DeadLetters receives messages that failed delivery.
type DeadLetters interface {
	PublishToDLQ(ctx context.Context, msg *notifications.NotificationMessage, failureReason string) error
}

// Config holds configuration for the worker.
type Config struct {
	Registry *backends.Registry

	// DLQ is optional. Without it failed messages are only logged.
	DLQ DeadLetters

	// ShutdownTimeout defaults to DefaultShutdownTimeout.
	ShutdownTimeout time.Duration

	Logger hclog.Logger
}

// Worker delivers each consumed message once to every backend it requests.
type Worker struct {
	registry        *backends.Registry
	dlq             DeadLetters
	shutdownTimeout time.Duration
	logger          hclog.Logger
	inFlight        sync.WaitGroup

	// stalled holds partitions with a record that could not be handed off.
	// Nothing at or after that record is committed until the next start,
	// when the group resumes from the last committed offset.
	mu      sync.Mutex
	stalled map[topicPartition]int64
}

type topicPartition struct {
	topic     string
	partition int32
}

// New creates a notifier worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Registry == nil {
		return nil, errors.New("backend registry is required")
	}
	if len(cfg.Registry.GetBackendNames()) == 0 {
		return nil, errors.New("no backends initialized")
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	return &Worker{
		registry:        cfg.Registry,
		dlq:             cfg.DLQ,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          cfg.Logger.Named("notifier"),
		stalled:         make(map[topicPartition]int64),
	}, nil
}

// Run polls client until ctx is cancelled, then waits for in-flight
// messages up to the shutdown timeout.
func (w *Worker) Run(ctx context.Context, client Consumer) {
	w.logger.Info("starting notification worker", "backends", w.registry.GetBackendNames())

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return
		default:
			w.poll(ctx, client)
		}
	}
}

// poll handles one fetch. Partitions run concurrently and the records of a
// partition run in offset order, so a commit never passes an unhandled record.
func (w *Worker) poll(ctx context.Context, client Consumer) {
	fetches := client.PollFetches(ctx)
	if errs := fetches.Errors(); len(errs) > 0 {
		for _, err := range errs {
			if ctx.Err() == nil {
				w.logger.Error("fetch error", "topic", err.Topic, "partition", err.Partition, "error", err.Err)
			}
		}
		return
	}

	var batch sync.WaitGroup
	fetches.EachPartition(func(p kgo.FetchTopicPartition) {
		if len(p.Records) == 0 {
			return
		}
		batch.Add(1)
		w.inFlight.Add(1)
		go func() {
			defer batch.Done()
			defer w.inFlight.Done()
			w.processPartition(ctx, client, topicPartition{p.Topic, p.Partition}, p.Records)
		}()
	})

	done := make(chan struct{})
	go func() {
		batch.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (w *Worker) processPartition(ctx context.Context, client Consumer, tp topicPartition, records []*kgo.Record) {
	for _, record := range records {
		if ctx.Err() != nil {
			// Uncommitted records are redelivered after restart.
			return
		}
		if offset, ok := w.stalledAt(tp); ok {
			w.logger.Debug("skipping record behind stalled offset",
				"topic", tp.topic,
				"partition", tp.partition,
				"offset", record.Offset,
				"stalled_offset", offset)
			continue
		}
		if !w.processRecord(ctx, client, tp, record) {
			return
		}
	}
}

// processRecord reports whether the partition can move past record.
func (w *Worker) processRecord(ctx context.Context, client Consumer, tp topicPartition, record *kgo.Record) bool {
	// In-flight deliveries finish even after a shutdown signal.
	ctx = context.WithoutCancel(ctx)

	if err := w.Handle(ctx, record.Value); err != nil {
		w.logger.Error("failed to process message, partition stalled until restart",
			"topic", tp.topic,
			"partition", tp.partition,
			"offset", record.Offset,
			"error", err)
		w.stall(client, tp, record.Offset)
		return false
	}
	if err := client.CommitRecords(ctx, record); err != nil {
		w.logger.Error("failed to commit record offset", "offset", record.Offset, "error", err)
	}
	return true
}

func (w *Worker) stall(client Consumer, tp topicPartition, offset int64) {
	w.mu.Lock()
	if _, ok := w.stalled[tp]; !ok {
		w.stalled[tp] = offset
	}
	w.mu.Unlock()
	client.PauseFetchPartitions(map[string][]int32{tp.topic: {tp.partition}})
}

func (w *Worker) stalledAt(tp topicPartition) (int64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	offset, ok := w.stalled[tp]
	return offset, ok
}

// Handle delivers one encoded message. Malformed messages are dropped.
// When any backend fails the message goes to the DLQ; an error is returned
// only when that hand-off fails, and the message must not be committed.
func (w *Worker) Handle(ctx context.Context, value []byte) error {
	var msg notifications.NotificationMessage
	if err := json.Unmarshal(value, &msg); err != nil {
		w.logger.Warn("dropping malformed message", "error", err)
		return nil
	}

	failed, err := w.registry.Route(ctx, &msg)
	if err == nil {
		w.logger.Debug("message delivered", "message_id", msg.ID, "backends", msg.Backends)
		return nil
	}

	msg.FailedBackends = failed
	msg.LastError = err.Error()
	if w.dlq == nil {
		w.logger.Warn("message delivery failed",
			"message_id", msg.ID,
			"failed_backends", failed,
			"retryable", backends.IsRetryable(err))
		return nil
	}
	if err := w.dlq.PublishToDLQ(ctx, &msg, err.Error()); err != nil {
		return fmt.Errorf("error publishing message %s to DLQ: %w", msg.ID, err)
	}
	w.logger.Info("message sent to DLQ", "message_id", msg.ID, "failed_backends", failed)
	return nil
}

// drain waits for in-flight messages up to the shutdown timeout.
func (w *Worker) drain() {
	w.logger.Info("shutdown signal received, waiting for in-flight messages")

	done := make(chan struct{})
	go func() {
		w.inFlight.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("all in-flight messages completed")
	case <-time.After(w.shutdownTimeout):
		w.logger.Warn("shutdown timeout reached, some messages may be incomplete", "timeout", w.shutdownTimeout)
	}
}
