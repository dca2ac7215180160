package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openforge/commons/pkg/models"
)

type fakeProducer struct {
	mu      sync.Mutex
	records []*kgo.Record
	err     error
	closed  bool
}

func (p *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	p.mu.Lock()
	defer p.mu.Unlock()

	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		if p.err == nil {
			p.records = append(p.records, r)
		}
		results = append(results, kgo.ProduceResult{Record: r, Err: p.err})
	}
	return results
}

func (p *fakeProducer) Close() {
	p.closed = true
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.ModelsToAutoMigrate()...))
	return db
}

// createTestOutboxEntry stores a project_star event for project targetID
// with its outbox row.
func createTestOutboxEntry(t *testing.T, db *gorm.DB, targetID uint) *models.EventOutbox {
	t.Helper()

	event := &models.Event{
		EventType:  "project_star",
		ActorID:    7,
		TargetType: models.KindProject,
		TargetID:   targetID,
		EventData:  models.JSONMap{"project_title": "demo"},
		Public:     true,
	}
	require.NoError(t, event.Create(db))

	entry, err := models.NewEventOutboxEntry(event)
	require.NoError(t, err)
	require.NoError(t, db.Create(entry).Error)
	return entry
}

func newTestRelay(t *testing.T, db *gorm.DB, p Producer, batch int) *Relay {
	t.Helper()
	r, err := New(Config{DB: db, Producer: p, Topic: "commons.events", BatchSize: batch})
	require.NoError(t, err)
	return r
}

func TestNew_Validation(t *testing.T) {
	db := setupTestDB(t)

	_, err := New(Config{Topic: "t", Producer: &fakeProducer{}})
	assert.Error(t, err)

	_, err = New(Config{DB: db, Topic: "t"})
	assert.Error(t, err, "brokers or a producer are required")

	_, err = New(Config{DB: db, Producer: &fakeProducer{}})
	assert.Error(t, err)
}

func TestRelay_ProcessBatch(t *testing.T) {
	db := setupTestDB(t)
	first := createTestOutboxEntry(t, db, 42)
	createTestOutboxEntry(t, db, 43)
	createTestOutboxEntry(t, db, 42)

	producer := &fakeProducer{}
	r := newTestRelay(t, db, producer, 2)
	ctx := context.Background()

	n, err := r.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = r.ProcessBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.Len(t, producer.records, 3)
	rec := producer.records[0]
	assert.Equal(t, "commons.events", rec.Topic)
	assert.Equal(t, "project:42", string(rec.Key))
	assert.Equal(t, "project:43", string(producer.records[1].Key))

	headers := map[string]string{}
	for _, h := range rec.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "project_star", headers["event_type"])
	assert.Equal(t, first.IdempotentKey, headers["idempotent_key"])

	var value EventRecord
	require.NoError(t, json.Unmarshal(rec.Value, &value))
	assert.Equal(t, first.EventID, value.EventID)
	assert.Equal(t, "project_star", value.EventType)
	assert.Equal(t, "demo", value.Payload["event_data"].(map[string]any)["project_title"])

	stats, err := r.GetStats()
	require.NoError(t, err)
	assert.Equal(t, OutboxStats{Published: 3}, stats)
}

func TestRelay_FailureAndRetry(t *testing.T) {
	db := setupTestDB(t)
	entry := createTestOutboxEntry(t, db, 42)

	producer := &fakeProducer{err: errors.New("broker unavailable")}
	r := newTestRelay(t, db, producer, 10)
	ctx := context.Background()

	n, err := r.ProcessBatch(ctx)
	require.NoError(t, err, "publish failures do not fail the batch")
	assert.Equal(t, 0, n)

	var reloaded models.EventOutbox
	require.NoError(t, db.First(&reloaded, entry.ID).Error)
	assert.Equal(t, models.OutboxStatusFailed, reloaded.Status)
	assert.Equal(t, 1, reloaded.PublishAttempts)
	assert.Contains(t, reloaded.LastError, "broker unavailable")

	producer.err = nil
	retried, err := r.RetryFailed(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, retried)

	require.NoError(t, db.First(&reloaded, entry.ID).Error)
	assert.Equal(t, models.OutboxStatusPublished, reloaded.Status)
	assert.NotNil(t, reloaded.PublishedAt)
	assert.Len(t, producer.records, 1)
}

func TestRelay_CleanupOldEntries(t *testing.T) {
	db := setupTestDB(t)
	old := createTestOutboxEntry(t, db, 1)
	fresh := createTestOutboxEntry(t, db, 2)
	createTestOutboxEntry(t, db, 3)

	require.NoError(t, old.MarkAsPublished(db))
	require.NoError(t, fresh.MarkAsPublished(db))
	require.NoError(t, db.Model(&models.EventOutbox{}).
		Where("id = ?", old.ID).
		Update("published_at", time.Now().Add(-48*time.Hour)).Error)

	r := newTestRelay(t, db, &fakeProducer{}, 10)
	deleted, err := r.CleanupOldEntries(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	stats, err := Stats(db)
	require.NoError(t, err)
	assert.Equal(t, OutboxStats{Pending: 1, Published: 1}, stats)
}

func TestRelay_StartStop(t *testing.T) {
	db := setupTestDB(t)
	createTestOutboxEntry(t, db, 42)

	producer := &fakeProducer{}
	r, err := New(Config{DB: db, Producer: producer, Topic: "commons.events", PollInterval: 10 * time.Millisecond})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- r.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		stats, err := r.GetStats()
		return err == nil && stats.Published == 1
	}, 2*time.Second, 10*time.Millisecond)

	r.Stop()
	require.NoError(t, <-done)
	assert.True(t, producer.closed)
}
