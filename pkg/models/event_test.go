package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createTestEvent(t *testing.T, db *gorm.DB, actorID uint, targetType string, targetID uint, public bool) *Event {
	e := &Event{
		EventType:  "project_star",
		ActorID:    actorID,
		TargetType: targetType,
		TargetID:   targetID,
		EventData:  JSONMap{"project_title": "demo"},
		Public:     public,
	}
	require.NoError(t, e.Create(db))
	return e
}

func TestEvent_Create(t *testing.T) {
	db := setupTestDB(t)

	t.Run("requires type and target type", func(t *testing.T) {
		assert.Error(t, (&Event{TargetType: KindProject}).Create(db))
		assert.Error(t, (&Event{EventType: "project_star"}).Create(db))
	})

	t.Run("private is stored as false", func(t *testing.T) {
		e := createTestEvent(t, db, 7, KindProject, 42, false)

		var reloaded Event
		require.NoError(t, db.First(&reloaded, e.ID).Error)
		assert.False(t, reloaded.Public)
		assert.Equal(t, "demo", reloaded.EventData["project_title"])
	})
}

func TestFindEventsForTarget(t *testing.T) {
	db := setupTestDB(t)

	public := createTestEvent(t, db, 7, KindProject, 42, true)
	private := createTestEvent(t, db, 8, KindProject, 42, false)
	createTestEvent(t, db, 7, KindProject, 43, true)

	events, err := FindEventsForTarget(db, KindProject, 42, EventQuery{})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, public.ID, events[0].ID)

	events, err = FindEventsForTarget(db, KindProject, 42, EventQuery{IncludePrivate: true})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, private.ID, events[0].ID, "newest first")

	events, err = FindEventsForTarget(db, KindProject, 42, EventQuery{IncludePrivate: true, Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, public.ID, events[0].ID)

	_, err = FindEventsForTarget(db, "", 42, EventQuery{})
	assert.Error(t, err)
}

func TestFindEventsForActor(t *testing.T) {
	db := setupTestDB(t)

	createTestEvent(t, db, 7, KindProject, 42, true)
	createTestEvent(t, db, 7, KindProject, 43, false)
	createTestEvent(t, db, 8, KindProject, 42, true)

	events, err := FindEventsForActor(db, 7, EventQuery{})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	events, err = FindEventsForActor(db, 7, EventQuery{IncludePrivate: true})
	require.NoError(t, err)
	assert.Len(t, events, 2)

	events, err = FindEventsForActor(db, 7, EventQuery{IncludePrivate: true, Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventOutbox_Lifecycle(t *testing.T) {
	db := setupTestDB(t)
	event := createTestEvent(t, db, 7, KindProject, 42, true)

	entry, err := NewEventOutboxEntry(event)
	require.NoError(t, err)
	require.NoError(t, db.Create(entry).Error)
	assert.Equal(t, "project:42", entry.PartitionKey)

	pending, err := FindPendingEventOutbox(db, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, pending[0].MarkAsFailed(db, assert.AnError))
	failed, err := GetFailedEventOutbox(db, 10)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].PublishAttempts)
	assert.Equal(t, assert.AnError.Error(), failed[0].LastError)

	require.NoError(t, failed[0].Retry(db))
	require.NoError(t, failed[0].MarkAsPublished(db))

	published, err := CountEventOutboxByStatus(db, OutboxStatusPublished)
	require.NoError(t, err)
	assert.Equal(t, int64(1), published)

	deleted, err := DeleteOldPublishedEventOutbox(db, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = NewEventOutboxEntry(&Event{})
	assert.Error(t, err)
}

func TestEventOutbox_DuplicateIdempotentKey(t *testing.T) {
	db := setupTestDB(t)
	event := createTestEvent(t, db, 7, KindProject, 42, true)

	first, err := NewEventOutboxEntry(event)
	require.NoError(t, err)
	require.NoError(t, db.Create(first).Error)

	second, err := NewEventOutboxEntry(event)
	require.NoError(t, err)
	assert.Error(t, db.Create(second).Error)
}
