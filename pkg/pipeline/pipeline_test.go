package pipeline

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openforge/commons/pkg/events"
	"github.com/openforge/commons/pkg/models"
	"github.com/openforge/commons/pkg/notifications"
)

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

// seedStarScenario creates project 42 owned by user 3, whose followers are
// users 5 and 9. User 7 is the one starring it.
func seedStarScenario(t *testing.T, db *gorm.DB) {
	t.Helper()

	for _, u := range []models.User{
		{ID: 3, Username: "owner"},
		{ID: 5, Username: "fan"},
		{ID: 7, Username: "starrer"},
		{ID: 9, Username: "watcher"},
	} {
		u := u
		require.NoError(t, u.Create(db))
	}
	require.NoError(t, (&models.Project{ID: 42, AuthorID: 3, Title: "demo"}).Create(db))

	for _, follower := range []uint{5, 9} {
		require.NoError(t, (&models.Follow{
			FollowerID:     follower,
			FollowableType: models.KindUser,
			FollowableID:   3,
		}).Create(db))
	}
}

func newPipeline(t *testing.T, db *gorm.DB, outbox bool) *Pipeline {
	t.Helper()
	p, err := New(Config{DB: db, Outbox: outbox})
	require.NoError(t, err)
	return p
}

func recipients(t *testing.T, db *gorm.DB) []uint {
	t.Helper()
	var rows []models.Notification
	require.NoError(t, db.Find(&rows).Error)

	out := make([]uint, 0, len(rows))
	for _, n := range rows {
		out = append(out, n.UserID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}

func TestIngest_ProjectStar(t *testing.T) {
	db := setupTestDB(t)
	seedStarScenario(t, db)
	p := newPipeline(t, db, false)

	event := p.Ingest(context.Background(), "project_star", 7, models.KindProject, 42,
		map[string]any{"project_title": "demo"})
	require.NotNil(t, event)
	p.Spawner().Wait()

	assert.NotZero(t, event.ID)
	assert.True(t, event.Public)
	assert.Equal(t, float64(7), event.EventData[events.FieldActorID])
	assert.Equal(t, []uint{3, 5, 9}, recipients(t, db))

	var n models.Notification
	require.NoError(t, db.Where("user_id = ?", 5).First(&n).Error)
	assert.Equal(t, int(notifications.ProjectStarred), n.NotificationType)
	assert.Equal(t, "demo", n.Data["project_title"])
	assert.Equal(t, float64(42), n.Data["target_id"])
	assert.Equal(t, uint(7), *n.ActorID)
}

func TestIngest_FiringTwiceDoublesRows(t *testing.T) {
	db := setupTestDB(t)
	seedStarScenario(t, db)
	p := newPipeline(t, db, false)

	for i := 0; i < 2; i++ {
		require.NotNil(t, p.Ingest(context.Background(), "project_star", 7, models.KindProject, 42,
			map[string]any{"project_title": "demo"}))
	}
	p.Spawner().Wait()

	assert.Equal(t, int64(2), count(t, db, &models.Event{}))
	assert.Equal(t, int64(6), count(t, db, &models.Notification{}))
}

func TestIngest_OverlappingAudiences(t *testing.T) {
	db := setupTestDB(t)
	seedStarScenario(t, db)
	// User 9 follows both the owner and the project.
	require.NoError(t, (&models.Follow{
		FollowerID:     9,
		FollowableType: models.KindProject,
		FollowableID:   42,
	}).Create(db))
	p := newPipeline(t, db, false)

	require.NotNil(t, p.Ingest(context.Background(), "project_star", 7, models.KindProject, 42,
		map[string]any{"project_title": "demo"}))
	p.Spawner().Wait()

	assert.Equal(t, []uint{3, 5, 9}, recipients(t, db))
}

func TestIngest_ActorInAudience(t *testing.T) {
	db := setupTestDB(t)
	seedStarScenario(t, db)
	p := newPipeline(t, db, false)

	// User 5 follows the owner and stars the project, so they are in the
	// owner_followers audience of their own event.
	require.NotNil(t, p.Ingest(context.Background(), "project_star", 5, models.KindProject, 42,
		map[string]any{"project_title": "demo"}))
	p.Spawner().Wait()

	assert.Equal(t, []uint{3, 5, 9}, recipients(t, db))
}

func TestIngest_ExcludeActor(t *testing.T) {
	db := setupTestDB(t)
	seedStarScenario(t, db)

	var entries []events.Entry
	for _, e := range events.DefaultEntries() {
		if e.Key == events.ProjectStar {
			e.ExcludeActor = true
		}
		entries = append(entries, e)
	}
	registry, err := events.NewRegistry(notifications.DefaultTypes(), entries...)
	require.NoError(t, err)

	p, err := New(Config{DB: db, Registry: registry})
	require.NoError(t, err)

	require.NotNil(t, p.Ingest(context.Background(), "project_star", 5, models.KindProject, 42,
		map[string]any{"project_title": "demo"}))
	p.Spawner().Wait()

	assert.Equal(t, []uint{3, 9}, recipients(t, db))
}

func TestIngest_Rejected(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   map[string]any
	}{
		{name: "missing required field", eventType: "project_star", payload: map[string]any{}},
		{name: "wrong kind", eventType: "project_star", payload: map[string]any{"project_title": 12}},
		{name: "unknown type", eventType: "project_explode", payload: map[string]any{"project_title": "demo"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			seedStarScenario(t, db)
			p := newPipeline(t, db, true)

			assert.Nil(t, p.Ingest(context.Background(), tt.eventType, 7, models.KindProject, 42, tt.payload))
			p.Spawner().Wait()

			assert.Equal(t, int64(0), count(t, db, &models.Event{}))
			assert.Equal(t, int64(0), count(t, db, &models.Notification{}))
			assert.Equal(t, int64(0), count(t, db, &models.EventOutbox{}))
		})
	}
}

func TestIngest_UserLogin(t *testing.T) {
	db := setupTestDB(t)
	seedStarScenario(t, db)
	p := newPipeline(t, db, false)

	assert.Nil(t, p.Ingest(context.Background(), "USER_LOGIN", 5, models.KindUser, 5, nil))
	p.Spawner().Wait()

	assert.Equal(t, int64(0), count(t, db, &models.Event{}))
	assert.Equal(t, int64(0), count(t, db, &models.Notification{}))

	var u models.User
	require.NoError(t, u.Get(db, 5))
	assert.NotNil(t, u.LastLoginAt, "login hook still runs")
}

func TestIngest_CustomHook(t *testing.T) {
	db := setupTestDB(t)
	seedStarScenario(t, db)
	p := newPipeline(t, db, false)

	seen := make(chan events.Payload, 1)
	p.RegisterHook(events.ProjectStar, func(_ context.Context, key events.Key, payload events.Payload) error {
		seen <- payload
		return nil
	})

	require.NotNil(t, p.Ingest(context.Background(), "projectStar", 7, models.KindProject, 42,
		map[string]any{"project_title": "demo"}))
	p.Spawner().Wait()

	got := <-seen
	assert.Equal(t, "demo", got.GetString("project_title"))
	assert.Equal(t, models.KindProject, got.GetString(events.FieldTargetType))
}

func TestIngest_HooksSkipFailedStore(t *testing.T) {
	db := setupTestDB(t)
	seedStarScenario(t, db)
	p := newPipeline(t, db, false)

	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("fail_events", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Dest.(*models.Event); ok {
			_ = tx.AddError(errors.New("disk full"))
		}
	}))

	var calls atomic.Int32
	p.RegisterHook(events.ProjectStar, func(context.Context, events.Key, events.Payload) error {
		calls.Add(1)
		return nil
	})

	assert.Nil(t, p.Ingest(context.Background(), "project_star", 7, models.KindProject, 42,
		map[string]any{"project_title": "demo"}))
	p.Spawner().Wait()

	assert.Equal(t, int32(0), calls.Load())
	assert.Equal(t, int64(0), count(t, db, &models.Event{}))
	assert.Equal(t, int64(0), count(t, db, &models.Notification{}))
}

func TestIngest_ForcePrivateAndOutbox(t *testing.T) {
	db := setupTestDB(t)
	seedStarScenario(t, db)
	p := newPipeline(t, db, true)

	event := p.Ingest(context.Background(), "project_star", 7, models.KindProject, 42,
		map[string]any{"project_title": "demo"}, ForcePrivate())
	require.NotNil(t, event)
	p.Spawner().Wait()

	assert.False(t, event.Public)

	pending, err := models.FindPendingEventOutbox(db, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, event.ID, pending[0].EventID)
	assert.Equal(t, "project:42", pending[0].PartitionKey)

	public, err := p.EventsForTarget(context.Background(), models.KindProject, 42, models.EventQuery{})
	require.NoError(t, err)
	assert.Empty(t, public)

	all, err := p.EventsForActor(context.Background(), 7, models.EventQuery{IncludePrivate: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, event.ID, all[0].ID)
}

func TestIngest_RelatedAndData(t *testing.T) {
	db := setupTestDB(t)
	seedStarScenario(t, db)
	p := newPipeline(t, db, false)

	c := &models.Comment{ID: 11, AuthorID: 7, CommentableType: models.KindProject, CommentableID: 42, Body: "nice"}
	require.NoError(t, c.Create(db))

	require.NotNil(t, p.Ingest(context.Background(), "project_comment", 7, models.KindProject, 42,
		map[string]any{"project_title": "demo", "comment_id": 11, "comment_text": "nice"}))
	p.Spawner().Wait()

	var rows []models.Notification
	require.NoError(t, db.Find(&rows).Error)
	require.NotEmpty(t, rows)
	for _, n := range rows {
		assert.NotEqual(t, uint(7), n.UserID)
		require.NotNil(t, n.RelatedType)
		assert.Equal(t, models.KindComment, *n.RelatedType)
		assert.Equal(t, uint(11), *n.RelatedID)
	}
}
