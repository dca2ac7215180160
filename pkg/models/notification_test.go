package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func createTestNotification(t *testing.T, db *gorm.DB, userID uint) *Notification {
	n := &Notification{
		UserID:           userID,
		NotificationType: 1,
		Data:             JSONMap{"project_title": "demo"},
	}
	require.NoError(t, n.Create(db))
	return n
}

func TestNotification_Create(t *testing.T) {
	db := setupTestDB(t)

	t.Run("requires user and type", func(t *testing.T) {
		err := (&Notification{NotificationType: 1}).Create(db)
		assert.Error(t, err)

		err = (&Notification{UserID: 1}).Create(db)
		assert.Error(t, err)
	})

	t.Run("read_at follows read", func(t *testing.T) {
		unread := &Notification{UserID: 1, NotificationType: 1, ReadAt: ptr(time.Now())}
		require.NoError(t, unread.Create(db))
		assert.Nil(t, unread.ReadAt)

		read := &Notification{UserID: 1, NotificationType: 1, Read: true}
		require.NoError(t, read.Create(db))
		assert.NotNil(t, read.ReadAt)
	})

	t.Run("data round trips", func(t *testing.T) {
		n := createTestNotification(t, db, 2)

		var reloaded Notification
		require.NoError(t, db.First(&reloaded, n.ID).Error)
		assert.Equal(t, "demo", reloaded.Data["project_title"])
	})
}

func TestMarkNotificationsRead_OwnerScoped(t *testing.T) {
	db := setupTestDB(t)

	mine := createTestNotification(t, db, 1)
	theirs := createTestNotification(t, db, 2)

	changed, err := MarkNotificationsRead(db, 1, []uint{mine.ID, theirs.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), changed)

	var reloadedMine, reloadedTheirs Notification
	require.NoError(t, db.First(&reloadedMine, mine.ID).Error)
	require.NoError(t, db.First(&reloadedTheirs, theirs.ID).Error)

	assert.True(t, reloadedMine.Read)
	assert.NotNil(t, reloadedMine.ReadAt)
	assert.False(t, reloadedTheirs.Read)
	assert.Nil(t, reloadedTheirs.ReadAt)

	// Marking again is a no-op.
	changed, err = MarkNotificationsRead(db, 1, []uint{mine.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), changed)
}

func TestMarkAllNotificationsRead(t *testing.T) {
	db := setupTestDB(t)

	createTestNotification(t, db, 1)
	createTestNotification(t, db, 1)
	createTestNotification(t, db, 2)

	changed, err := MarkAllNotificationsRead(db, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)

	count, err := CountUnreadNotifications(db, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	count, err = CountUnreadNotifications(db, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDeleteNotifications_OwnerScoped(t *testing.T) {
	db := setupTestDB(t)

	mine := createTestNotification(t, db, 1)
	theirs := createTestNotification(t, db, 2)

	deleted, err := DeleteNotifications(db, 1, []uint{mine.ID, theirs.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var count int64
	require.NoError(t, db.Model(&Notification{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	deleted, err = DeleteNotifications(db, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestListNotifications(t *testing.T) {
	db := setupTestDB(t)

	var ids []uint
	for i := 0; i < 5; i++ {
		ids = append(ids, createTestNotification(t, db, 1).ID)
	}
	createTestNotification(t, db, 2)
	_, err := MarkNotificationsRead(db, 1, ids[:2])
	require.NoError(t, err)

	tests := []struct {
		name     string
		query    NotificationQuery
		expected []uint
	}{
		{
			name:     "all newest first",
			query:    NotificationQuery{},
			expected: []uint{ids[4], ids[3], ids[2], ids[1], ids[0]},
		},
		{
			name:     "unread only",
			query:    NotificationQuery{UnreadOnly: true},
			expected: []uint{ids[4], ids[3], ids[2]},
		},
		{
			name:     "paginated",
			query:    NotificationQuery{Limit: 2, Offset: 1},
			expected: []uint{ids[3], ids[2]},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ListNotifications(db, 1, tt.query)
			require.NoError(t, err)

			var gotIDs []uint
			for _, n := range got {
				gotIDs = append(gotIDs, n.ID)
				assert.Equal(t, uint(1), n.UserID)
			}
			assert.Equal(t, tt.expected, gotIDs)
		})
	}
}

func ptr[T any](v T) *T {
	return &v
}
