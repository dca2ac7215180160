package notifications

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openforge/commons/pkg/models"
)

func TestService(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	alice := &models.User{Username: "alice", DisplayName: "Alice"}
	require.NoError(t, alice.Create(db))

	svc, err := NewService(ServiceConfig{DB: db})
	require.NoError(t, err)

	var mine []uint
	for i := 0; i < 3; i++ {
		n := &models.Notification{
			UserID:           1,
			NotificationType: int(UserFollowed),
			ActorID:          &alice.ID,
			Data:             models.JSONMap{"actor_id": float64(alice.ID)},
		}
		require.NoError(t, n.Create(db))
		mine = append(mine, n.ID)
	}
	theirs := &models.Notification{UserID: 2, NotificationType: int(UserFollowed)}
	require.NoError(t, theirs.Create(db))

	t.Run("list projects rows", func(t *testing.T) {
		list, err := svc.List(ctx, 1, false, 0, 0)
		require.NoError(t, err)
		require.Len(t, list, 3)

		first := list[0]
		assert.Equal(t, mine[2], first.ID)
		require.NotNil(t, first.Actor)
		assert.Equal(t, "Alice", first.Actor.Name)
		require.NotNil(t, first.Text)
		assert.Equal(t, "Alice (@alice) started following you", *first.Text)
	})

	t.Run("mark read is owner scoped", func(t *testing.T) {
		changed, err := svc.MarkRead(ctx, 1, []uint{mine[0], theirs.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), changed)

		var reloaded models.Notification
		require.NoError(t, db.First(&reloaded, theirs.ID).Error)
		assert.False(t, reloaded.Read)
		assert.Nil(t, reloaded.ReadAt)

		count, err := svc.UnreadCount(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		unread, err := svc.List(ctx, 1, true, 10, 0)
		require.NoError(t, err)
		assert.Len(t, unread, 2)
	})

	t.Run("mark all read", func(t *testing.T) {
		changed, err := svc.MarkAllRead(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(2), changed)

		count, err := svc.UnreadCount(ctx, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("delete is owner scoped", func(t *testing.T) {
		deleted, err := svc.Delete(ctx, 1, []uint{mine[1], theirs.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		list, err := svc.List(ctx, 2, false, 0, 0)
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})
}
