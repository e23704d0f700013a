package service

import (
	"context"
	"testing"

	"crabber/internal/models"
	"crabber/internal/repository"
	"crabber/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService_Notify(t *testing.T) {
	svc, db, _ := newServices(t)
	ctx := context.Background()
	alice, bob := testutil.Crab(t, db, "alice"), testutil.Crab(t, db, "bob_")
	molt := testutil.Molt(t, db, alice, "hello")

	mention := NotifyInput{
		RecipientID: bob.ID,
		SenderID:    &alice.ID,
		Type:        models.NotificationMention,
		MoltID:      &molt.ID,
	}

	n, err := svc.Notifications.Notify(ctx, mention)
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.False(t, n.Read)

	t.Run("duplicate is dropped", func(t *testing.T) {
		n, err := svc.Notifications.Notify(ctx, mention)
		require.NoError(t, err)
		assert.Nil(t, n)
	})

	t.Run("self notification", func(t *testing.T) {
		_, err := svc.Notifications.Notify(ctx, NotifyInput{RecipientID: alice.ID, SenderID: &alice.ID, Type: models.NotificationLike})
		assert.ErrorIs(t, err, ErrSelfNotification)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := svc.Notifications.Notify(ctx, NotifyInput{RecipientID: bob.ID, Type: "poke"})
		requireCode(t, err, models.CodeValidation)
	})

	t.Run("senderless notifications never collide", func(t *testing.T) {
		warning := NotifyInput{RecipientID: bob.ID, Type: models.NotificationWarning, Content: "be nice"}
		first, err := svc.Notifications.Notify(ctx, warning)
		require.NoError(t, err)
		second, err := svc.Notifications.Notify(ctx, warning)
		require.NoError(t, err)
		assert.NotNil(t, first)
		assert.NotNil(t, second)
	})

	t.Run("invisible recipient", func(t *testing.T) {
		gone := testutil.Crab(t, db, "gone")
		testutil.Set(t, db, gone, map[string]interface{}{"deleted": true})
		n, err := svc.Notifications.Notify(ctx, NotifyInput{RecipientID: gone.ID, SenderID: &alice.ID, Type: models.NotificationFollow})
		require.NoError(t, err)
		assert.Nil(t, n)
		assert.Empty(t, notificationsOf(t, db, gone, models.NotificationFollow))
	})
}

func TestNotificationService_ReadState(t *testing.T) {
	svc, db, _ := newServices(t)
	ctx := context.Background()
	alice, bob := testutil.Crab(t, db, "alice"), testutil.Crab(t, db, "bob_")

	require.NoError(t, svc.Graph.Follow(ctx, alice.ID, bob.ID))
	molt := testutil.Molt(t, db, bob, "like this")
	_, err := svc.Engagement.Like(ctx, alice.ID, molt.ID)
	require.NoError(t, err)

	unread, err := svc.Notifications.UnreadCount(ctx, bob.ID)
	require.NoError(t, err)
	// follow, like, and the Social Newbie trophy
	assert.Equal(t, int64(3), unread)

	page, err := svc.Notifications.Notifications(ctx, bob.ID, repository.NotificationFilter{
		Types: []models.NotificationType{models.NotificationLike},
	}, models.PageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	like := page.Items[0]
	require.NotNil(t, like.Sender)
	assert.Equal(t, alice.ID, like.Sender.ID)

	requireCode(t, svc.Notifications.MarkRead(ctx, alice.ID, like.ID, true), models.CodeForbidden)
	require.NoError(t, svc.Notifications.MarkRead(ctx, bob.ID, like.ID, true))
	unread, err = svc.Notifications.UnreadCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)

	marked, err := svc.Notifications.MarkAllRead(ctx, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), marked)
	unread, err = svc.Notifications.UnreadCount(ctx, bob.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	t.Run("notifications from hidden senders are hidden", func(t *testing.T) {
		testutil.Set(t, db, alice, map[string]interface{}{"banned": true})
		page, err := svc.Notifications.Notifications(ctx, bob.ID, repository.NotificationFilter{}, models.PageQuery{})
		require.NoError(t, err)
		require.Len(t, page.Items, 1)
		assert.Equal(t, models.NotificationTrophy, page.Items[0].Type)
	})
}
