package repository

import (
	"context"
	"testing"
	"time"

	"crabber/internal/models"
	"crabber/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(t *testing.T, repo BlockRepository, blocker, blocked *models.Crab) {
	t.Helper()
	created, err := repo.Insert(context.Background(), blocker.ID, blocked.ID)
	require.NoError(t, err)
	require.True(t, created)
}

func TestBlockRepository_Edges(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewBlockRepository(db)
	ctx := context.Background()
	a, b, c := testutil.Crab(t, db, "alice"), testutil.Crab(t, db, "bobby"), testutil.Crab(t, db, "carol")

	block(t, repo, a, b)
	created, err := repo.Insert(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, created, "blocking twice is a no-op")

	exists, err := repo.Exists(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, exists, "blocks are directed")
	between, err := repo.Between(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, between)
	between, err = repo.Between(ctx, a.ID, c.ID)
	require.NoError(t, err)
	assert.False(t, between)

	block(t, repo, a, c)
	blocked, total, err := repo.Blocked(ctx, a.ID, models.PageQuery{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, []uint{b.ID}, crabIDs(blocked))

	removed, err := repo.Delete(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.Delete(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestBlockFilters(t *testing.T) {
	db := testutil.NewDB(t)
	blocks := NewBlockRepository(db)
	feed := NewFeedRepository(db)
	ctx := context.Background()

	me, blocker, blockee, friend := testutil.Crab(t, db, "me_crab"), testutil.Crab(t, db, "blocker"), testutil.Crab(t, db, "blockee"), testutil.Crab(t, db, "friend")
	block(t, blocks, blocker, me)
	block(t, blocks, me, blockee)

	testutil.Molt(t, db, blocker, "shell talk", testutil.At(time.Minute))
	shared := testutil.Molt(t, db, blockee, "shell talk", testutil.At(2*time.Minute))
	kept := testutil.Molt(t, db, friend, "shell talk", testutil.At(3*time.Minute))
	testutil.Molt(t, db, friend, "", testutil.At(4*time.Minute), testutil.Of(models.MoltKindRemolt, shared))

	t.Run("molts", func(t *testing.T) {
		molts, total, err := feed.PostsByAuthor(ctx, friend.ID, models.PageQuery{ViewerID: me.ID})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total, "remolt of a blocked crab is hidden")
		assert.Equal(t, []uint{kept.ID}, moltIDs(molts))

		molts, _, err = feed.SearchPosts(ctx, "shell", models.PageQuery{ViewerID: me.ID})
		require.NoError(t, err)
		assert.Equal(t, []uint{kept.ID}, moltIDs(molts))

		molts, _, err = feed.SearchPosts(ctx, "shell", models.PageQuery{})
		require.NoError(t, err)
		assert.Len(t, molts, 3, "anonymous readers see everything")
	})

	t.Run("crabs", func(t *testing.T) {
		crabs, total, err := feed.SearchUsers(ctx, "block", models.PageQuery{ViewerID: me.ID})
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, crabs)

		ranked, _, err := feed.MostPopularUsers(ctx, models.PageQuery{ViewerID: blockee.ID})
		require.NoError(t, err)
		for _, r := range ranked {
			assert.NotEqual(t, me.ID, r.Item.ID)
		}
	})

	t.Run("recommended", func(t *testing.T) {
		follows := NewFollowRepository(db)
		testutil.Follow(t, db, me, friend)
		testutil.Follow(t, db, friend, blockee)
		testutil.Follow(t, db, friend, blocker)

		recs, err := follows.Recommended(ctx, me.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("notifications", func(t *testing.T) {
		notifications := NewNotificationRepository(db)
		for _, sender := range []*models.Crab{blocker, blockee, friend} {
			_, err := notifications.Insert(ctx, &models.Notification{RecipientID: me.ID, SenderID: &sender.ID, Type: models.NotificationFollow})
			require.NoError(t, err)
		}

		list, total, err := notifications.List(ctx, me.ID, NotificationFilter{}, models.PageQuery{})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, list, 1)
		assert.Equal(t, friend.ID, *list[0].SenderID)

		unread, err := notifications.UnreadCount(ctx, me.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), unread)
	})
}
