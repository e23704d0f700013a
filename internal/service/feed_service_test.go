package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crabber/internal/cache"
	"crabber/internal/models"
	"crabber/internal/testutil"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withRedis(t *testing.T) (func(*Options), *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return func(o *Options) { o.Cache = cache.New(client) }, mr
}

func tagNames(ranked []models.Ranked[models.Crabtag]) []string {
	names := make([]string, len(ranked))
	for i, r := range ranked {
		names[i] = r.Item.Name
	}
	return names
}

func TestFeedService_TrendingTagsCached(t *testing.T) {
	useRedis, mr := withRedis(t)
	svc, db, _ := newServices(t, useRedis)
	ctx := context.Background()
	crab := testutil.Crab(t, db, "tagger")

	for _, content := range []string{"%beach day", "%beach again", "%sand"} {
		_, err := svc.Content.CreateMolt(ctx, crab.ID, content, MoltOptions{})
		require.NoError(t, err)
	}

	trending, err := svc.Feed.TrendingTags(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"beach", "sand"}, tagNames(trending))
	assert.Equal(t, int64(2), trending[0].Count)

	for i := 0; i < 3; i++ {
		_, err := svc.Content.CreateMolt(ctx, crab.ID, "%sand everywhere", MoltOptions{})
		require.NoError(t, err)
	}
	cached, err := svc.Feed.TrendingTags(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"beach", "sand"}, tagNames(cached), "served from cache within the TTL")

	mr.FastForward(2 * cache.TrendingTTL)
	fresh, err := svc.Feed.TrendingTags(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"sand", "beach"}, tagNames(fresh))
}

func TestFeedService_TrendingTagsWindow(t *testing.T) {
	svc, db, clock := newServices(t)
	ctx := context.Background()
	crab := testutil.Crab(t, db, "tagger")

	_, err := svc.Content.CreateMolt(ctx, crab.ID, "%old news", MoltOptions{})
	require.NoError(t, err)
	clock.Advance(8 * 24 * time.Hour)
	_, err = svc.Content.CreateMolt(ctx, crab.ID, "%new news", MoltOptions{})
	require.NoError(t, err)

	trending, err := svc.Feed.TrendingTags(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, tagNames(trending))
}

func TestFeedService_MostPopularUsersCachesFirstPage(t *testing.T) {
	useRedis, mr := withRedis(t)
	svc, db, _ := newServices(t, useRedis)
	ctx := context.Background()
	crabs := testutil.Crabs(t, db, "crab", 3)
	testutil.Follow(t, db, crabs[0], crabs[1])

	first, err := svc.Feed.MostPopularUsers(ctx, models.PageQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	assert.Equal(t, crabs[1].ID, first.Items[0].Item.ID)
	assert.True(t, mr.Exists(cache.PopularCrabsKey(2)))

	testutil.Follow(t, db, crabs[0], crabs[2])
	testutil.Follow(t, db, crabs[1], crabs[2])

	cached, err := svc.Feed.MostPopularUsers(ctx, models.PageQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, crabs[1].ID, cached.Items[0].Item.ID)

	second, err := svc.Feed.MostPopularUsers(ctx, models.PageQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Equal(t, crabs[1].ID, second.Items[0].Item.ID, "later pages bypass the cache")
}

func TestFeedService_TrendingTagsArguments(t *testing.T) {
	useRedis, mr := withRedis(t)
	svc, db, clock := newServices(t, useRedis)
	ctx := context.Background()
	crab := testutil.Crab(t, db, "tagger")

	for _, content := range []string{"%old", "%old", "%old"} {
		_, err := svc.Content.CreateMolt(ctx, crab.ID, content, MoltOptions{})
		require.NoError(t, err)
	}
	clock.Advance(10 * 24 * time.Hour)
	for _, content := range []string{"%a %b %c %d", "%a %b %c", "%a %b", "%a"} {
		_, err := svc.Content.CreateMolt(ctx, crab.ID, content, MoltOptions{})
		require.NoError(t, err)
	}

	defaults, err := svc.Feed.TrendingTags(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tagNames(defaults))

	two, err := svc.Feed.TrendingTags(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tagNames(two))

	wide, err := svc.Feed.TrendingTags(ctx, 30, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tagNames(wide))
	wide, err = svc.Feed.TrendingTags(ctx, 30, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "old", "b", "c", "d"}, tagNames(wide), "ties rank older tags first")

	assert.True(t, mr.Exists(cache.TrendingKey(7, 3)))
	assert.True(t, mr.Exists(cache.TrendingKey(7, 2)))
	assert.True(t, mr.Exists(cache.TrendingKey(30, 5)))
}

func TestFeedService_RankingsDropHiddenContent(t *testing.T) {
	useRedis, mr := withRedis(t)
	svc, db, _ := newServices(t, useRedis)
	ctx := context.Background()
	crabs := testutil.Crabs(t, db, "crab", 3)
	testutil.Follow(t, db, crabs[0], crabs[1])
	testutil.Follow(t, db, crabs[2], crabs[1])
	testutil.Follow(t, db, crabs[0], crabs[2])

	popular, err := svc.Feed.MostPopularUsers(ctx, models.PageQuery{Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, popular.Items)
	assert.Equal(t, crabs[1].ID, popular.Items[0].Item.ID)

	_, err = svc.Content.CreateMolt(ctx, crabs[1].ID, "%banned tag", MoltOptions{})
	require.NoError(t, err)
	other, err := svc.Content.CreateMolt(ctx, crabs[2].ID, "%kept %gone", MoltOptions{})
	require.NoError(t, err)
	trending, err := svc.Feed.TrendingTags(ctx, 0, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"banned", "kept", "gone"}, tagNames(trending))

	require.NoError(t, svc.Identity.Ban(ctx, crabs[1].ID))
	assert.False(t, mr.Exists(cache.PopularCrabsKey(10)))
	assert.False(t, mr.Exists(cache.TrendingKey(7, 3)))

	popular, err = svc.Feed.MostPopularUsers(ctx, models.PageQuery{Limit: 10})
	require.NoError(t, err)
	for _, ranked := range popular.Items {
		assert.NotEqual(t, crabs[1].ID, ranked.Item.ID)
	}
	trending, err = svc.Feed.TrendingTags(ctx, 0, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"kept", "gone"}, tagNames(trending))

	require.NoError(t, svc.Content.DeleteMolt(ctx, crabs[2].ID, other.ID))
	trending, err = svc.Feed.TrendingTags(ctx, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, trending)
}

func TestFeedService_Search(t *testing.T) {
	svc, db, _ := newServices(t)
	ctx := context.Background()
	crab := testutil.Crab(t, db, "searcher")
	original := testutil.Molt(t, db, crab, "crab rave tonight")
	testutil.Molt(t, db, crab, "crab rave reply", testutil.Of(models.MoltKindReply, original))

	_, err := svc.Feed.SearchPosts(ctx, "   ", models.PageQuery{})
	requireCode(t, err, models.CodeValidation)
	_, err = svc.Feed.SearchUsers(ctx, "", models.PageQuery{})
	requireCode(t, err, models.CodeValidation)

	page, err := svc.Feed.SearchPosts(ctx, "RAVE", models.PageQuery{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, original.ID, page.Items[0].ID)

	users, err := svc.Feed.SearchUsers(ctx, "search", models.PageQuery{})
	require.NoError(t, err)
	require.Len(t, users.Items, 1)
	assert.Equal(t, crab.ID, users.Items[0].ID)
}

func TestFeedService_Timeline(t *testing.T) {
	svc, db, _ := newServices(t)
	ctx := context.Background()
	me, friend, stranger := testutil.Crab(t, db, "me_crab"), testutil.Crab(t, db, "friend"), testutil.Crab(t, db, "stranger")
	require.NoError(t, svc.Graph.Follow(ctx, me.ID, friend.ID))

	mine := testutil.Molt(t, db, me, "mine", testutil.At(time.Minute))
	theirs := testutil.Molt(t, db, friend, "theirs", testutil.At(2*time.Minute))
	testutil.Molt(t, db, stranger, "noise", testutil.At(3*time.Minute))

	page, err := svc.Feed.Timeline(ctx, me.ID, models.PageQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, theirs.ID, page.Items[0].ID)
	assert.Equal(t, mine.ID, page.Items[1].ID)
	assert.Equal(t, int64(2), page.Total)
}

func TestFeedService_TimelinePages(t *testing.T) {
	svc, db, _ := newServices(t)
	ctx := context.Background()
	me := testutil.Crab(t, db, "pager")
	for i := 0; i < 25; i++ {
		testutil.Molt(t, db, me, fmt.Sprintf("molt %d", i), testutil.At(time.Duration(i)*time.Minute))
	}

	first, err := svc.Feed.Timeline(ctx, me.ID, models.PageQuery{Limit: 20})
	require.NoError(t, err)
	assert.Len(t, first.Items, 20)
	assert.Equal(t, int64(25), first.Total)
	assert.Equal(t, "molt 24", first.Items[0].Content)

	rest, err := svc.Feed.Timeline(ctx, me.ID, models.PageQuery{Limit: 20, Offset: 20})
	require.NoError(t, err)
	assert.Len(t, rest.Items, 5)
	assert.Equal(t, int64(25), rest.Total)
	assert.Equal(t, "molt 0", rest.Items[4].Content)
}

func TestFeedService_ListingsHideBannedAuthors(t *testing.T) {
	svc, db, _ := newServices(t)
	ctx := context.Background()
	viewer, banned := testutil.Crab(t, db, "viewer"), testutil.Crab(t, db, "outlaw")
	require.NoError(t, svc.Graph.Follow(ctx, viewer.ID, banned.ID))

	root, err := svc.Content.CreateMolt(ctx, viewer.ID, "tide check", MoltOptions{})
	require.NoError(t, err)
	_, err = svc.Content.CreateMolt(ctx, banned.ID, "tide %pools for @viewer", MoltOptions{})
	require.NoError(t, err)
	_, err = svc.Content.Reply(ctx, banned.ID, root.ID, "tide reply", MoltOptions{})
	require.NoError(t, err)

	listings := map[string]func() (models.Page[models.Molt], error){
		"timeline": func() (models.Page[models.Molt], error) {
			return svc.Feed.Timeline(ctx, viewer.ID, models.PageQuery{Limit: 10})
		},
		"search": func() (models.Page[models.Molt], error) {
			return svc.Feed.SearchPosts(ctx, "tide", models.PageQuery{Limit: 10})
		},
		"mentions": func() (models.Page[models.Molt], error) {
			return svc.Feed.PostsMentioning(ctx, viewer.Username, models.PageQuery{Limit: 10})
		},
		"tag": func() (models.Page[models.Molt], error) {
			return svc.Feed.PostsWithTag(ctx, "pools", models.PageQuery{Limit: 10})
		},
		"replies": func() (models.Page[models.Molt], error) {
			return svc.Feed.RepliesTo(ctx, root.ID, models.PageQuery{Limit: 10})
		},
	}
	authored := func(page models.Page[models.Molt]) bool {
		for _, m := range page.Items {
			if m.AuthorID == banned.ID {
				return true
			}
		}
		return false
	}

	for name, list := range listings {
		page, err := list()
		require.NoError(t, err, name)
		assert.True(t, authored(page), "%s lists the author before the ban", name)
	}

	require.NoError(t, svc.Identity.Ban(ctx, banned.ID))

	for name, list := range listings {
		page, err := list()
		require.NoError(t, err, name)
		assert.False(t, authored(page), "%s hides the banned author", name)
		assert.Equal(t, int64(len(page.Items)), page.Total, name)
	}
}
