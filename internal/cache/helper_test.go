package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestAside_FetchesOnceThenHits(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *[]string) func() error {
		return func() error {
			calls++
			*dest = []string{"crabs", "molts"}
			return nil
		}
	}

	var first []string
	require.NoError(t, c.Aside(ctx, TrendingKey(7, 3), &first, TrendingTTL, fetch(&first)))
	var second []string
	require.NoError(t, c.Aside(ctx, TrendingKey(7, 3), &second, TrendingTTL, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"crabs", "molts"}, second)

	mr.FastForward(2 * TrendingTTL)
	var third []string
	require.NoError(t, c.Aside(ctx, TrendingKey(7, 3), &third, TrendingTTL, fetch(&third)))
	assert.Equal(t, 2, calls)
}

func TestAside_FetchErrorIsNotCached(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	var dest []string
	err := c.Aside(ctx, "k", &dest, time.Minute, func() error { return errors.New("db down") })
	assert.EqualError(t, err, "db down")
	assert.False(t, mr.Exists("k"))
}

func TestCache_NilClientAlwaysFetches(t *testing.T) {
	c := New(nil)
	ctx := context.Background()

	calls := 0
	var dest int
	for i := 0; i < 2; i++ {
		require.NoError(t, c.Aside(ctx, "k", &dest, time.Minute, func() error {
			calls++
			dest = 7
			return nil
		}))
	}
	assert.Equal(t, 2, calls)
	assert.False(t, c.Enabled())
	c.Invalidate(ctx, "k")
}

func TestInvalidate_RemovesKeys(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, PopularCrabsKey(10), []int{1, 2}, time.Minute))
	c.Invalidate(ctx, PopularCrabsKey(10))
	assert.False(t, mr.Exists(PopularCrabsKey(10)))
}

func TestInvalidateRankings_RemovesEveryPage(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for _, key := range []string{TrendingKey(7, 3), TrendingKey(30, 10), PopularCrabsKey(10), PopularCrabsKey(25), "crab:1"} {
		require.NoError(t, c.SetJSON(ctx, key, []int{1}, time.Minute))
	}
	c.InvalidateRankings(ctx)

	assert.Equal(t, []string{"crab:1"}, mr.Keys())

	var nilCache *Cache
	nilCache.InvalidateRankings(ctx)
}

func TestConnect_UnreachableReturnsNil(t *testing.T) {
	assert.Nil(t, Connect("redis://:bad url"))
}
