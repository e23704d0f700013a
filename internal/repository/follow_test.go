package repository

import (
	"context"
	"testing"

	"crabber/internal/models"
	"crabber/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func crabIDs(crabs []models.Crab) []uint {
	ids := make([]uint, len(crabs))
	for i, c := range crabs {
		ids[i] = c.ID
	}
	return ids
}

func TestFollowRepository_InsertIsIdempotent(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()
	a, b := testutil.Crab(t, db, "alice"), testutil.Crab(t, db, "bobby")

	created, err := repo.Insert(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Insert(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, created)

	exists, err := repo.Exists(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	removed, err := repo.Delete(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = repo.Delete(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestFollowRepository_CountsSkipInvisible(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	star := testutil.Crab(t, db, "star")
	fans := testutil.Crabs(t, db, "fan", 3)
	for _, f := range fans {
		testutil.Follow(t, db, f, star)
	}
	testutil.Follow(t, db, star, fans[0])
	testutil.Set(t, db, fans[1], map[string]interface{}{"banned": true})

	followers, err := repo.FollowerCount(ctx, star.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, followers)

	following, err := repo.FollowingCount(ctx, star.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, following)

	page, total, err := repo.Followers(ctx, star.ID, models.PageQuery{Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Equal(t, []uint{fans[0].ID}, crabIDs(page))

	page, _, err = repo.Followers(ctx, star.ID, models.PageQuery{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, []uint{fans[2].ID}, crabIDs(page))
}

func TestFollowRepository_Mutual(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	a, b := testutil.Crab(t, db, "alice"), testutil.Crab(t, db, "bobby")
	c := testutil.Crabs(t, db, "mid", 3)

	// a follows mid0, mid1; mid1 and mid2 follow b
	testutil.Follow(t, db, a, c[0])
	testutil.Follow(t, db, a, c[1])
	testutil.Follow(t, db, c[1], b)
	testutil.Follow(t, db, c[2], b)

	mutual, err := repo.Mutual(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{c[1].ID}, crabIDs(mutual))
}

func TestFollowRepository_Recommended(t *testing.T) {
	db := testutil.NewDB(t)
	repo := NewFollowRepository(db)
	ctx := context.Background()

	me := testutil.Crab(t, db, "me_crab")
	friend, hidden := testutil.Crab(t, db, "friend"), testutil.Crab(t, db, "hidden")
	fof := testutil.Crabs(t, db, "fof", 3)

	testutil.Follow(t, db, me, friend)
	testutil.Follow(t, db, me, hidden)
	testutil.Follow(t, db, me, fof[0])
	testutil.Follow(t, db, friend, fof[0]) // already followed
	testutil.Follow(t, db, friend, fof[1])
	testutil.Follow(t, db, friend, me) // self
	testutil.Follow(t, db, hidden, fof[2])
	testutil.Set(t, db, hidden, map[string]interface{}{"deleted": true})

	recs, err := repo.Recommended(ctx, me.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint{fof[1].ID}, crabIDs(recs))
}
