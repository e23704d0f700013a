// Package testutil provides in-memory databases and fixtures for tests.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"crabber/internal/database"
	"crabber/internal/models"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Epoch is the base time fixtures are created relative to.
var Epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// NewDB opens a migrated in-memory sqlite database on a single connection.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.ApplySchema(context.Background(), db))
	return db
}

// Crab inserts a visible crab named username.
func Crab(t testing.TB, db *gorm.DB, username string) *models.Crab {
	t.Helper()
	crab := &models.Crab{
		Username:     username,
		Email:        strings.ToLower(username) + "@example.com",
		Password:     "not-a-real-hash",
		DisplayName:  username,
		Description:  models.DefaultDescription,
		RawBio:       "{}",
		Avatar:       models.DefaultAvatar,
		Timezone:     models.DefaultTimezone,
		Preferences:  "{}",
		RegisterTime: Epoch,
	}
	require.NoError(t, db.Create(crab).Error)
	return crab
}

// Crabs inserts n crabs named prefix0..prefixN-1.
func Crabs(t testing.TB, db *gorm.DB, prefix string, n int) []*models.Crab {
	t.Helper()
	crabs := make([]*models.Crab, n)
	for i := range crabs {
		crabs[i] = Crab(t, db, fmt.Sprintf("%s%d", prefix, i))
	}
	return crabs
}

// MoltOption customizes a fixture molt.
type MoltOption func(*models.Molt)

// At sets the molt's creation time to Epoch plus offset.
func At(offset time.Duration) MoltOption {
	return func(m *models.Molt) { m.CreatedAt = Epoch.Add(offset) }
}

// Of makes the molt a reply, remolt or quote of original.
func Of(kind models.MoltKind, original *models.Molt) MoltOption {
	return func(m *models.Molt) {
		m.Kind = kind
		m.OriginalMoltID = &original.ID
	}
}

// Molt inserts a molt by author.
func Molt(t testing.TB, db *gorm.DB, author *models.Crab, content string, opts ...MoltOption) *models.Molt {
	t.Helper()
	molt := &models.Molt{
		AuthorID:  author.ID,
		Content:   content,
		Kind:      models.MoltKindOriginal,
		CreatedAt: Epoch,
	}
	for _, opt := range opts {
		opt(molt)
	}
	require.NoError(t, db.Omit("Author", "OriginalMolt").Create(molt).Error)
	return molt
}

// Follow inserts the edge follower -> following.
func Follow(t testing.TB, db *gorm.DB, follower, following *models.Crab) {
	t.Helper()
	require.NoError(t, db.Omit("Follower", "Following").Create(&models.Follow{
		FollowerID:  follower.ID,
		FollowingID: following.ID,
	}).Error)
}

// Set updates columns of the row behind model.
func Set(t testing.TB, db *gorm.DB, model interface{}, fields map[string]interface{}) {
	t.Helper()
	require.NoError(t, db.Model(model).Updates(fields).Error)
}
