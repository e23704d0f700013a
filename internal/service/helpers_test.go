package service

import (
	"context"
	"testing"
	"time"

	"crabber/internal/models"
	"crabber/internal/testutil"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// newServices returns services over a fresh database with the trophy catalog
// synced and the clock stopped at testutil.Epoch.
func newServices(t *testing.T, opts ...func(*Options)) (*Services, *gorm.DB, *fakeClock) {
	t.Helper()
	db := testutil.NewDB(t)
	clock := &fakeClock{now: testutil.Epoch}
	o := Options{Clock: clock.Now}
	for _, opt := range opts {
		opt(&o)
	}
	svc := New(db, o)
	svc.Identity.hashCost = bcrypt.MinCost

	_, err := svc.Awards.SyncCatalog(context.Background())
	require.NoError(t, err)
	return svc, db, clock
}

func hasTrophy(t *testing.T, svc *Services, crabID uint, title string) bool {
	t.Helper()
	cases, err := svc.Awards.Trophies(context.Background(), crabID)
	require.NoError(t, err)
	for _, tc := range cases {
		if tc.Trophy.Title == title {
			return true
		}
	}
	return false
}

// notificationsOf loads every notification of typ delivered to recipient,
// including ones the listing would hide.
func notificationsOf(t *testing.T, db *gorm.DB, recipient *models.Crab, typ models.NotificationType) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, db.Where("recipient_id = ? AND type = ?", recipient.ID, typ).Order("id").Find(&out).Error)
	return out
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, models.IsCode(err, code), "want %s, got %v", code, err)
}
