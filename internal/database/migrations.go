package database

import (
	"fmt"
)

// Migration is a versioned SQL change applied after AutoMigrate. Statements
// must run unchanged on PostgreSQL and SQLite.
type Migration struct {
	Version    int
	Name       string
	UpScript   string
	DownScript string
}

func (m *Migration) String() string {
	return fmt.Sprintf("%06d_%s", m.Version, m.Name)
}

// Usernames and emails are reclaimable once their owner is deleted, so
// uniqueness only covers live rows.
var migrations = []Migration{
	{
		Version:    1,
		Name:       "crabs_username_live_unique",
		UpScript:   `CREATE UNIQUE INDEX IF NOT EXISTS idx_crabs_username_live ON crabs (LOWER(username)) WHERE deleted = false`,
		DownScript: `DROP INDEX IF EXISTS idx_crabs_username_live`,
	},
	{
		Version:    2,
		Name:       "crabs_email_live_unique",
		UpScript:   `CREATE UNIQUE INDEX IF NOT EXISTS idx_crabs_email_live ON crabs (LOWER(email)) WHERE deleted = false`,
		DownScript: `DROP INDEX IF EXISTS idx_crabs_email_live`,
	},
	{
		Version:    3,
		Name:       "molts_author_timeline",
		UpScript:   `CREATE INDEX IF NOT EXISTS idx_molts_author_created ON molts (author_id, created_at)`,
		DownScript: `DROP INDEX IF EXISTS idx_molts_author_created`,
	},
	{
		Version:    4,
		Name:       "molts_original_kind",
		UpScript:   `CREATE INDEX IF NOT EXISTS idx_molts_original_kind ON molts (original_molt_id, kind)`,
		DownScript: `DROP INDEX IF EXISTS idx_molts_original_kind`,
	},
	{
		Version:    5,
		Name:       "molts_reported_queue",
		UpScript:   `CREATE INDEX IF NOT EXISTS idx_molts_reported ON molts (reports, created_at) WHERE reports > 0 AND approved = false`,
		DownScript: `DROP INDEX IF EXISTS idx_molts_reported`,
	},
}

// GetMigrations returns the registered migrations in version order.
func GetMigrations() []Migration {
	return migrations
}

// GetMigrationByVersion returns the migration with version, or nil.
func GetMigrationByVersion(version int) *Migration {
	for _, m := range migrations {
		if m.Version == version {
			return &m
		}
	}
	return nil
}
