//go:build integration

package seed

import (
	"context"
	"net/url"
	"os"
	"strings"
	"testing"

	"crabber/internal/config"
	"crabber/internal/database"
	"crabber/internal/models"

	"github.com/stretchr/testify/require"
)

func parseDatabaseURLToConfig(dsn string) (*config.Config, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, err
	}
	password := ""
	if u.User != nil {
		password, _ = u.User.Password()
	}
	port := u.Port()
	if port == "" {
		port = "5432"
	}
	return &config.Config{
		Env:        "test",
		DBDriver:   "postgres",
		DBHost:     u.Hostname(),
		DBPort:     port,
		DBUser:     u.User.Username(),
		DBPassword: password,
		DBName:     strings.TrimPrefix(u.Path, "/"),
		DBSSLMode:  "disable",
	}, nil
}

func TestIntegration_SeedPostgres(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping integration seed test")
	}
	cfg, err := parseDatabaseURLToConfig(dsn)
	require.NoError(t, err)

	ctx := context.Background()
	db, err := database.Connect(cfg)
	require.NoError(t, err)
	require.NoError(t, database.ApplySchema(ctx, db))

	summary, err := Seed(ctx, db, Options{NumCrabs: 10, NumMolts: 40, ShouldClean: true, FastHash: true})
	require.NoError(t, err)

	var cnt int64
	require.NoError(t, db.Model(&models.Molt{}).Count(&cnt).Error)
	require.EqualValues(t, summary.Molts, cnt)
}
