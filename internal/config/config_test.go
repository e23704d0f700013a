package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                 "development",
		Port:                "8375",
		DBDriver:            "postgres",
		DBPassword:          "secure-password",
		DBSSLMode:           "require",
		MoltCharLimit:       280,
		MinutesEditable:     5,
		APIDefaultMoltLimit: 10,
		APIMaxMoltLimit:     50,
		APIDefaultCrabLimit: 10,
		APIMaxCrabLimit:     50,
		TracingSamplerRatio: 1,
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		expectError bool
	}{
		{"valid development config", func(c *Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"sqlite without path", func(c *Config) { c.DBDriver = "sqlite" }, true},
		{"sqlite with path", func(c *Config) { c.DBDriver = "sqlite"; c.SQLitePath = "crabber.db" }, false},
		{"zero char limit", func(c *Config) { c.MoltCharLimit = 0 }, true},
		{"max below default", func(c *Config) { c.APIMaxMoltLimit = 5 }, true},
		{"sampler out of range", func(c *Config) { c.TracingSamplerRatio = 1.5 }, true},
		{"production with default password", func(c *Config) { c.Env = "production"; c.DBPassword = "password" }, true},
		{"production with ssl disabled", func(c *Config) { c.Env = "prod"; c.DBSSLMode = "disable" }, true},
		{"production with sqlite", func(c *Config) { c.Env = "production"; c.DBDriver = "sqlite"; c.SQLitePath = "x.db" }, true},
		{"production hardened", func(c *Config) { c.Env = "production" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)

			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	defer os.Unsetenv("APP_ENV")
	defer os.Unsetenv("DB_DRIVER")
	defer os.Unsetenv("MOLT_CHAR_LIMIT")
	defer viper.Reset()

	os.Setenv("APP_ENV", "test")
	os.Setenv("DB_DRIVER", "  SQLite ")
	os.Setenv("MOLT_CHAR_LIMIT", "140")

	c, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Equal(t, 140, c.MoltCharLimit)
	assert.Equal(t, 140, c.Limits().MoltCharLimit)
	assert.Equal(t, 5*time.Minute, c.Limits().EditWindow)
}

func TestDefaultAwardRules_Thresholds(t *testing.T) {
	rules := DefaultAwardRules()

	var counts []int64
	for _, m := range rules.FollowerMilestones {
		counts = append(counts, m.Count)
	}
	assert.Equal(t, []int64{1, 10, 100, 1000}, counts)
	assert.Equal(t, "Pineapple Express", rules.TagTrophies["420"])
	assert.Equal(t, "One Year", rules.AnniversaryTitle)
}
