// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env            string `mapstructure:"APP_ENV"`
	Port           string `mapstructure:"PORT"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`
	DBDriver       string `mapstructure:"DB_DRIVER"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	SQLitePath     string `mapstructure:"SQLITE_PATH"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`

	RateLimitEnabled  bool `mapstructure:"RATE_LIMIT_ENABLED"`
	RateLimitRequests int  `mapstructure:"RATE_LIMIT_REQUESTS"`
	RateLimitWindowS  int  `mapstructure:"RATE_LIMIT_WINDOW_SECONDS"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`

	MoltCharLimit       int `mapstructure:"MOLT_CHAR_LIMIT"`
	MinutesEditable     int `mapstructure:"MINUTES_EDITABLE"`
	MoltsPerPage        int `mapstructure:"MOLTS_PER_PAGE"`
	NotifsPerPage       int `mapstructure:"NOTIFS_PER_PAGE"`
	APIDefaultMoltLimit int `mapstructure:"API_DEFAULT_MOLT_LIMIT"`
	APIMaxMoltLimit     int `mapstructure:"API_MAX_MOLT_LIMIT"`
	APIDefaultCrabLimit int `mapstructure:"API_DEFAULT_CRAB_LIMIT"`
	APIMaxCrabLimit     int `mapstructure:"API_MAX_CRAB_LIMIT"`
	APIMaxDeveloperKeys int `mapstructure:"API_MAX_DEVELOPER_KEYS"`
	APIMaxAccessTokens  int `mapstructure:"API_MAX_ACCESS_TOKENS"`
}

// LoadConfig loads application configuration from .env, config files and environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "crabber")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "crabber")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("SQLITE_PATH", "crabber.db")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("RATE_LIMIT_ENABLED", true)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 60)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	limits := DefaultLimits()
	viper.SetDefault("MOLT_CHAR_LIMIT", limits.MoltCharLimit)
	viper.SetDefault("MINUTES_EDITABLE", int(limits.EditWindow.Minutes()))
	viper.SetDefault("MOLTS_PER_PAGE", limits.MoltsPerPage)
	viper.SetDefault("NOTIFS_PER_PAGE", limits.NotifsPerPage)
	viper.SetDefault("API_DEFAULT_MOLT_LIMIT", limits.APIDefaultMoltLimit)
	viper.SetDefault("API_MAX_MOLT_LIMIT", limits.APIMaxMoltLimit)
	viper.SetDefault("API_DEFAULT_CRAB_LIMIT", limits.APIDefaultCrabLimit)
	viper.SetDefault("API_MAX_CRAB_LIMIT", limits.APIMaxCrabLimit)
	viper.SetDefault("API_MAX_DEVELOPER_KEYS", limits.MaxDeveloperKeys)
	viper.SetDefault("API_MAX_ACCESS_TOKENS", limits.MaxAccessTokens)

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	config.DBDriver = strings.ToLower(strings.TrimSpace(config.DBDriver))
	config.DBSSLMode = strings.ToLower(strings.TrimSpace(config.DBSSLMode))

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// IsProduction reports whether the config targets a production profile.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and sane.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	switch c.DBDriver {
	case "postgres":
	case "sqlite":
		if c.SQLitePath == "" {
			return errors.New("SQLITE_PATH is required when DB_DRIVER is sqlite")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if c.MoltCharLimit <= 0 {
		return errors.New("MOLT_CHAR_LIMIT must be positive")
	}
	if c.MinutesEditable < 0 {
		return errors.New("MINUTES_EDITABLE must not be negative")
	}
	if c.APIMaxMoltLimit < c.APIDefaultMoltLimit || c.APIMaxCrabLimit < c.APIDefaultCrabLimit {
		return errors.New("API max limits must be at least the defaults")
	}
	if c.TracingSamplerRatio < 0 || c.TracingSamplerRatio > 1 {
		return errors.New("TRACING_SAMPLER_RATIO must be between 0 and 1")
	}

	if c.IsProduction() {
		if c.DBDriver == "sqlite" {
			return errors.New("sqlite is not supported in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable TLS in production")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	}

	return nil
}
