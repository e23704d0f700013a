package main

import (
	"encoding/json"
	"fmt"
	"os"

	"crabber/internal/cache"
	"crabber/internal/config"
	"crabber/internal/database"
	"crabber/internal/observability"
	"crabber/internal/service"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	jsonOutput bool
	loadedCfg  *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "crabctl",
	Short:         "Operator tooling for crabber",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		observability.InitLogger(cfg.Env, cfg.LogLevel)
		loadedCfg = cfg
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

// env bundles what a command needs to talk to the database.
type env struct {
	cfg *config.Config
	db  *gorm.DB
	svc *service.Services
}

// openEnv connects to the configured database. The schema is left
// untouched; run `crabctl migrate up` first.
func openEnv() (*env, error) {
	cfg := loadedCfg
	if cfg == nil {
		var err error
		if cfg, err = config.LoadConfig(); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	limits := cfg.Limits()
	svc := service.New(db, service.Options{
		Cache:  cache.New(cache.Connect(cfg.RedisURL)),
		Limits: &limits,
	})
	return &env{cfg: cfg, db: db, svc: svc}, nil
}

func (e *env) close() {
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// emit prints v as indented JSON when --json is set and the human line
// otherwise.
func emit(v interface{}, human string, args ...interface{}) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintf(os.Stdout, human+"\n", args...)
	return err
}
