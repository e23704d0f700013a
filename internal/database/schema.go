package database

import (
	"context"
	"fmt"
	"log/slog"

	"crabber/internal/observability"

	"gorm.io/gorm"
)

// SchemaStatus summarizes the migration state of a database.
type SchemaStatus struct {
	Tables            []string
	MissingTables     []string
	AppliedVersions   []int
	PendingMigrations []Migration
}

// ApplySchema creates or updates every persistent table, then applies the
// pending index migrations.
func ApplySchema(ctx context.Context, db *gorm.DB) error {
	observability.Logger.InfoContext(ctx, "Running GORM AutoMigrate", slog.Int("models", len(PersistentModels())))
	if err := db.WithContext(ctx).AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		return fmt.Errorf("run sql migrations: %w", err)
	}
	return nil
}

// GetSchemaStatus reports which tables exist and which migrations are pending.
func GetSchemaStatus(ctx context.Context, db *gorm.DB) (*SchemaStatus, error) {
	status := &SchemaStatus{}

	migrator := db.WithContext(ctx).Migrator()
	for _, model := range PersistentModels() {
		stmt := &gorm.Statement{DB: db}
		if err := stmt.Parse(model); err != nil {
			return nil, fmt.Errorf("parse model: %w", err)
		}
		table := stmt.Schema.Table
		if migrator.HasTable(table) {
			status.Tables = append(status.Tables, table)
		} else {
			status.MissingTables = append(status.MissingTables, table)
		}
	}

	applied, err := NewMigrationStore(db).GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}
	status.AppliedVersions = applied

	appliedSet := make(map[int]bool, len(applied))
	for _, version := range applied {
		appliedSet[version] = true
	}
	for _, m := range GetMigrations() {
		if !appliedSet[m.Version] {
			status.PendingMigrations = append(status.PendingMigrations, m)
		}
	}

	return status, nil
}
