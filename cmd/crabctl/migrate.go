package main

import (
	"fmt"
	"strconv"

	"crabber/internal/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Create tables and apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		if err := database.ApplySchema(cmd.Context(), e.db); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		return emit(map[string]bool{"ok": true}, "schema applied")
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show missing tables and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		status, err := database.GetSchemaStatus(cmd.Context(), e.db)
		if err != nil {
			return fmt.Errorf("schema status: %w", err)
		}
		if jsonOutput {
			return emit(status, "")
		}
		fmt.Printf("tables=%d missing=%d applied=%d pending=%d\n",
			len(status.Tables), len(status.MissingTables), len(status.AppliedVersions), len(status.PendingMigrations))
		for _, table := range status.MissingTables {
			fmt.Printf("missing: %s\n", table)
		}
		for _, m := range status.PendingMigrations {
			fmt.Printf("pending: %06d_%s\n", m.Version, m.Name)
		}
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down <version>",
	Short: "Roll back one applied migration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q: %w", args[0], err)
		}
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		if err := database.RollbackMigration(cmd.Context(), e.db, version); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
		return emit(map[string]int{"rolled_back": version}, "rolled back migration %d", version)
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateStatusCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}
