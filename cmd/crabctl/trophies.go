package main

import (
	"time"

	"github.com/spf13/cobra"
)

var trophiesCmd = &cobra.Command{
	Use:   "trophies",
	Short: "Maintain the trophy catalog and periodic awards",
}

var trophiesSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Insert missing catalog trophies",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		added, err := e.svc.Awards.SyncCatalog(cmd.Context())
		if err != nil {
			return err
		}
		return emit(map[string]int{"added": added}, "added %d trophies", added)
	},
}

var trophiesSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Award anniversary trophies to every eligible crab",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		awarded, err := e.svc.Awards.RunAnniversarySweep(cmd.Context(), time.Now().UTC())
		if err != nil {
			return err
		}
		return emit(map[string]int{"awarded": awarded}, "awarded %d trophies", awarded)
	},
}

// awardShowCmd is the daily cron entry point.
var awardShowCmd = &cobra.Command{
	Use:   "award-show",
	Short: "Run the daily trophy sweep",
	RunE:  trophiesSweepCmd.RunE,
}

func init() {
	trophiesCmd.AddCommand(trophiesSyncCmd, trophiesSweepCmd)
	rootCmd.AddCommand(trophiesCmd, awardShowCmd)
}
