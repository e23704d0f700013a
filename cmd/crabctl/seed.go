package main

import (
	"crabber/internal/seed"

	"github.com/spf13/cobra"
)

var seedOpts seed.Options

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the database with demo crabs and molts",
	Long: `Create demo crabs, follows, molts, replies and likes. Every seeded crab
uses the password "password123".

Examples:
  crabctl seed --crabs 50 --molts 500
  crabctl seed --clean --fast-hash`,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		summary, err := seed.Seed(cmd.Context(), e.db, seedOpts)
		if err != nil {
			return err
		}
		return emit(summary, "seeded %d crabs, %d follows, %d molts, %d likes",
			summary.Crabs, summary.Follows, summary.Molts, summary.Likes)
	},
}

func init() {
	f := seedCmd.Flags()
	f.IntVar(&seedOpts.NumCrabs, "crabs", 20, "Number of crabs")
	f.IntVar(&seedOpts.NumMolts, "molts", 200, "Number of molts")
	f.IntVar(&seedOpts.MaxFollows, "max-follows", 8, "Most crabs each crab follows")
	f.IntVar(&seedOpts.MaxLikes, "max-likes", 5, "Most likes per molt")
	f.IntVar(&seedOpts.MaxDays, "days", 30, "Spread activity over this many days")
	f.BoolVar(&seedOpts.ShouldClean, "clean", false, "Delete existing data first")
	f.BoolVar(&seedOpts.DryRun, "dry-run", false, "Log what would be created")
	f.BoolVar(&seedOpts.FastHash, "fast-hash", false, "Hash the shared password at minimum bcrypt cost")
	f.Int64Var(&seedOpts.RandomSeed, "random-seed", 0, "Random seed (0 picks one)")
	rootCmd.AddCommand(seedCmd)
}
