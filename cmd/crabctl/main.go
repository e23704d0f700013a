// Command crabctl runs operator tasks against the crabber database:
// migrations, seeding, trophy sweeps, tokens and moderation.
package main

import (
	"context"
	"log/slog"
	"os"

	"crabber/internal/observability"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		observability.Logger.Error("Command execution failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
