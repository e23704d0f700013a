package main

import (
	"context"
	"fmt"
	"strconv"

	"crabber/internal/models"
	"crabber/internal/repository"
	"crabber/internal/service"

	"github.com/spf13/cobra"
)

var moderateCmd = &cobra.Command{
	Use:   "moderate",
	Short: "Moderate crabs and molts",
}

// crabAction applies fn to the crab named by args[0], including banned and
// deleted crabs so they can be restored.
func crabAction(use, short, done string, fn func(svc *service.Services, ctx context.Context, id uint) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <username>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			ctx := cmd.Context()
			crab, err := repository.NewCrabRepository(e.db).GetByUsernameIncludingInvisible(ctx, args[0])
			if err != nil {
				return err
			}
			if err := fn(e.svc, ctx, crab.ID); err != nil {
				return err
			}
			return emit(map[string]string{"crab": crab.Username, "action": use}, "%s %s", crab.Username, done)
		},
	}
}

// moltAction applies fn to the molt whose id is args[0].
func moltAction(use, short, done string, fn func(svc *service.Services, ctx context.Context, id uint) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <molt-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid molt id %q: %w", args[0], err)
			}
			e, err := openEnv()
			if err != nil {
				return err
			}
			defer e.close()

			if err := fn(e.svc, cmd.Context(), uint(id)); err != nil {
				return err
			}
			return emit(map[string]interface{}{"molt": id, "action": use}, "molt %d %s", id, done)
		},
	}
}

var reportsLimit int

var moderateReportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List reported molts awaiting review",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		page, err := e.svc.Feed.ReportedQueue(cmd.Context(), models.PageQuery{Limit: reportsLimit})
		if err != nil {
			return err
		}
		if jsonOutput {
			return emit(page, "")
		}
		fmt.Printf("%d reported molts\n", page.Total)
		for _, molt := range page.Items {
			fmt.Printf("  %d  @%s  %q\n", molt.ID, molt.Author.Username, molt.Content)
		}
		return nil
	},
}

func init() {
	moderateReportsCmd.Flags().IntVar(&reportsLimit, "limit", 20, "Most molts to list")

	moderateCmd.AddCommand(
		crabAction("ban", "Ban a crab", "banned", func(svc *service.Services, ctx context.Context, id uint) error {
			return svc.Identity.Ban(ctx, id)
		}),
		crabAction("unban", "Lift a ban", "unbanned", func(svc *service.Services, ctx context.Context, id uint) error {
			return svc.Identity.Unban(ctx, id)
		}),
		crabAction("delete", "Soft-delete a crab", "deleted", func(svc *service.Services, ctx context.Context, id uint) error {
			return svc.Identity.SoftDelete(ctx, id)
		}),
		crabAction("restore", "Restore a deleted crab", "restored", func(svc *service.Services, ctx context.Context, id uint) error {
			return svc.Identity.Restore(ctx, id)
		}),
		crabAction("verify", "Mark a crab verified", "verified", func(svc *service.Services, ctx context.Context, id uint) error {
			return svc.Identity.Verify(ctx, id)
		}),
		crabAction("unverify", "Remove verification", "unverified", func(svc *service.Services, ctx context.Context, id uint) error {
			return svc.Identity.Unverify(ctx, id)
		}),
		moltAction("approve", "Clear reports and approve a molt", "approved", func(svc *service.Services, ctx context.Context, id uint) error {
			return svc.Content.Approve(ctx, id)
		}),
		moltAction("unapprove", "Withdraw approval", "unapproved", func(svc *service.Services, ctx context.Context, id uint) error {
			return svc.Content.Unapprove(ctx, id)
		}),
		moltAction("remove", "Delete a molt as a moderator", "removed", func(svc *service.Services, ctx context.Context, id uint) error {
			return svc.Content.ModerateMolt(ctx, id, true)
		}),
		moltAction("reinstate", "Undo a moderator delete", "reinstated", func(svc *service.Services, ctx context.Context, id uint) error {
			return svc.Content.ModerateMolt(ctx, id, false)
		}),
		moderateReportsCmd,
	)
	rootCmd.AddCommand(moderateCmd)
}
