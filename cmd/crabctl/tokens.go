package main

import (
	"github.com/spf13/cobra"
)

var developerKey bool

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Issue and revoke API credentials",
}

var tokensIssueCmd = &cobra.Command{
	Use:   "issue <username>",
	Short: "Issue an access token, or a developer key with --developer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		ctx := cmd.Context()
		crab, err := e.svc.Identity.GetCrabByUsername(ctx, args[0])
		if err != nil {
			return err
		}
		if developerKey {
			key, err := e.svc.Tokens.IssueDeveloperKey(ctx, crab.ID)
			if err != nil {
				return err
			}
			return emit(map[string]string{"key": key.Key}, "%s", key.Key)
		}
		token, err := e.svc.Tokens.IssueAccessToken(ctx, crab.ID)
		if err != nil {
			return err
		}
		return emit(map[string]string{"token": token.Key}, "%s", token.Key)
	},
}

var tokensRevokeCmd = &cobra.Command{
	Use:   "revoke <username> <key>",
	Short: "Revoke an access token, or a developer key with --developer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEnv()
		if err != nil {
			return err
		}
		defer e.close()

		ctx := cmd.Context()
		crab, err := e.svc.Identity.GetCrabByUsername(ctx, args[0])
		if err != nil {
			return err
		}
		if developerKey {
			err = e.svc.Tokens.RevokeDeveloperKey(ctx, crab.ID, args[1])
		} else {
			err = e.svc.Tokens.RevokeAccessToken(ctx, crab.ID, args[1])
		}
		if err != nil {
			return err
		}
		return emit(map[string]string{"revoked": args[1]}, "revoked %s", args[1])
	},
}

func init() {
	tokensCmd.PersistentFlags().BoolVar(&developerKey, "developer", false, "Operate on developer keys")
	tokensCmd.AddCommand(tokensIssueCmd, tokensRevokeCmd)
	rootCmd.AddCommand(tokensCmd)
}
