package main

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"famvault/internal/api"
	"famvault/internal/config"
)

func newAdminCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands (need the admin token)",
	}

	cmd.AddCommand(newAdminGCBlobsCmd(cfg))
	cmd.AddCommand(newAdminUserCmd(cfg))
	cmd.AddCommand(newAdminTokenCmd(cfg))
	return cmd
}

func newAdminGCBlobsCmd(cfg *config.Config) *cobra.Command {
	var (
		apply     bool
		batchSize int
		grace     string
	)

	cmd := &cobra.Command{
		Use:   "gc-blobs",
		Short: "Delete blobs no record references anymore",
		Long:  "Runs as a dry run unless --apply is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				req := api.BlobGCRequest{DryRun: !apply, BatchSize: batchSize, GracePeriod: grace}
				resp, err := client.AdminBlobGC(cmd.Context(), req, apply)
				if err != nil {
					return err
				}
				if structured() {
					return writeStructured(resp)
				}
				mode := "dry run"
				if !resp.DryRun {
					mode = "applied"
				}
				return writePlain("%s: candidates=%d deleted=%d failed=%d reclaimed=%s\n",
					mode, resp.CandidateCount, resp.DeletedCount, resp.FailedCount, humanize.IBytes(uint64(resp.ReclaimedBytes)))
			})
		},
	}

	cmd.Flags().BoolVar(&apply, "apply", false, "delete unreferenced blobs")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "orphans listed per page (default: server setting)")
	cmd.Flags().StringVar(&grace, "grace", "", "minimum orphan age, e.g. 1h (default: server setting)")
	return cmd
}

func newAdminUserCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "add <name>",
		Short: "Create a user and print its first API token",
		Args:  requireExactlyArgs(1, "name is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				created, err := client.AdminCreateUser(cmd.Context(), api.UserCreateRequest{Name: args[0]})
				if err != nil {
					return err
				}
				if structured() {
					return writeStructured(created)
				}
				return writePlain("created user %s (%s)\ntoken: %s\n", created.User.DisplayName, created.User.ID, created.Token)
			})
		},
	})
	return cmd
}

func newAdminTokenCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue or revoke API tokens",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "issue <user-id>",
		Short: "Issue another token for a user",
		Args:  requireExactlyArgs(1, "user id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				token, err := client.AdminCreateToken(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if structured() {
					return writeStructured(token)
				}
				return writePlain("token: %s\n", token.Token)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "revoke <token-id>",
		Short: "Revoke a token",
		Args:  requireExactlyArgs(1, "token id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cfg, func(client *api.Client) error {
				if err := client.AdminRevokeToken(cmd.Context(), args[0]); err != nil {
					return err
				}
				return writePlain("revoked %s\n", args[0])
			})
		},
	})
	return cmd
}

