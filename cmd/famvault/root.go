package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"famvault/internal/config"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		jsonOutput bool
		outputFlag string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:           "famvault",
		Short:         "Famvault stores photos and documents for family records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput && outputFlag == "" {
				outputFlag = "json"
			}
			if err := setOutputFormat(outputFlag); err != nil {
				return err
			}
			warning, err := configureLoggerForCLI(logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON (same as --output json)")
	cmd.PersistentFlags().StringVarP(&outputFlag, "output", "o", "", "output format: plain, json or yaml")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	cmd.AddCommand(
		newSrvCmd(cfg),
		newMigrateCmd(cfg),
		newConfigCmd(cfg),
		newAdminCmd(cfg),
	)
	cmd.AddCommand(newRecordCmds(cfg)...)

	return cmd
}
