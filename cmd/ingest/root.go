package main

import (
	"github.com/spf13/cobra"

	"cube_wizard/internal/platform/logging"
)

func newRootCommand(ctx *commandContext) *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "ingest",
		Short:         "Read cube deck photos into deck records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			opts := logging.LoadOptions()
			if logLevel != "" {
				opts.Level = logLevel
			}
			_, err := logging.Setup(opts)
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")

	rootCmd.AddCommand(newProcessCommand(ctx))
	rootCmd.AddCommand(newMASVCommand(ctx))
	rootCmd.AddCommand(newCatalogCommand(ctx))
	rootCmd.AddCommand(newTokenCommand())

	return rootCmd
}
