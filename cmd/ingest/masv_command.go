package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newMASVCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "masv [folder]",
		Short: "Import every submission folder under a MASV download root",
		Long: "Each sub-folder is one submission. Completed submissions are moved to IMPORTED_DIR;\n" +
			"failed ones stay in place and are retried on the next run.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				root := svc.SubmissionRoot
				if len(args) == 1 {
					root = args[0]
				}
				report, err := svc.Importer.Run(cmd.Context(), root)
				if err != nil {
					return err
				}
				if jsonOutput {
					if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
						return err
					}
				} else {
					printReport(cmd.OutOrStdout(), report)
				}
				if report.Failed > 0 {
					return fmt.Errorf("%d of %d submissions failed", report.Failed, len(report.Units))
				}
				if report.Skipped > 0 {
					return fmt.Errorf("interrupted: %d submissions not started: %w", report.Skipped, context.Cause(cmd.Context()))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the batch report as JSON")
	return cmd
}
