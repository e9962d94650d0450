package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the card catalog cache",
	}

	catalogCmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Drop every cached catalog entry (memory, Redis and snapshot)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				if err := svc.Catalog.Purge(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Catalog cache purged")
				return nil
			})
		},
	})

	var setHint string
	invalidateCmd := &cobra.Command{
		Use:   "invalidate <card name>",
		Short: "Drop one cached card so the next lookup refetches it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(cmd.Context(), func(svc *services) error {
				if err := svc.Catalog.Invalidate(cmd.Context(), args[0], setHint); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Invalidated %q\n", args[0])
				return nil
			})
		},
	}
	invalidateCmd.Flags().StringVar(&setHint, "set", "", "set code the entry was cached under")
	catalogCmd.AddCommand(invalidateCmd)

	return catalogCmd
}
