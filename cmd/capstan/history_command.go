package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"capstan/internal/api"
	"capstan/internal/recordaccess"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var outcomes []string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show archived download outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access recordaccess.Access) error {
				entries, err := access.History(cmd.Context(), limit, outcomes)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					if entries == nil {
						entries = []api.HistoryEntry{}
					}
					return writeJSON(cmd, map[string]any{"entries": entries})
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No history entries")
					return nil
				}
				table := renderTable(
					[]string{"Record", "Name", "Outcome", "Size", "Finished"},
					buildHistoryRows(entries),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show (0 for all)")
	cmd.Flags().StringArrayVar(&outcomes, "outcome", nil, "Filter by outcome (repeatable)")
	return cmd
}
