package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"capstan/internal/api"
	"capstan/internal/logging"
	"capstan/internal/volumes"
)

func newVolumesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "volumes",
		Short: "Show monitored volume capacity",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := fetchVolumeStatuses(ctx, cmd)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				if statuses == nil {
					statuses = []api.VolumeStatus{}
				}
				return writeJSON(cmd, map[string]any{"volumes": statuses})
			}
			if len(statuses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No volumes monitored")
				return nil
			}
			table := renderTable(
				[]string{"Path", "Level", "Free", "Total", "Staging"},
				buildVolumeRows(statuses),
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			)
			fmt.Fprint(cmd.OutOrStdout(), table)
			return nil
		},
	}
}

// fetchVolumeStatuses prefers the daemon's cached sample and falls back to a
// one-shot local probe when no daemon answers.
func fetchVolumeStatuses(ctx *commandContext, cmd *cobra.Command) ([]api.VolumeStatus, error) {
	if client, err := ctx.dialClient(); err == nil {
		defer client.Close()
		resp, rpcErr := client.VolumesStatus()
		if rpcErr != nil {
			return nil, rpcErr
		}
		return resp.Volumes, nil
	}
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	monitor := volumes.NewMonitor(cfg, logging.NewNop())
	return api.FromVolumeStatuses(monitor.CheckNow(cmd.Context())), nil
}
