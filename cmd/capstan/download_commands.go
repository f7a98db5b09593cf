package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"capstan/internal/api"
	"capstan/internal/ipc"
	"capstan/internal/logging"
	"capstan/internal/recordaccess"
)

func newAddCommand(ctx *commandContext) *cobra.Command {
	var owner string
	var destination string

	cmd := &cobra.Command{
		Use:   "add <source> [source...]",
		Short: "Queue sources for download",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				queued := make([]api.Download, 0, len(args))
				for _, source := range args {
					resp, err := client.DownloadCreate(source, owner, destination)
					if err != nil {
						return err
					}
					queued = append(queued, resp.Download)
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"downloads": queued})
				}
				out := cmd.OutOrStdout()
				for _, d := range queued {
					fmt.Fprintf(out, "Queued download #%d (%s)\n", d.ID, downloadTitle(d))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "Owner label recorded with the download")
	cmd.Flags().StringVar(&destination, "destination", "", "Destination library for imports")
	return cmd
}

func newListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List downloads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access recordaccess.Access) error {
				downloads, err := access.List(cmd.Context(), statuses)
				if err != nil {
					return err
				}
				downloads = api.SortDownloadsNewestFirst(downloads)
				if ctx.JSONMode() {
					if downloads == nil {
						downloads = []api.Download{}
					}
					return writeJSON(cmd, map[string]any{"downloads": downloads})
				}
				if len(downloads) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No downloads")
					return nil
				}
				table := renderTable(
					[]string{"ID", "Name", "Status", "Progress", "Size", "Rate", "Created"},
					buildDownloadRows(downloads),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
				)
				fmt.Fprint(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVarP(&statuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show download details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withAccess(func(access recordaccess.Access) error {
				download, err := access.Describe(cmd.Context(), ids[0])
				if err != nil {
					return err
				}
				if download == nil {
					return fmt.Errorf("download %d not found", ids[0])
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"download": download})
				}
				printDownloadDetail(cmd, *download)
				return nil
			})
		},
	}
}

func printDownloadDetail(cmd *cobra.Command, d api.Download) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Download #%d\n", d.ID)
	writeDetail(out, "Name", downloadTitle(d))
	writeDetail(out, "Status", formatStatusLabel(d.Status))
	writeDetail(out, "Source", d.Source)
	writeDetail(out, "Owner", d.Owner)
	writeDetail(out, "Progress", fmt.Sprintf("%s (%s of %s)",
		logging.FormatPercent(d.Percent),
		formatSizeCell(d.CompletedBytes),
		formatSizeCell(d.TotalBytes)))
	if d.DownloadRate > 0 || d.UploadRate > 0 {
		writeDetail(out, "Rates", fmt.Sprintf("down %s, up %s",
			formatRateCell(d.DownloadRate), formatRateCell(d.UploadRate)))
	}
	if d.Peers > 0 || d.Seeds > 0 {
		writeDetail(out, "Peers", fmt.Sprintf("%d (%d seeds)", d.Peers, d.Seeds))
	}
	if d.ETASeconds != nil {
		writeDetail(out, "ETA", formatETA(d.ETASeconds))
	}
	writeDetail(out, "Staging", d.StagingPath)
	writeDetail(out, "Destination", d.DestinationID)
	writeDetail(out, "Fingerprint", d.Fingerprint)
	writeDetail(out, "Created", formatDetailTime(d.CreatedAt))
	writeDetail(out, "Completed", formatDetailTime(d.CompletedAt))
	writeDetail(out, "Imported", formatDetailTime(d.ImportedAt))
	if msg := strings.TrimSpace(d.ErrorMessage); msg != "" {
		writeDetail(out, "Error", msg)
	}
	if len(d.Trackers) > 0 {
		writeDetail(out, "Trackers", strings.Join(d.Trackers, ", "))
	}
}

// writeDetail emits one aligned label/value line, skipping empty values so
// optional fields never render as blanks.
func writeDetail(out io.Writer, label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	fmt.Fprintf(out, "  %-13s %s\n", label+":", value)
}

func formatDetailTime(value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return formatDisplayTime(value)
}

func newPauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <id> [id...]",
		Short: "Pause active downloads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				paused := make([]api.Download, 0, len(ids))
				for _, id := range ids {
					resp, err := client.DownloadPause(id)
					if err != nil {
						if ctx.JSONMode() {
							return err
						}
						fmt.Fprintf(out, "Download %d: %v\n", id, err)
						continue
					}
					paused = append(paused, resp.Download)
					if !ctx.JSONMode() {
						fmt.Fprintf(out, "Download %d paused\n", id)
					}
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"downloads": paused})
				}
				return nil
			})
		},
	}
}

func newResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <id> [id...]",
		Short: "Resume paused downloads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				resumed := make([]api.Download, 0, len(ids))
				for _, id := range ids {
					resp, err := client.DownloadResume(id)
					if err != nil {
						if ctx.JSONMode() {
							return err
						}
						fmt.Fprintf(out, "Download %d: %v\n", id, err)
						continue
					}
					resumed = append(resumed, resp.Download)
					if !ctx.JSONMode() {
						fmt.Fprintf(out, "Download %d resumed\n", id)
					}
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"downloads": resumed})
				}
				return nil
			})
		},
	}
}

func newCancelCommand(ctx *commandContext) *cobra.Command {
	var deleteFiles bool

	cmd := &cobra.Command{
		Use:   "cancel <id> [id...]",
		Short: "Cancel downloads",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withAccess(func(access recordaccess.Access) error {
				result, err := access.Cancel(cmd.Context(), ids, deleteFiles)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeCancelResultJSON(cmd, result)
				}
				printCancelResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&deleteFiles, "delete-files", false, "Also remove staged files")
	return cmd
}

func newImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <id> [id...]",
		Short: "Queue completed downloads for catalog import",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				result, err := api.ImportDownloadsByID(cmd.Context(), client, ids)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeImportResultJSON(cmd, result)
				}
				printImportResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}
