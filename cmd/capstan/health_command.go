package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"capstan/internal/api"
	"capstan/internal/config"
	"capstan/internal/ipc"
	"capstan/internal/preflight"
)

func newHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check configuration, stores, and integrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			checks := runConfigChecks(cfg)
			snapshot, archive, storesErr := fetchStoreHealth(ctx, cmd)

			if ctx.JSONMode() {
				payload := map[string]any{"checks": checksJSON(checks)}
				if snapshot != nil {
					payload["snapshot"] = snapshot
				}
				if archive != nil {
					payload["history"] = archive
				}
				if storesErr != nil {
					payload["stores_error"] = storesErr.Error()
				}
				return writeJSON(cmd, payload)
			}

			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Configuration", colorize) {
				fmt.Fprintln(stdout, line)
			}
			for _, result := range checks {
				fmt.Fprintln(stdout, renderStatusLine(result.Name, statusKindForPassed(result.Passed), result.Detail, colorize))
			}

			fmt.Fprintln(stdout)
			for _, line := range renderSectionHeader("Stores", colorize) {
				fmt.Fprintln(stdout, line)
			}
			if storesErr != nil {
				fmt.Fprintln(stdout, renderStatusLine("Stores", statusError, storesErr.Error(), colorize))
				return nil
			}
			fmt.Fprintln(stdout, renderStatusLine("Snapshot", snapshotStatusKind(snapshot), snapshotStatusDetail(snapshot), colorize))
			fmt.Fprintln(stdout, renderStatusLine("History", historyStatusKind(archive), historyStatusDetail(archive), colorize))
			return nil
		},
	}
}

func runConfigChecks(cfg *config.Config) []preflight.Result {
	results := []preflight.Result{
		preflight.CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
	}
	if cfg.Paths.LibraryDir != "" {
		results = append(results, preflight.CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir))
	}
	results = append(results,
		preflight.CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		preflight.CheckRescanFromConfig(cfg),
		preflight.CheckNotificationsFromConfig(cfg),
	)
	return results
}

// fetchStoreHealth asks the daemon for store diagnostics and inspects the
// files directly when no daemon answers.
func fetchStoreHealth(ctx *commandContext, cmd *cobra.Command) (*ipc.SnapshotHealthResponse, *ipc.HistoryHealthResponse, error) {
	if client, err := ctx.dialClient(); err == nil {
		defer client.Close()
		snap, snapErr := client.SnapshotHealth()
		if snapErr != nil {
			return nil, nil, snapErr
		}
		archive, histErr := client.HistoryHealth()
		if histErr != nil {
			return snap, nil, histErr
		}
		return snap, archive, nil
	}

	store, hist, err := ctx.openStores()
	if err != nil {
		return nil, nil, err
	}
	defer hist.Close()

	snapHealth := store.Health()
	snap := &ipc.SnapshotHealthResponse{
		Path:         snapHealth.Path,
		Exists:       snapHealth.Exists,
		Readable:     snapHealth.Readable,
		BackupExists: snapHealth.BackupExists,
		RecordCount:  snapHealth.RecordCount,
		SavedAt:      api.FormatTime(snapHealth.SavedAt),
		Error:        snapHealth.Error,
	}

	histHealth, histErr := hist.CheckHealth(cmd.Context())
	if histErr != nil && histHealth.Error == "" {
		return snap, nil, histErr
	}
	archive := &ipc.HistoryHealthResponse{
		DBPath:           histHealth.DBPath,
		DatabaseExists:   histHealth.DatabaseExists,
		DatabaseReadable: histHealth.DatabaseReadable,
		TableExists:      histHealth.TableExists,
		ColumnsPresent:   histHealth.ColumnsPresent,
		MissingColumns:   histHealth.MissingColumns,
		TotalEntries:     histHealth.TotalEntries,
		IntegrityCheck:   histHealth.IntegrityCheck,
		Error:            histHealth.Error,
	}
	return snap, archive, nil
}

func checksJSON(results []preflight.Result) []map[string]any {
	items := make([]map[string]any, 0, len(results))
	for _, result := range results {
		items = append(items, map[string]any{
			"name":   result.Name,
			"passed": result.Passed,
			"detail": result.Detail,
		})
	}
	return items
}

func snapshotStatusKind(h *ipc.SnapshotHealthResponse) statusKind {
	switch {
	case h == nil:
		return statusWarn
	case h.Error != "":
		return statusError
	case !h.Exists:
		return statusInfo
	case !h.Readable:
		return statusError
	default:
		return statusOK
	}
}

func snapshotStatusDetail(h *ipc.SnapshotHealthResponse) string {
	if h == nil {
		return "Unknown"
	}
	if h.Error != "" {
		return h.Error
	}
	if !h.Exists {
		return fmt.Sprintf("Not created yet (%s)", h.Path)
	}
	detail := fmt.Sprintf("%d records", h.RecordCount)
	if saved := formatDetailTime(h.SavedAt); saved != "" {
		detail += ", saved " + saved
	}
	if h.BackupExists {
		detail += ", backup present"
	}
	return detail
}

func historyStatusKind(h *ipc.HistoryHealthResponse) statusKind {
	switch {
	case h == nil:
		return statusWarn
	case h.Error != "":
		return statusError
	case !h.DatabaseExists:
		return statusInfo
	case !h.DatabaseReadable, !h.TableExists, len(h.MissingColumns) > 0, !h.IntegrityCheck:
		return statusError
	default:
		return statusOK
	}
}

func historyStatusDetail(h *ipc.HistoryHealthResponse) string {
	if h == nil {
		return "Unknown"
	}
	if h.Error != "" {
		return h.Error
	}
	if !h.DatabaseExists {
		return fmt.Sprintf("Not created yet (%s)", h.DBPath)
	}
	if len(h.MissingColumns) > 0 {
		return fmt.Sprintf("Missing columns: %s", strings.Join(h.MissingColumns, ", "))
	}
	if !h.IntegrityCheck {
		return "Integrity check failed"
	}
	return fmt.Sprintf("%d entries", h.TotalEntries)
}
