package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"capstan/internal/api"
	"capstan/internal/ipc"
	"capstan/internal/logging"
	"capstan/internal/records"
)

type cleanupOutcome struct {
	Configured bool
	Scope      string
	Removed    []string
	BytesFreed int64
	Errors     []string
}

func newCleanupCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var orphaned bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove stale or orphaned staging directories",
		Long: `Remove staging directories that no download record references.

With --older-than, removes directories untouched for at least that long
regardless of record state. Without it, removes orphaned directories left
behind by cancelled or cleared records.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan == 0 && !cmd.Flags().Changed("orphaned") {
				orphaned = true
			}

			outcome, err := runCleanup(ctx, cmd, olderThan, orphaned)
			if err != nil {
				return err
			}
			if !outcome.Configured {
				if ctx.JSONMode() {
					return writeJSON(cmd, map[string]any{"removed": 0, "bytes_freed": 0, "errors": []any{}})
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Staging directory not configured")
				return nil
			}
			if ctx.JSONMode() {
				errs := outcome.Errors
				if errs == nil {
					errs = []string{}
				}
				return writeJSON(cmd, map[string]any{
					"scope":       outcome.Scope,
					"removed":     len(outcome.Removed),
					"bytes_freed": outcome.BytesFreed,
					"errors":      errs,
				})
			}
			printCleanupResult(cmd, outcome)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Remove directories untouched for this long (e.g. 72h)")
	cmd.Flags().BoolVar(&orphaned, "orphaned", false, "Remove directories no record references")
	return cmd
}

func runCleanup(ctx *commandContext, cmd *cobra.Command, olderThan time.Duration, orphaned bool) (cleanupOutcome, error) {
	if client, dialErr := ctx.dialClient(); dialErr == nil {
		defer client.Close()
		resp, rpcErr := client.Cleanup(ipc.CleanupRequest{
			OlderThanSeconds: int64(olderThan.Seconds()),
			Orphaned:         orphaned,
		})
		if rpcErr != nil {
			return cleanupOutcome{}, rpcErr
		}
		return cleanupOutcome{
			Configured: resp.Configured,
			Scope:      resp.Scope,
			Removed:    resp.Removed,
			BytesFreed: resp.BytesFreed,
			Errors:     resp.Errors,
		}, nil
	}

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return cleanupOutcome{}, err
	}
	store, hist, err := ctx.openStores()
	if err != nil {
		return cleanupOutcome{}, err
	}
	if hist != nil {
		defer hist.Close()
	}

	result, err := api.CleanStagingDirectories(cmd.Context(), api.CleanupRequest{
		StagingDir: cfg.Paths.StagingDir,
		OlderThan:  olderThan,
		Orphaned:   orphaned,
		LiveIDs:    storeLiveIDs{store: store},
		Logger:     logging.NewNop(),
	})
	if err != nil {
		return cleanupOutcome{}, err
	}
	outcome := cleanupOutcome{
		Configured: result.Configured,
		Scope:      result.Scope,
		Removed:    result.Removed.Removed,
		BytesFreed: result.Removed.BytesFreed,
	}
	for _, dirErr := range result.Removed.Errors {
		outcome.Errors = append(outcome.Errors, fmt.Sprintf("%s: %v", dirErr.Path, dirErr.Error))
	}
	return outcome, nil
}

func printCleanupResult(cmd *cobra.Command, outcome cleanupOutcome) {
	out := cmd.OutOrStdout()
	if len(outcome.Removed) == 0 && len(outcome.Errors) == 0 {
		fmt.Fprintf(out, "No %s directories to clean\n", outcome.Scope)
		return
	}
	fmt.Fprintf(out, "Removed %d %s directories (%s freed)\n",
		len(outcome.Removed), outcome.Scope, logging.FormatBytes(outcome.BytesFreed))
	for _, e := range outcome.Errors {
		fmt.Fprintf(out, "  Error: %s\n", e)
	}
}

// storeLiveIDs adapts a snapshot store to the orphan sweep, mirroring the
// daemon's rule that any record keeps its staging directory.
type storeLiveIDs struct {
	store *records.Store
}

func (s storeLiveIDs) LiveStagingIDs(context.Context) (map[int64]struct{}, error) {
	list := s.store.List()
	ids := make(map[int64]struct{}, len(list))
	for _, record := range list {
		ids[record.ID] = struct{}{}
	}
	return ids, nil
}
