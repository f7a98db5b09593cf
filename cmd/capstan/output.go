package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"capstan/internal/api"
)

// writeJSON renders v as indented JSON on the command's stdout, for --json
// output modes.
func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\n", data)
	return err
}

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid download id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeCancelResultJSON(cmd *cobra.Command, result api.CancelItemsResult) error {
	type jsonItem struct {
		ID          int64  `json:"id"`
		Outcome     string `json:"outcome"`
		PriorStatus string `json:"prior_status,omitempty"`
	}
	items := make([]jsonItem, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, jsonItem{ID: item.ID, Outcome: string(item.Outcome), PriorStatus: item.PriorStatus})
	}
	return writeJSON(cmd, map[string]any{
		"cancelled": result.CancelledCount,
		"items":     items,
	})
}

func printCancelResult(out io.Writer, result api.CancelItemsResult) {
	for _, item := range result.Items {
		switch item.Outcome {
		case api.CancelOutcomeNotFound:
			fmt.Fprintf(out, "Download %d not found\n", item.ID)
		case api.CancelOutcomeCancelled:
			fmt.Fprintf(out, "Download %d cancelled\n", item.ID)
		}
	}
}

func writeImportResultJSON(cmd *cobra.Command, result api.ImportItemsResult) error {
	type jsonItem struct {
		ID      int64  `json:"id"`
		Outcome string `json:"outcome"`
		Status  string `json:"status,omitempty"`
	}
	items := make([]jsonItem, 0, len(result.Items))
	for _, item := range result.Items {
		items = append(items, jsonItem{ID: item.ID, Outcome: string(item.Outcome), Status: item.Status})
	}
	return writeJSON(cmd, map[string]any{
		"queued": result.QueuedCount,
		"items":  items,
	})
}

func printImportResult(out io.Writer, result api.ImportItemsResult) {
	for _, item := range result.Items {
		switch item.Outcome {
		case api.ImportOutcomeNotFound:
			fmt.Fprintf(out, "Download %d not found\n", item.ID)
		case api.ImportOutcomeNotCompleted:
			fmt.Fprintf(out, "Download %d is not completed (status %s)\n", item.ID, formatStatusLabel(item.Status))
		case api.ImportOutcomeQueued:
			fmt.Fprintf(out, "Download %d queued for import\n", item.ID)
		}
	}
}
